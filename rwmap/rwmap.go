// Package rwmap provides small RWMutex-guarded map types shared by the
// ingest pipeline, where many goroutines read concurrently and writes are
// comparatively rare.
package rwmap

import (
	"sync"

	"github.com/astuff/can-dbc-loader/can"
)

// RWMap is a concurrency-safe map[int64]any.
type RWMap struct {
	sync.RWMutex
	m map[int64]any
}

// NewRWMap returns an RWMap pre-sized for n entries.
func NewRWMap(n int) *RWMap {
	return &RWMap{
		m: make(map[int64]any, n),
	}
}

func (m *RWMap) Get(key int64) (any, bool) {
	m.RLock()
	defer m.RUnlock()
	v, existed := m.m[key]
	return v, existed
}

func (m *RWMap) Set(key int64, v any) {
	m.Lock()
	defer m.Unlock()
	m.m[key] = v
}

func (m *RWMap) Delete(key int64) {
	m.Lock()
	defer m.Unlock()
	delete(m.m, key)
}

func (m *RWMap) Clear() {
	m.Lock()
	defer m.Unlock()
	m.m = map[int64]any{}
}

func (m *RWMap) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.m)
}

// Each calls f for every entry while holding the read lock; f returning
// false stops the iteration early.
func (m *RWMap) Each(f func(key int64, v any) bool) {
	m.RLock()
	defer m.RUnlock()

	for key, v := range m.m {
		if !f(key, v) {
			return
		}
	}
}

// RWPduMap is a concurrency-safe map[uint32]can.PDU, keyed by CAN id.
type RWPduMap struct {
	sync.RWMutex
	m map[uint32]can.PDU
}

// NewRWPduMap returns an RWPduMap pre-sized for n entries.
func NewRWPduMap(n int) *RWPduMap {
	return &RWPduMap{
		m: make(map[uint32]can.PDU, n),
	}
}

func (m *RWPduMap) Get(k uint32) (*can.PDU, bool) {
	m.RLock()
	defer m.RUnlock()
	v, existed := m.m[k]
	return &v, existed
}

func (m *RWPduMap) Set(k uint32, v *can.PDU) {
	m.Lock()
	defer m.Unlock()
	m.m[k] = *v
}

func (m *RWPduMap) Delete(k uint32) {
	m.Lock()
	defer m.Unlock()
	delete(m.m, k)
}

func (m *RWPduMap) Clear() {
	m.Lock()
	defer m.Unlock()
	m.m = map[uint32]can.PDU{}
}

func (m *RWPduMap) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.m)
}

// Each calls f for every entry while holding the read lock; f returning
// false stops the iteration early.
func (m *RWPduMap) Each(f func(k uint32, v *can.PDU) bool) {
	m.RLock()
	defer m.RUnlock()

	for k, v := range m.m {
		if !f(k, &v) {
			return
		}
	}
}
