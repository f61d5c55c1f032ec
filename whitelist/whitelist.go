// Package whitelist gates which CAN ids and signals the bridge decodes and
// publishes, and exposes an HTTP endpoint to update the gate set at runtime.
package whitelist

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/astuff/can-dbc-loader/base"
	"github.com/astuff/can-dbc-loader/dbc"
)

var log = base.Logger

const (
	OK uint = iota
	ReadBodyError
	ParseJsonError
	InvalidAction
	WrongHttpMethod
)

// Action values a WhiteListReq may carry.
const (
	DoResetWith int = iota + 1
	DoAdd
	DoDelete
)

var whiteListCode = map[uint]string{
	OK:              "OK",
	ReadBodyError:   "Read body error",
	ParseJsonError:  "Parse json error",
	InvalidAction:   "Invalid action",
	WrongHttpMethod: "Wrong http method, should use POST",
}

type WhiteListRsp struct {
	StatusCode uint   `json:"statusCode"`
	Reason     string `json:"reason"`
}

type WhiteListReq struct {
	TaskId    int                 `json:"taskId"`
	Action    int                 `json:"action"`
	CanList   map[string][]string `json:"canList"`
	TimeStamp string              `json:"timeStamp"`
}

type WhiteListMap map[uint64]map[string]bool

// WhiteList is the gate set: which CAN ids (and within each, which signals)
// are allowed through. "*" as the sole signal name for an id expands to
// every signal the bound Database declares for that message.
type WhiteList struct {
	mu           sync.Mutex
	db           *dbc.Database
	whiteListMap WhiteListMap
	enable       bool

	saveCh chan struct{}
}

// New returns an empty, disabled WhiteList resolving "*" wildcards against
// db. db may be nil if wildcard entries are never used.
func New(db *dbc.Database) *WhiteList {
	return &WhiteList{
		db:           db,
		whiteListMap: make(WhiteListMap),
		saveCh:       make(chan struct{}, 1),
	}
}

func (w *WhiteList) SetEnableFlag(enable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enable = enable
}

func (w *WhiteList) IsEnable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enable
}

func (w *WhiteList) QueryByCanId(canId uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.whiteListMap[canId]
	return ok
}

func (w *WhiteList) QueryByCanIdAndSignal(canId uint64, signal string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	signals, ok := w.whiteListMap[canId]
	if !ok {
		return false
	}
	_, ok = signals[signal]
	return ok
}

func (w *WhiteList) ResetWith(req *WhiteListReq) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.whiteListMap = WhiteListMap{}
	w.innerAdd(req)
}

func (w *WhiteList) Add(req *WhiteListReq) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.innerAdd(req)
}

func (w *WhiteList) innerAdd(req *WhiteListReq) {
	for strCanId, vSignals := range req.CanList {
		canId, err := strconv.ParseUint(strCanId, 10, 64)
		if err != nil {
			log.Errorln(err)
			continue
		}

		signals := w.whiteListMap[canId]
		if signals == nil {
			signals = make(map[string]bool)
			w.whiteListMap[canId] = signals
		}

		if len(vSignals) == 1 && vSignals[0] == "*" {
			msg, ok := w.db.Message(uint32(canId))
			if !ok {
				log.Errorf("no dbc message for CAN id %d", canId)
				continue
			}
			for _, sig := range msg.OrderedSignals {
				signals[sig] = true
			}
			continue
		}

		for _, sig := range vSignals {
			signals[sig] = true
		}
	}
}

func (w *WhiteList) Delete(req *WhiteListReq) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for strCanId, vSignals := range req.CanList {
		canId, err := strconv.ParseUint(strCanId, 10, 64)
		if err != nil {
			log.Errorln(err)
			continue
		}

		signals, ok := w.whiteListMap[canId]
		if !ok {
			continue
		}

		if len(vSignals) == 1 && vSignals[0] == "*" {
			msg, ok := w.db.Message(uint32(canId))
			if !ok {
				log.Errorf("no dbc message for CAN id %d", canId)
				continue
			}
			for _, sig := range msg.OrderedSignals {
				delete(signals, sig)
			}
		} else {
			for _, sig := range vSignals {
				delete(signals, sig)
			}
		}

		if len(signals) == 0 {
			delete(w.whiteListMap, canId)
		}
	}
}

// ServeHTTP lets WhiteList act directly as the handler mounted at the
// whitelist-update endpoint.
func (w *WhiteList) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rspByCode(rw, WrongHttpMethod, http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		rspByCode(rw, ReadBodyError, http.StatusInternalServerError)
		return
	}

	var req WhiteListReq
	if err := json.Unmarshal(body, &req); err != nil {
		rspByCode(rw, ParseJsonError, http.StatusUnprocessableEntity)
		return
	}

	switch req.Action {
	case DoResetWith:
		w.ResetWith(&req)
	case DoAdd:
		w.Add(&req)
	case DoDelete:
		w.Delete(&req)
	default:
		rspByCode(rw, InvalidAction, http.StatusUnprocessableEntity)
		return
	}

	select {
	case w.saveCh <- struct{}{}:
	default:
	}
	rspByCode(rw, OK, http.StatusOK)
}

func rspByCode(w http.ResponseWriter, errCode uint, statusCode int) {
	rsp, _ := toJsonRsp(errCode)
	w.WriteHeader(statusCode)
	w.Write(rsp)
}

func toJsonRsp(errCode uint) ([]byte, error) {
	rsp := &WhiteListRsp{StatusCode: errCode, Reason: whiteListCode[errCode]}
	jData, err := json.Marshal(rsp)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	return append(jData, '\n'), nil
}

// Init loads whiteListFile into w and starts the background writer that
// persists w back to that file whenever ServeHTTP applies a change.
func (w *WhiteList) Init(whiteListFile string, wg *sync.WaitGroup, enable bool) error {
	w.SetEnableFlag(enable)

	if err := w.loadFromFile(whiteListFile); err != nil {
		return err
	}

	wg.Add(1)
	go w.asyncSave(whiteListFile, wg)
	return nil
}

func (w *WhiteList) loadFromFile(whiteListFile string) error {
	if whiteListFile == "" {
		return errors.New("whitelist: filename is empty")
	}

	file, err := os.OpenFile(whiteListFile, os.O_RDONLY|os.O_CREATE, 0o666)
	if err != nil {
		return err
	}
	defer file.Close()

	err = json.NewDecoder(file).Decode(&w.whiteListMap)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (w *WhiteList) asyncSave(whiteListFile string, wg *sync.WaitGroup) {
	defer wg.Done()

	file, err := os.OpenFile(whiteListFile, os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		log.Fatalln(err)
	}
	defer file.Close()

	for range w.saveCh {
		buf, err := w.marshal()
		if err != nil {
			log.Errorln(err)
			continue
		}

		if err := file.Truncate(0); err != nil {
			log.Fatalln(err)
			continue
		}

		n, err := file.WriteAt(buf, 0)
		if err != nil {
			log.Errorf("write %s failed: %s (wrote %d bytes)", whiteListFile, err, n)
		}
	}
}

func (w *WhiteList) marshal() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.Marshal(w.whiteListMap)
}
