// Package can turns raw CAN frames (PDUs) received off the wire into decoded
// signal values, using a loaded dbc.Database for the bit layout and a
// whitelist to split frames worth decoding from everything else.
package can

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/astuff/can-dbc-loader/base"
	"github.com/astuff/can-dbc-loader/dbc"
	"github.com/astuff/can-dbc-loader/whitelist"

	jsoniter "github.com/json-iterator/go"
)

var log = base.Logger

// PDU is one CAN frame as received from the wire transport: a protocol
// header plus payload bytes.
type PDU struct {
	UdpTimeStamp uint64
	Timestamp    int64
	CanId        uint32
	BusId        uint8
	Direction    uint8
	PayloadLen   uint16
	Payload      []byte
}

type PDUSlice []PDU

func (x PDUSlice) Len() int           { return len(x) }
func (x PDUSlice) Less(i, j int) bool { return x[i].Timestamp < x[j].Timestamp }
func (x PDUSlice) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }

// Direction values recorded in a PDU header.
const (
	DirRecv = iota
	DirSend
)

// PDU header field widths.
const (
	TimeStampLen = 8
	CanIdLen     = 4
	BusIdLen     = 1
	DirectionLen = 1
	LengthLen    = 2

	PduHeaderLen = TimeStampLen + CanIdLen + BusIdLen + DirectionLen + LengthLen
)

const MicroPerMilli = 1000

type signal struct {
	signalName  string
	signalValue float64
}

type canFrame struct {
	timeStamp int64
	canName   string
	canId     uint32
	busId     uint8
	direction uint8
	signals   []*signal
	payLoad   []byte
}

// Decoder decodes PDUs against a fixed dbc.Database, splitting frames into
// the whitelisted set (decoded to named signals) and the frames the
// whitelist rejects (carried through only as raw hex).
type Decoder struct {
	db *dbc.Database
	wl *whitelist.WhiteList
}

// NewDecoder returns a Decoder that resolves messages against db, gating
// which ones get decoded through wl (a nil wl decodes everything).
func NewDecoder(db *dbc.Database, wl *whitelist.WhiteList) *Decoder {
	return &Decoder{db: db, wl: wl}
}

// ParseToJson splits pdus into whitelisted frames, decoded and rendered as
// one JSON document, and frames the whitelist rejects, rendered as
// newline-separated raw hex text lines (not JSON). With a nil or disabled
// whitelist every frame counts as whitelisted. A whitelisted frame whose CAN
// id has no message in the database appears in neither output.
func (d *Decoder) ParseToJson(pdus []PDU) (whiteListJson []byte, otherJson []byte) {
	var otherFrames, whiteListFrames []*canFrame

	for _, pdu := range pdus {
		frame := &canFrame{
			timeStamp: pdu.Timestamp / MicroPerMilli,
			canId:     pdu.CanId,
			busId:     pdu.BusId,
			direction: pdu.Direction,
			payLoad:   pdu.Payload,
		}

		enabled := d.wl != nil && d.wl.IsEnable()
		if enabled && !d.wl.QueryByCanId(uint64(pdu.CanId)) {
			otherFrames = append(otherFrames, frame)
			continue
		}

		if !d.decodeFrame(pdu, frame) {
			continue
		}
		whiteListFrames = append(whiteListFrames, frame)
	}

	whiteListJson = toWhiteListJson(whiteListFrames)
	otherJson = toOtherJson(otherFrames)
	return whiteListJson, otherJson
}

func (d *Decoder) decodeFrame(pdu PDU, frame *canFrame) bool {
	msg, ok := d.db.Message(pdu.CanId)
	if !ok {
		log.Warnf("no dbc message for CAN id %d", pdu.CanId)
		return false
	}
	frame.canName = msg.Name

	tc := dbc.NewTranscoder(msg)
	for _, decoded := range tc.Decode(pdu.Payload) {
		if decoded.Err != nil {
			log.Warnf("decode %s: %v", decoded.Name, decoded.Err)
			continue
		}
		if d.wl != nil && d.wl.IsEnable() && !d.wl.QueryByCanIdAndSignal(uint64(pdu.CanId), decoded.Name) {
			continue
		}
		frame.signals = append(frame.signals, &signal{signalName: decoded.Name, signalValue: decoded.Value})
	}
	return true
}

// CanData is one decoded frame's signal set, keyed for the whitelisted JSON
// output's per-message attribute section.
type CanData struct {
	CanId     uint32 `json:"id"`
	BusId     uint8  `json:"bus"`
	Direction uint8  `json:"d"`
	TimeStamp int64  `json:"t"`
	Signals   map[string]any
}

// JsonData is the document shape the bridge publishes: a timestamp, the raw
// hex line for every frame, and one attribute block per decoded message.
type JsonData struct {
	TimeStamp int64             `json:"ts"`
	Raw       map[string]string `json:"raw"`
	Attr      map[string]*CanData
}

func (j *JsonData) MarshalJSON() ([]byte, error) {
	datas := make(map[string]any)
	datas["ts"] = j.TimeStamp
	datas["raw"] = j.Raw

	for k, v := range j.Attr {
		cans := make(map[string]any)
		cans["id"] = v.CanId
		cans["bus"] = v.BusId
		cans["d"] = v.Direction
		cans["t"] = v.TimeStamp
		for sigName, sigVal := range v.Signals {
			cans[sigName] = sigVal
		}
		datas[k] = cans
	}

	return json.Marshal(datas)
}

func toWhiteListJson(canFrames []*canFrame) []byte {
	if len(canFrames) == 0 {
		return nil
	}

	jData := &JsonData{
		TimeStamp: canFrames[0].timeStamp,
		Raw:       make(map[string]string),
		Attr:      make(map[string]*CanData),
	}

	for _, frame := range canFrames {
		jData.Raw[frame.canName] = rawFrameLine(frame)

		canData := &CanData{
			CanId:     frame.canId,
			BusId:     frame.busId,
			Direction: frame.direction,
			TimeStamp: jData.TimeStamp,
			Signals:   make(map[string]any),
		}
		for _, sig := range frame.signals {
			canData.Signals[sig.signalName] = sig.signalValue
		}
		jData.Attr[frame.canName] = canData
	}

	retJson, err := jsoniter.Marshal(jData)
	if err != nil {
		log.Errorln(err)
		return nil
	}
	return retJson
}

func toOtherJson(canFrames []*canFrame) []byte {
	if len(canFrames) == 0 {
		return nil
	}

	var out bytes.Buffer
	for _, frame := range canFrames {
		out.WriteString(rawFrameLine(frame))
		out.WriteByte('\n')
	}
	return out.Bytes()
}

func rawFrameLine(frame *canFrame) string {
	var b bytes.Buffer
	b.WriteString(strconv.FormatInt(frame.timeStamp, 10))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(uint64(frame.canId), 10))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(uint64(frame.busId), 10))
	b.WriteByte(' ')

	switch frame.direction {
	case DirRecv:
		b.WriteString("Rx d")
	case DirSend:
		b.WriteString("Tx d")
	}
	b.WriteByte(' ')

	b.WriteString(strconv.FormatUint(uint64(len(frame.payLoad)), 10))
	for _, oneByte := range frame.payLoad {
		b.WriteByte(' ')
		b.Write(byteToHexChar(oneByte))
	}
	return b.String()
}

func byteToHexChar(oneByte byte) []byte {
	high := strings.ToUpper(strconv.FormatUint(uint64(oneByte>>4), 16))
	low := strings.ToUpper(strconv.FormatUint(uint64(oneByte&0x0F), 16))
	return []byte(high + low)
}
