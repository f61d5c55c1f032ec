package can

import (
	"strings"
	"testing"

	"github.com/astuff/can-dbc-loader/dbc"
	"github.com/astuff/can-dbc-loader/whitelist"
)

func testDatabase(t *testing.T) *dbc.Database {
	t.Helper()
	src := "BO_ 10 SPEED_MSG: 4 NODE\n" +
		` SG_ SPEED : 0|16@1+ (0.1,0) [0|6553.5] "km/h" Vector__XXX` + "\n"
	db, err := dbc.NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return db
}

func TestDecoderDecodesKnownMessage(t *testing.T) {
	db := testDatabase(t)
	d := NewDecoder(db, nil)

	pdus := []PDU{{
		CanId:     10,
		Timestamp: 1000,
		Payload:   []byte{0x10, 0x00, 0, 0},
	}}

	whiteJSON, otherJSON := d.ParseToJson(pdus)
	if len(whiteJSON) == 0 {
		t.Fatalf("expected whitelisted JSON output, got none")
	}
	if len(otherJSON) != 0 {
		t.Errorf("expected no other-frame JSON, got %s", otherJSON)
	}
	if !strings.Contains(string(whiteJSON), "SPEED") {
		t.Errorf("decoded JSON missing SPEED signal: %s", whiteJSON)
	}
}

func TestDecoderUnknownMessageGoesNowhere(t *testing.T) {
	db := testDatabase(t)
	d := NewDecoder(db, nil)

	pdus := []PDU{{CanId: 999, Timestamp: 1000, Payload: []byte{0, 0}}}
	whiteJSON, otherJSON := d.ParseToJson(pdus)
	if len(whiteJSON) != 0 || len(otherJSON) != 0 {
		t.Errorf("expected no output for unknown message, got white=%s other=%s", whiteJSON, otherJSON)
	}
}

func TestDecoderRespectsWhitelist(t *testing.T) {
	db := testDatabase(t)
	wl := whitelist.New(db)
	wl.SetEnableFlag(true)
	// no entries added: nothing is whitelisted

	d := NewDecoder(db, wl)
	pdus := []PDU{{CanId: 10, Timestamp: 1000, Payload: []byte{0x10, 0, 0, 0}}}

	whiteJSON, otherJSON := d.ParseToJson(pdus)
	if len(whiteJSON) != 0 {
		t.Errorf("expected no whitelisted output, got %s", whiteJSON)
	}
	if len(otherJSON) == 0 {
		t.Errorf("expected frame to fall through to other-frame output")
	}
}

func TestByteToHexChar(t *testing.T) {
	if got := string(byteToHexChar(0xA5)); got != "A5" {
		t.Errorf("byteToHexChar(0xA5) = %q, want A5", got)
	}
	if got := string(byteToHexChar(0x00)); got != "00" {
		t.Errorf("byteToHexChar(0x00) = %q, want 00", got)
	}
}
