package whitelist

import (
	"strings"
	"testing"

	"github.com/astuff/can-dbc-loader/dbc"
)

func testDatabase(t *testing.T) *dbc.Database {
	t.Helper()
	src := "BO_ 10 MSG: 2 NODE\n" +
		` SG_ A : 0|8@1+ (1,0) [0|0] "" Vector__XXX` + "\n" +
		` SG_ B : 8|8@1+ (1,0) [0|0] "" Vector__XXX` + "\n"
	db, err := dbc.NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return db
}

func TestWildcardAddExpandsToAllSignals(t *testing.T) {
	db := testDatabase(t)
	wl := New(db)

	wl.Add(&WhiteListReq{CanList: map[string][]string{"10": {"*"}}})

	if !wl.QueryByCanId(10) {
		t.Fatalf("expected id 10 to be whitelisted")
	}
	if !wl.QueryByCanIdAndSignal(10, "A") || !wl.QueryByCanIdAndSignal(10, "B") {
		t.Errorf("expected both signals whitelisted by wildcard add")
	}
}

func TestExplicitAddOnlyWhitelistsNamedSignals(t *testing.T) {
	db := testDatabase(t)
	wl := New(db)

	wl.Add(&WhiteListReq{CanList: map[string][]string{"10": {"A"}}})

	if !wl.QueryByCanIdAndSignal(10, "A") {
		t.Errorf("expected A to be whitelisted")
	}
	if wl.QueryByCanIdAndSignal(10, "B") {
		t.Errorf("expected B to remain un-whitelisted")
	}
}

func TestDeleteRemovesEmptyEntry(t *testing.T) {
	db := testDatabase(t)
	wl := New(db)

	wl.Add(&WhiteListReq{CanList: map[string][]string{"10": {"A"}}})
	wl.Delete(&WhiteListReq{CanList: map[string][]string{"10": {"A"}}})

	if wl.QueryByCanId(10) {
		t.Errorf("expected id 10 to be removed once its last signal is deleted")
	}
}

func TestResetWithReplacesMap(t *testing.T) {
	db := testDatabase(t)
	wl := New(db)

	wl.Add(&WhiteListReq{CanList: map[string][]string{"10": {"A"}}})
	wl.ResetWith(&WhiteListReq{CanList: map[string][]string{"10": {"B"}}})

	if wl.QueryByCanIdAndSignal(10, "A") {
		t.Errorf("expected A to be cleared by ResetWith")
	}
	if !wl.QueryByCanIdAndSignal(10, "B") {
		t.Errorf("expected B to be set by ResetWith")
	}
}

func TestEnableFlag(t *testing.T) {
	wl := New(nil)
	if wl.IsEnable() {
		t.Fatalf("expected disabled by default")
	}
	wl.SetEnableFlag(true)
	if !wl.IsEnable() {
		t.Errorf("expected enabled after SetEnableFlag(true)")
	}
}
