package dbc

import (
	"strings"
	"testing"
)

func TestRoundTripMessageAndSignal(t *testing.T) {
	src := "VERSION \"1.0\"\n" +
		"BS_: 500\n" +
		"BU_: PACMOD CUSTOMER_ECU\n" +
		"BO_ 1045 OCCUPANCY_RPT: 2 PACMOD\n" +
		` SG_ VEHICLE_SPEED : 7|16@0- (0.01,0) [-327.68|327.67] "m/s" CUSTOMER_ECU` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var out strings.Builder
	if err := Generate(&out, db); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	db2, err := NewParser(strings.NewReader(out.String())).Parse()
	if err != nil {
		t.Fatalf("re-parse generated text: %v\n%s", err, out.String())
	}

	msg1, _ := db.Message(1045)
	msg2, _ := db2.Message(1045)
	if msg1.Name != msg2.Name || msg1.DLC != msg2.DLC || msg1.Transmitter.Name != msg2.Transmitter.Name {
		t.Fatalf("message mismatch after round-trip: %+v vs %+v", msg1, msg2)
	}

	sig1 := msg1.Signals["VEHICLE_SPEED"]
	sig2 := msg2.Signals["VEHICLE_SPEED"]
	if sig1.StartBit != sig2.StartBit || sig1.Length != sig2.Length ||
		sig1.Endianness != sig2.Endianness || sig1.Signed != sig2.Signed ||
		sig1.Factor != sig2.Factor || sig1.Offset != sig2.Offset ||
		sig1.Min != sig2.Min || sig1.Max != sig2.Max || sig1.Unit != sig2.Unit {
		t.Fatalf("signal mismatch after round-trip: %+v vs %+v", sig1, sig2)
	}
}

func TestGenerateNormalizesHexToInt(t *testing.T) {
	db := NewDatabase()
	db.AttributeDefinitions = append(db.AttributeDefinitions, &AttributeDefinition{
		Name: "HexAttr", Scope: ScopeMessage, Kind: AttributeInt, IntMin: 0, IntMax: 255,
	})

	var out strings.Builder
	if err := Generate(&out, db); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(out.String(), "HEX") {
		t.Errorf("generated text should normalize HEX to INT:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `BA_DEF_ BO_ "HexAttr" INT 0 255;`) {
		t.Errorf("missing expected BA_DEF_ line:\n%s", out.String())
	}
}

func TestGenerateValueTable(t *testing.T) {
	db := NewDatabase()
	msg := newMessage(10, "MSG", 1, "NODE")
	sig := newSignal("MODE")
	sig.ValueDescriptions[0] = "OFF"
	sig.ValueDescriptions[1] = "ON"
	msg.Signals["MODE"] = sig
	msg.OrderedSignals = []string{"MODE"}
	db.Messages[10] = msg

	var out strings.Builder
	if err := Generate(&out, db); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out.String(), `VAL_ 10 MODE 0 "OFF" 1 "ON";`) {
		t.Errorf("missing expected VAL_ line:\n%s", out.String())
	}
}
