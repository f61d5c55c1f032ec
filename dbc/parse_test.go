package dbc

import (
	"strings"
	"testing"
)

func TestParseMessage(t *testing.T) {
	db, err := NewParser(strings.NewReader("BO_ 1045 OCCUPANCY_RPT: 2 PACMOD\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	msg, ok := db.Message(1045)
	if !ok {
		t.Fatalf("message 1045 not found")
	}
	if msg.Name != "OCCUPANCY_RPT" {
		t.Errorf("Name = %q, want OCCUPANCY_RPT", msg.Name)
	}
	if msg.DLC != 2 {
		t.Errorf("DLC = %d, want 2", msg.DLC)
	}
	if msg.Transmitter.Name != "PACMOD" {
		t.Errorf("Transmitter = %q, want PACMOD", msg.Transmitter.Name)
	}
}

func TestParseSignal(t *testing.T) {
	src := "BO_ 1045 OCCUPANCY_RPT: 2 PACMOD\n" +
		` SG_ VEHICLE_SPEED : 7|16@0- (0.01,0) [-327.68|327.67] "m/s"  CUSTOMER_ECU` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	msg, _ := db.Message(1045)
	sig, ok := msg.Signals["VEHICLE_SPEED"]
	if !ok {
		t.Fatalf("signal VEHICLE_SPEED not found")
	}

	if sig.IsMultiplexDef || sig.HasMultiplexID {
		t.Errorf("signal should not be multiplexed")
	}
	if sig.StartBit != 7 {
		t.Errorf("StartBit = %d, want 7", sig.StartBit)
	}
	if sig.Length != 16 {
		t.Errorf("Length = %d, want 16", sig.Length)
	}
	if sig.Endianness != BigEndian {
		t.Errorf("Endianness = %v, want BigEndian", sig.Endianness)
	}
	if !sig.Signed {
		t.Errorf("Signed = false, want true")
	}
	if sig.Factor != 0.01 || sig.Offset != 0 {
		t.Errorf("Factor/Offset = %v/%v, want 0.01/0", sig.Factor, sig.Offset)
	}
	if sig.Min != -327.68 || sig.Max != 327.67 {
		t.Errorf("Min/Max = %v/%v, want -327.68/327.67", sig.Min, sig.Max)
	}
	if sig.Unit != "m/s" {
		t.Errorf("Unit = %q, want m/s", sig.Unit)
	}
	if len(sig.ReceivingNodes) != 1 || sig.ReceivingNodes[0] != "CUSTOMER_ECU" {
		t.Errorf("ReceivingNodes = %v, want [CUSTOMER_ECU]", sig.ReceivingNodes)
	}
}

func TestParseReceiverSentinel(t *testing.T) {
	src := "BO_ 10 M: 1 NODE\n" +
		` SG_ S : 0|8@1+ (1,0) [0|0] ""  Vector__XXX` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sig := db.Messages[10].Signals["S"]
	if len(sig.ReceivingNodes) != 0 {
		t.Errorf("ReceivingNodes = %v, want empty", sig.ReceivingNodes)
	}
}

func TestParseCommentWithSpaces(t *testing.T) {
	src := "BO_ 1045 OCCUPANCY_RPT: 2 PACMOD\n" +
		` SG_ VEHICLE_SPEED : 7|16@0- (0.01,0) [-327.68|327.67] "m/s"  CUSTOMER_ECU` + "\n" +
		`CM_ SG_ 1045 VEHICLE_SPEED "Speed in meters per second; signed.";` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sig := db.Messages[1045].Signals["VEHICLE_SPEED"]
	if !sig.HasComment {
		t.Fatalf("HasComment = false, want true")
	}
	want := "Speed in meters per second; signed."
	if sig.Comment != want {
		t.Errorf("Comment = %q, want %q", sig.Comment, want)
	}
}

func TestParseEnumAttributeWithDefault(t *testing.T) {
	src := `BA_DEF_ SG_ "SigType" ENUM "normal","diag","calib";` + "\n" +
		`BA_DEF_DEF_ "SigType" "normal";` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(db.AttributeDefinitions) != 1 {
		t.Fatalf("AttributeDefinitions len = %d, want 1", len(db.AttributeDefinitions))
	}
	def := db.AttributeDefinitions[0]
	if def.Name != "SigType" || def.Scope != ScopeSignal || def.Kind != AttributeEnum {
		t.Fatalf("def = %+v, want name SigType scope Signal kind Enum", def)
	}
	wantValues := []string{"normal", "diag", "calib"}
	if len(def.EnumValues) != len(wantValues) {
		t.Fatalf("EnumValues = %v, want %v", def.EnumValues, wantValues)
	}
	for i, v := range wantValues {
		if def.EnumValues[i] != v {
			t.Errorf("EnumValues[%d] = %q, want %q", i, def.EnumValues[i], v)
		}
	}
	if !def.HasEnumDefault || def.EnumDefault != "normal" {
		t.Errorf("EnumDefault = %q (has=%v), want normal (has=true)", def.EnumDefault, def.HasEnumDefault)
	}
}

func TestParseMaxCANIDFilter(t *testing.T) {
	src := "BO_ 4000000000 TOO_BIG: 1 NODE\n"
	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(db.Messages) != 0 {
		t.Errorf("Messages = %v, want empty (id above MaxCANID dropped)", db.Messages)
	}
}

func TestParseAttributeValueWiring(t *testing.T) {
	src := "BU_: NODEA\n" +
		`BA_ "NodeFlag" BU_ NODEA "yes";` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	n, ok := db.Node("NODEA")
	if !ok {
		t.Fatalf("node NODEA not found")
	}
	if n.AttributeValues["NodeFlag"] != "yes" {
		t.Errorf("AttributeValues[NodeFlag] = %q, want yes", n.AttributeValues["NodeFlag"])
	}
}

func TestParseValueTable(t *testing.T) {
	src := "BO_ 10 MSG: 1 NODE\n" +
		` SG_ MODE : 0|8@1+ (1,0) [0|0] ""  Vector__XXX` + "\n" +
		`VAL_ 10 MODE 0 "OFF" 1 "ON" ;` + "\n"

	db, err := NewParser(strings.NewReader(src)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sig := db.Messages[10].Signals["MODE"]
	if sig.ValueDescriptions[0] != "OFF" || sig.ValueDescriptions[1] != "ON" {
		t.Errorf("ValueDescriptions = %v, want {0:OFF 1:ON}", sig.ValueDescriptions)
	}
}
