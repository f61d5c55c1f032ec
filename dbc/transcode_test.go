package dbc

import "testing"

func TestDecodeLittleEndian32Bit(t *testing.T) {
	msg := newMessage(1, "M", 4, "NODE")
	sig := newSignal("VAL")
	sig.StartBit = 0
	sig.Length = 32
	sig.Endianness = LittleEndian
	sig.Factor = 1
	msg.Signals["VAL"] = sig
	msg.OrderedSignals = []string{"VAL"}

	payload := []byte{0x78, 0x56, 0x34, 0x12}
	tc := NewTranscoder(msg)

	got, err := tc.DecodeSignal("VAL", payload)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if got != float64(0x12345678) {
		t.Errorf("got %v, want %v", got, float64(0x12345678))
	}

	out := make([]byte, 4)
	if err := tc.Encode(out, "VAL", float64(0x12345678)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Errorf("out[%d] = %#x, want %#x", i, out[i], payload[i])
		}
	}
}

func TestDecodeSignedBigEndian(t *testing.T) {
	msg := newMessage(1045, "OCCUPANCY_RPT", 2, "PACMOD")
	sig := newSignal("VEHICLE_SPEED")
	sig.StartBit = 7
	sig.Length = 16
	sig.Endianness = BigEndian
	sig.Signed = true
	sig.Factor = 0.01
	msg.Signals["VEHICLE_SPEED"] = sig
	msg.OrderedSignals = []string{"VEHICLE_SPEED"}

	tc := NewTranscoder(msg)

	payload := make([]byte, 2)
	if err := tc.Encode(payload, "VEHICLE_SPEED", -1.0); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := tc.DecodeSignal("VEHICLE_SPEED", payload)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if got != -1.0 {
		t.Errorf("got %v, want -1.0", got)
	}
}

// Encode clips to the signal's representable n-bit raw range, not its
// declared physical Min/Max: those are an independent, optional annotation
// and many legal signals leave them at 0/0. A Min/Max of 0/100 here must
// not cause 500 to clip to 100; it saturates to the 8-bit unsigned range.
func TestEncodeClipsToRawRangeNotPhysicalMinMax(t *testing.T) {
	msg := newMessage(1, "M", 1, "NODE")
	sig := newSignal("S")
	sig.StartBit = 0
	sig.Length = 8
	sig.Endianness = LittleEndian
	sig.Factor = 1
	sig.Min = 0
	sig.Max = 100
	msg.Signals["S"] = sig
	msg.OrderedSignals = []string{"S"}

	tc := NewTranscoder(msg)
	payload := make([]byte, 1)
	err := tc.Encode(payload, "S", 500)
	if err == nil {
		t.Fatalf("expected saturation error")
	}
	var te *TranscodeError
	if e, ok := err.(*TranscodeError); !ok || e.Kind != TranscodeOutOfRange {
		t.Errorf("err = %v (%T), want TranscodeOutOfRange", err, te)
	}

	got, _ := tc.DecodeSignal("S", payload)
	if got != 255 {
		t.Errorf("saturated value = %v, want 255 (8-bit unsigned max), not the physical Max of 100", got)
	}
}

// An unbounded signal (Min=Max=0, which is common and legal) must still
// saturate rather than wrap around when encoded out of its raw n-bit range.
func TestEncodeSaturatesUnboundedSignedSignal(t *testing.T) {
	msg := newMessage(1, "M", 1, "NODE")
	sig := newSignal("S")
	sig.StartBit = 0
	sig.Length = 8
	sig.Endianness = LittleEndian
	sig.Signed = true
	sig.Factor = 1
	// Min and Max left at their zero value: no physical bound declared.
	msg.Signals["S"] = sig
	msg.OrderedSignals = []string{"S"}

	tc := NewTranscoder(msg)
	payload := make([]byte, 1)
	err := tc.Encode(payload, "S", 200)
	if err == nil {
		t.Fatalf("expected saturation error")
	}
	if e, ok := err.(*TranscodeError); !ok || e.Kind != TranscodeOutOfRange {
		t.Errorf("err = %v, want TranscodeOutOfRange", err)
	}

	got, decErr := tc.DecodeSignal("S", payload)
	if decErr != nil {
		t.Fatalf("DecodeSignal: %v", decErr)
	}
	if got != 127 {
		t.Errorf("saturated value = %v, want 127 (8-bit signed max); wraparound would give -56", got)
	}
}

func TestDecodeMultiplexSelectorMismatch(t *testing.T) {
	msg := newMessage(1, "M", 2, "NODE")
	selector := newSignal("SEL")
	selector.StartBit = 0
	selector.Length = 8
	selector.Endianness = LittleEndian
	selector.IsMultiplexDef = true
	selector.Factor = 1

	muxed := newSignal("VAL_A")
	muxed.StartBit = 8
	muxed.Length = 8
	muxed.Endianness = LittleEndian
	muxed.Factor = 1
	muxed.HasMultiplexID = true
	muxed.MultiplexID = 1

	msg.Signals["SEL"] = selector
	msg.Signals["VAL_A"] = muxed
	msg.OrderedSignals = []string{"SEL", "VAL_A"}

	tc := NewTranscoder(msg)
	payload := []byte{0, 42}

	_, err := tc.DecodeSignal("VAL_A", payload)
	e, ok := err.(*TranscodeError)
	if !ok || e.Kind != TranscodeSelectorMismatch {
		t.Fatalf("err = %v, want TranscodeSelectorMismatch", err)
	}

	decoded := tc.Decode(payload)
	for _, d := range decoded {
		if d.Name == "VAL_A" {
			t.Errorf("VAL_A should be omitted from Decode result when selector mismatches")
		}
	}
}

func TestDecodeShortPayload(t *testing.T) {
	msg := newMessage(1, "M", 1, "NODE")
	sig := newSignal("S")
	sig.StartBit = 0
	sig.Length = 16
	sig.Endianness = LittleEndian
	msg.Signals["S"] = sig
	msg.OrderedSignals = []string{"S"}

	tc := NewTranscoder(msg)
	_, err := tc.DecodeSignal("S", []byte{0})
	e, ok := err.(*TranscodeError)
	if !ok || e.Kind != TranscodeShortPayload {
		t.Fatalf("err = %v, want TranscodeShortPayload", err)
	}
}
