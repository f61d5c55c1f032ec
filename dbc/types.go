package dbc

// MaxCANID is the largest message id the loader accepts. Vector tools
// sometimes emit diagnostic pseudo-messages above this range; those are
// dropped at parse time rather than carried into the model.
const MaxCANID = 0x1FFFFFFF

// dlcLength maps a 4-bit Data Length Code to its payload length in bytes.
var dlcLength = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DlcToLength returns the payload length in bytes encoded by dlc, and false
// if dlc is not a valid 4-bit DLC (0..15).
func DlcToLength(dlc int) (int, bool) {
	if dlc < 0 || dlc >= len(dlcLength) {
		return 0, false
	}
	return dlcLength[dlc], true
}

// Endianness is the bit-layout convention of a signal: Motorola (big-endian)
// or Intel (little-endian).
type Endianness int

const (
	BigEndian Endianness = iota
	LittleEndian
)

// Node is a single ECU on the bus, identified by name.
type Node struct {
	Name            string
	Comment         string
	HasComment      bool
	AttributeValues map[string]string
}

func newNode(name string) *Node {
	return &Node{Name: name, AttributeValues: make(map[string]string)}
}

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.AttributeValues = cloneStringMap(n.AttributeValues)
	return &cp
}

// Signal is a named scalar field packed into a message's payload.
type Signal struct {
	Name string

	// IsMultiplexDef is true when this signal is the multiplex selector
	// ("M" in the DBC text). Mutually exclusive with HasMultiplexID.
	IsMultiplexDef bool
	// HasMultiplexID and MultiplexID describe a signal selected by the
	// message's multiplex selector signal ("m<N>" in the DBC text).
	HasMultiplexID bool
	MultiplexID    uint32

	StartBit   int
	Length     int
	Endianness Endianness
	Signed     bool

	Factor float64
	Offset float64
	Min    float64
	Max    float64

	Unit string

	ReceivingNodes []string

	// ValueDescriptions maps a raw integer value to its textual label, as
	// declared by a VAL_ record.
	ValueDescriptions map[uint32]string

	Comment         string
	HasComment      bool
	AttributeValues map[string]string
}

func newSignal(name string) *Signal {
	return &Signal{
		Name:              name,
		ValueDescriptions: make(map[uint32]string),
		AttributeValues:   make(map[string]string),
	}
}

func (s *Signal) clone() *Signal {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ReceivingNodes = append([]string(nil), s.ReceivingNodes...)
	cp.ValueDescriptions = make(map[uint32]string, len(s.ValueDescriptions))
	for k, v := range s.ValueDescriptions {
		cp.ValueDescriptions[k] = v
	}
	cp.AttributeValues = cloneStringMap(s.AttributeValues)
	return &cp
}

// Message is a CAN frame: an id, a payload length, the node that transmits
// it, and the signals packed into its payload.
type Message struct {
	ID          uint32
	Name        string
	DLC         int
	Transmitter Node

	// Signals maps signal name to Signal. OrderedSignals preserves the
	// order signals appeared in the source text, which the generator
	// reproduces on emission.
	Signals        map[string]*Signal
	OrderedSignals []string

	Comment         string
	HasComment      bool
	AttributeValues map[string]string
}

func newMessage(id uint32, name string, dlc int, transmitter string) *Message {
	return &Message{
		ID:              id,
		Name:            name,
		DLC:             dlc,
		Transmitter:     Node{Name: transmitter, AttributeValues: map[string]string{}},
		Signals:         make(map[string]*Signal),
		AttributeValues: make(map[string]string),
	}
}

// Length is the payload length in bytes implied by the message's DLC.
func (m *Message) Length() int {
	n, ok := DlcToLength(m.DLC)
	if !ok {
		return 0
	}
	return n
}

func (m *Message) clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Transmitter = *m.Transmitter.clone()
	cp.Signals = make(map[string]*Signal, len(m.Signals))
	for k, v := range m.Signals {
		cp.Signals[k] = v.clone()
	}
	cp.OrderedSignals = append([]string(nil), m.OrderedSignals...)
	cp.AttributeValues = cloneStringMap(m.AttributeValues)
	return &cp
}

// AttributeScope names the kind of entity an AttributeDefinition applies to.
type AttributeScope int

const (
	ScopeNode AttributeScope = iota
	ScopeMessage
	ScopeSignal
)

// AttributeKind tags the variant an AttributeDefinition carries.
type AttributeKind int

const (
	AttributeEnum AttributeKind = iota
	AttributeFloat
	AttributeInt
	AttributeString
)

// AttributeDefinition is a user-defined typed property attachable to a
// node, message, or signal, declared by a BA_DEF_ record and optionally
// given a default by a paired BA_DEF_DEF_ record.
//
// Exactly the fields relevant to Kind are meaningful; this mirrors the
// tagged-variant shape of the original attribute.hpp hierarchy collapsed
// into one struct instead of four separate implementations.
type AttributeDefinition struct {
	Name  string
	Scope AttributeScope
	Kind  AttributeKind

	// Enum
	EnumValues     []string
	EnumDefault    string
	HasEnumDefault bool

	// Float
	FloatMin, FloatMax float64
	FloatDefault       float64
	HasFloatDefault    bool

	// Int
	IntMin, IntMax int64
	IntDefault     int64
	HasIntDefault  bool

	// String
	StringDefault    string
	HasStringDefault bool
}

// Database is the root aggregate: a CAN network description.
type Database struct {
	Version              string
	BusConfig            string
	Nodes                []*Node
	Messages             map[uint32]*Message
	AttributeDefinitions []*AttributeDefinition
}

// NewDatabase returns an empty, ready-to-populate Database.
func NewDatabase() *Database {
	return &Database{
		Messages: make(map[uint32]*Message),
	}
}

// Clone returns a deep copy of db; mutating the copy never affects db.
func (db *Database) Clone() *Database {
	cp := &Database{
		Version:   db.Version,
		BusConfig: db.BusConfig,
		Messages:  make(map[uint32]*Message, len(db.Messages)),
	}
	for _, n := range db.Nodes {
		cp.Nodes = append(cp.Nodes, n.clone())
	}
	for id, m := range db.Messages {
		cp.Messages[id] = m.clone()
	}
	for _, a := range db.AttributeDefinitions {
		cpa := *a
		cpa.EnumValues = append([]string(nil), a.EnumValues...)
		cp.AttributeDefinitions = append(cp.AttributeDefinitions, &cpa)
	}
	return cp
}

// Node looks up a bus node by name.
func (db *Database) Node(name string) (*Node, bool) {
	for _, n := range db.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Message looks up a message by id.
func (db *Database) Message(id uint32) (*Message, bool) {
	m, ok := db.Messages[id]
	return m, ok
}

func cloneStringMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
