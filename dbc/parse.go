package dbc

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// pendingBusNodeComment, pendingMessageComment and pendingSignalComment are
// the intermediate comment-carrier records of §3: produced while streaming,
// consumed by the resolver, never exposed afterward.
type pendingBusNodeComment struct {
	node, text string
}

type pendingMessageComment struct {
	msgID uint32
	text  string
}

type pendingSignalComment struct {
	msgID      uint32
	signalName string
	text       string
}

type pendingAttributeDef struct {
	kind AttributeKind
	text string
}

type pendingAttributeValue struct {
	name   string
	scope  AttributeScope
	msgID  uint32
	target string // node name, or signal name (message scope uses msgID alone)
	value  string
}

type pendingValueTable struct {
	msgID      uint32
	signalName string
	entries    map[uint32]string
}

// Parser incrementally builds a Database from a DBC text stream. A single
// Parser parses exactly one stream via Parse.
type Parser struct {
	r    io.Reader
	line int

	db *Database

	curMsg *Message

	versionSet  bool
	busCfgSet   bool
	busNodesSet bool

	busNodeComments []pendingBusNodeComment
	msgComments     []pendingMessageComment
	sigComments     []pendingSignalComment

	attrDefs    []pendingAttributeDef
	attrDefault map[string]string // attr name -> raw literal text (still quoted if string-like)
	attrValues  []pendingAttributeValue
	valueTables []pendingValueTable
}

// NewParser returns a Parser reading DBC text from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{
		r:           r,
		db:          NewDatabase(),
		attrDefault: make(map[string]string),
	}
}

// Parse reads the entire stream and returns the resolved Database, or the
// first ReadError/ParseError encountered. Parsing aborts on the first
// ParseError; the partially built Database is discarded.
func (p *Parser) Parse() (*Database, error) {
	scanner := bufio.NewScanner(p.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		p.line++
		line := strings.TrimRight(scanner.Text(), "\r")

		kind, text := classify(line)
		switch kind {
		case kindIgnore, kindUnknown:
			continue
		case kindVersion:
			if !p.versionSet {
				p.parseVersion(text)
				p.versionSet = true
			}
		case kindBusConfig:
			if !p.busCfgSet {
				p.parseBusConfig(text)
				p.busCfgSet = true
			}
		case kindBusNodes:
			if !p.busNodesSet {
				p.parseBusNodes(text)
				p.busNodesSet = true
			}
		case kindMessage:
			if err := p.parseMessage(text); err != nil {
				return nil, err
			}
		case kindSignal:
			if err := p.parseSignal(text); err != nil {
				return nil, err
			}
		case kindComment:
			if err := p.parseComment(scanner, text); err != nil {
				return nil, err
			}
		case kindValueTable:
			if err := p.parseValueTable(text); err != nil {
				return nil, err
			}
		case kindAttributeDef:
			p.parseAttributeDef(text)
		case kindAttributeDefault:
			p.parseAttributeDefault(text)
		case kindAttributeValue:
			if err := p.parseAttributeValue(text); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ReadError{Err: err}
	}

	db := p.db
	resolve(db, p.busNodeComments, p.msgComments, p.sigComments,
		p.attrDefs, p.attrDefault, p.attrValues, p.valueTables)
	return db, nil
}

func (p *Parser) parseVersion(line string) {
	// VERSION "1.0"
	first := strings.IndexByte(line, '"')
	if first < 0 {
		return
	}
	last := strings.LastIndexByte(line, '"')
	if last <= first {
		return
	}
	p.db.Version = line[first+1 : last]
}

func (p *Parser) parseBusConfig(line string) {
	// BS_: <speed>
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	p.db.BusConfig = strings.TrimSpace(line[idx+1:])
}

func (p *Parser) parseBusNodes(line string) {
	// BU_: NODE1 NODE2 ...
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	fields := strings.Fields(line[idx+1:])
	for _, name := range fields {
		p.db.Nodes = append(p.db.Nodes, newNode(name))
	}
}

var messageRe = regexp.MustCompile(`^BO_\s+(\d+)\s+([^:\s]+)\s*:\s*(\d+)\s+(\S+)`)

func (p *Parser) parseMessage(line string) error {
	m := messageRe.FindStringSubmatch(line)
	if m == nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed BO_ record"}
	}

	id64, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed message id"}
	}
	dlc, err := strconv.Atoi(m[3])
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed DLC"}
	}

	id := uint32(id64)
	msg := newMessage(id, m[2], dlc, m[4])

	// Messages above MaxCANID are silently dropped (§4.3), but they still
	// become the active context for any SG_ lines that follow, matching the
	// streaming single-pass structure; they are simply never saved.
	if id <= MaxCANID {
		p.db.Messages[id] = msg
	}
	p.curMsg = msg
	return nil
}

var signalRe = regexp.MustCompile(
	`^SG_\s+(\S+)\s*(M|m\d+)?\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|\]]*)\|([^\]]*)\]\s*"([^"]*)"\s*(.*)$`)

func (p *Parser) parseSignal(line string) error {
	if p.curMsg == nil {
		return &ParseError{Line: p.line, Text: line, Reason: "SG_ line with no active message"}
	}

	m := signalRe.FindStringSubmatch(line)
	if m == nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed SG_ record"}
	}

	name := m[1]
	if _, exists := p.curMsg.Signals[name]; exists {
		return &ParseError{Line: p.line, Text: line, Reason: "duplicate signal name within message"}
	}

	sig := newSignal(name)

	switch {
	case m[2] == "M":
		sig.IsMultiplexDef = true
	case strings.HasPrefix(m[2], "m"):
		id, err := strconv.ParseUint(m[2][1:], 10, 32)
		if err != nil {
			return &ParseError{Line: p.line, Text: line, Reason: "malformed multiplex id"}
		}
		sig.HasMultiplexID = true
		sig.MultiplexID = uint32(id)
	}

	startBit, _ := strconv.Atoi(m[3])
	length, _ := strconv.Atoi(m[4])
	sig.StartBit = startBit
	sig.Length = length

	if m[5] == "1" {
		sig.Endianness = LittleEndian
	} else {
		sig.Endianness = BigEndian
	}
	sig.Signed = m[6] == "-"

	factor, err := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed factor"}
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(m[8]), 64)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed offset"}
	}
	sig.Factor = factor
	sig.Offset = offset

	minVal, err := strconv.ParseFloat(strings.TrimSpace(m[9]), 64)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed min"}
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(m[10]), 64)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed max"}
	}
	sig.Min = minVal
	sig.Max = maxVal

	sig.Unit = m[11]

	receivers := strings.Split(strings.TrimSpace(m[12]), ",")
	for _, r := range receivers {
		r = strings.TrimSpace(r)
		if r == "" || r == "Vector__XXX" {
			continue
		}
		sig.ReceivingNodes = append(sig.ReceivingNodes, r)
	}

	p.curMsg.Signals[name] = sig
	p.curMsg.OrderedSignals = append(p.curMsg.OrderedSignals, name)
	return nil
}

func (p *Parser) parseComment(scanner *bufio.Scanner, firstLine string) error {
	full := firstLine
	for !strings.Contains(full, "\";") {
		if !scanner.Scan() {
			return &ParseError{Line: p.line, Text: firstLine, Reason: "unterminated comment"}
		}
		p.line++
		full += " " + strings.TrimRight(scanner.Text(), "\r")
	}

	quoteStart := strings.IndexByte(full, '"')
	if quoteStart < 0 {
		return &ParseError{Line: p.line, Text: full, Reason: "malformed CM_ record"}
	}
	quoteEnd := strings.LastIndex(full, "\";")
	if quoteEnd < quoteStart {
		return &ParseError{Line: p.line, Text: full, Reason: "unmatched closing quote"}
	}
	text := full[quoteStart+1 : quoteEnd]

	header := strings.Fields(full[:quoteStart])
	if len(header) < 2 {
		return nil
	}

	switch header[1] {
	case "BU_":
		if len(header) < 3 {
			return nil
		}
		p.busNodeComments = append(p.busNodeComments, pendingBusNodeComment{node: header[2], text: text})
	case "BO_":
		if len(header) < 3 {
			return nil
		}
		id, err := strconv.ParseUint(header[2], 10, 32)
		if err != nil {
			return &ParseError{Line: p.line, Text: full, Reason: "malformed message id in CM_"}
		}
		p.msgComments = append(p.msgComments, pendingMessageComment{msgID: uint32(id), text: text})
	case "SG_":
		if len(header) < 4 {
			return nil
		}
		id, err := strconv.ParseUint(header[2], 10, 32)
		if err != nil {
			return &ParseError{Line: p.line, Text: full, Reason: "malformed message id in CM_"}
		}
		p.sigComments = append(p.sigComments, pendingSignalComment{msgID: uint32(id), signalName: header[3], text: text})
	default:
		// Bare CM_ "<text>"; is a database-level comment. The data model
		// exposes no such field (§3), so it is parsed but not retained.
	}
	return nil
}

var valueTableRe = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\S+)\s+(.*);\s*$`)
var valueEntryRe = regexp.MustCompile(`(\d+)\s*"([^"]*)"`)

func (p *Parser) parseValueTable(line string) error {
	m := valueTableRe.FindStringSubmatch(line)
	if m == nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed VAL_ record"}
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return &ParseError{Line: p.line, Text: line, Reason: "malformed message id in VAL_"}
	}

	entries := make(map[uint32]string)
	for _, e := range valueEntryRe.FindAllStringSubmatch(m[3], -1) {
		v, err := strconv.ParseUint(e[1], 10, 32)
		if err != nil {
			continue
		}
		entries[uint32(v)] = e[2]
	}

	p.valueTables = append(p.valueTables, pendingValueTable{
		msgID:      uint32(id),
		signalName: m[2],
		entries:    entries,
	})
	return nil
}

var attrDefRe = regexp.MustCompile(`^BA_DEF_\s+(BU_|BO_|SG_)?\s*"([^"]+)"\s+(.*);\s*$`)

func (p *Parser) parseAttributeDef(line string) {
	m := attrDefRe.FindStringSubmatch(line)
	if m == nil {
		return
	}

	scopeTok, name, rest := m[1], m[2], strings.TrimSpace(m[3])
	if scopeTok == "" {
		// Global (database-scoped) attribute definitions have no
		// representation in the data model (§3 restricts scope to
		// Node/Message/Signal); skip rather than fail the whole parse.
		return
	}

	var scope AttributeScope
	switch scopeTok {
	case "BU_":
		scope = ScopeNode
	case "BO_":
		scope = ScopeMessage
	case "SG_":
		scope = ScopeSignal
	}

	var kind AttributeKind
	switch {
	case strings.HasPrefix(rest, "ENUM"):
		kind = AttributeEnum
	case strings.HasPrefix(rest, "FLOAT"):
		kind = AttributeFloat
	case strings.HasPrefix(rest, "HEX"), strings.HasPrefix(rest, "INT"):
		kind = AttributeInt
	case strings.HasPrefix(rest, "STRING"):
		kind = AttributeString
	default:
		return
	}

	p.attrDefs = append(p.attrDefs, pendingAttributeDef{
		kind: kind,
		text: name + "\x00" + rest + "\x00" + scopeTag(scope),
	})
}

func scopeTag(s AttributeScope) string {
	switch s {
	case ScopeNode:
		return "BU_"
	case ScopeMessage:
		return "BO_"
	default:
		return "SG_"
	}
}

var attrDefaultRe = regexp.MustCompile(`^BA_DEF_DEF_\s+"([^"]+)"\s+(.*);\s*$`)

func (p *Parser) parseAttributeDefault(line string) {
	m := attrDefaultRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	p.attrDefault[m[1]] = strings.TrimSpace(m[2])
}

var attrValueRe = regexp.MustCompile(`^BA_\s+"([^"]+)"\s+(?:(BU_|BO_|SG_)\s+)?(.*);\s*$`)

func (p *Parser) parseAttributeValue(line string) error {
	m := attrValueRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	name, scopeTok, rest := m[1], m[2], strings.TrimSpace(m[3])
	fields := strings.Fields(rest)

	switch scopeTok {
	case "BU_":
		if len(fields) < 2 {
			return nil
		}
		p.attrValues = append(p.attrValues, pendingAttributeValue{
			name: name, scope: ScopeNode, target: fields[0],
			value: unquote(strings.Join(fields[1:], " ")),
		})
	case "BO_":
		if len(fields) < 2 {
			return nil
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil
		}
		p.attrValues = append(p.attrValues, pendingAttributeValue{
			name: name, scope: ScopeMessage, msgID: uint32(id),
			value: unquote(strings.Join(fields[1:], " ")),
		})
	case "SG_":
		if len(fields) < 3 {
			return nil
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil
		}
		p.attrValues = append(p.attrValues, pendingAttributeValue{
			name: name, scope: ScopeSignal, msgID: uint32(id), target: fields[1],
			value: unquote(strings.Join(fields[2:], " ")),
		})
	default:
		// Global attribute value assignment; not addressable to any entity
		// in the data model, dropped the same way unmatched comments are.
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
