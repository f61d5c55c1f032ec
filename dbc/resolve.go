package dbc

import "strconv"

// resolve is the C3 pass: it attaches every staged record collected while
// streaming to the Database entity it names, by node name or message id.
// Records that reference an entity absent from the Database (a comment for
// a message that was never declared, an attribute value for a deleted
// MaxCANID-filtered message) are dropped silently, mirroring the tolerant
// handling the rest of the parser gives to unrecognized input.
func resolve(
	db *Database,
	busNodeComments []pendingBusNodeComment,
	msgComments []pendingMessageComment,
	sigComments []pendingSignalComment,
	attrDefs []pendingAttributeDef,
	attrDefault map[string]string,
	attrValues []pendingAttributeValue,
	valueTables []pendingValueTable,
) {
	for _, c := range busNodeComments {
		if n, ok := db.Node(c.node); ok {
			n.Comment = c.text
			n.HasComment = true
		}
	}

	for _, c := range msgComments {
		if m, ok := db.Message(c.msgID); ok {
			m.Comment = c.text
			m.HasComment = true
		}
	}

	for _, c := range sigComments {
		if m, ok := db.Message(c.msgID); ok {
			if s, ok := m.Signals[c.signalName]; ok {
				s.Comment = c.text
				s.HasComment = true
			}
		}
	}

	for _, vt := range valueTables {
		m, ok := db.Message(vt.msgID)
		if !ok {
			continue
		}
		s, ok := m.Signals[vt.signalName]
		if !ok {
			continue
		}
		for raw, label := range vt.entries {
			s.ValueDescriptions[raw] = label
		}
	}

	resolveAttributeDefs(db, attrDefs, attrDefault)

	for _, av := range attrValues {
		applyAttributeValue(db, av)
	}
}

func resolveAttributeDefs(db *Database, attrDefs []pendingAttributeDef, attrDefault map[string]string) {
	for _, d := range attrDefs {
		parts := splitThree(d.text)
		name, rest, scopeTag := parts[0], parts[1], parts[2]

		var scope AttributeScope
		switch scopeTag {
		case "BU_":
			scope = ScopeNode
		case "BO_":
			scope = ScopeMessage
		default:
			scope = ScopeSignal
		}

		def := &AttributeDefinition{Name: name, Scope: scope, Kind: d.kind}

		switch d.kind {
		case AttributeEnum:
			def.EnumValues = parseEnumValues(rest)
			if raw, ok := attrDefault[name]; ok {
				def.EnumDefault = unquote(raw)
				def.HasEnumDefault = true
			}
		case AttributeFloat:
			lo, hi, ok := parseNumericRange(rest, "FLOAT")
			if ok {
				def.FloatMin, def.FloatMax = lo, hi
			}
			if raw, ok := attrDefault[name]; ok {
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					def.FloatDefault = v
					def.HasFloatDefault = true
				}
			}
		case AttributeInt:
			lo, hi, ok := parseIntRange(rest)
			if ok {
				def.IntMin, def.IntMax = lo, hi
			}
			if raw, ok := attrDefault[name]; ok {
				if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
					def.IntDefault = v
					def.HasIntDefault = true
				}
			}
		case AttributeString:
			if raw, ok := attrDefault[name]; ok {
				def.StringDefault = unquote(raw)
				def.HasStringDefault = true
			}
		}

		db.AttributeDefinitions = append(db.AttributeDefinitions, def)
	}
}

func applyAttributeValue(db *Database, av pendingAttributeValue) {
	switch av.scope {
	case ScopeNode:
		if n, ok := db.Node(av.target); ok {
			n.AttributeValues[av.name] = av.value
		}
	case ScopeMessage:
		if m, ok := db.Message(av.msgID); ok {
			m.AttributeValues[av.name] = av.value
		}
	case ScopeSignal:
		if m, ok := db.Message(av.msgID); ok {
			if s, ok := m.Signals[av.target]; ok {
				s.AttributeValues[av.name] = av.value
			}
		}
	}
}

func splitThree(s string) [3]string {
	var out [3]string
	start := 0
	field := 0
	for i := 0; i < len(s) && field < 2; i++ {
		if s[i] == 0 {
			out[field] = s[start:i]
			start = i + 1
			field++
		}
	}
	out[2] = s[start:]
	return out
}

func parseEnumValues(rest string) []string {
	var values []string
	inQuote := false
	start := -1
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '"':
			if !inQuote {
				inQuote = true
				start = i + 1
			} else {
				values = append(values, rest[start:i])
				inQuote = false
			}
		}
	}
	return values
}

func parseNumericRange(rest, prefix string) (float64, float64, bool) {
	body := rest
	if len(body) >= len(prefix) {
		body = body[len(prefix):]
	}
	var lo, hi float64
	n, err := scanTwoFloats(body, &lo, &hi)
	return lo, hi, err == nil && n == 2
}

func scanTwoFloats(s string, lo, hi *float64) (int, error) {
	fields := fieldsFloat(s)
	if len(fields) < 2 {
		return 0, errShortRange
	}
	var err error
	*lo, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	*hi, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, err
	}
	return 2, nil
}

func parseIntRange(rest string) (int64, int64, bool) {
	body := rest
	switch {
	case hasPrefixFold(body, "HEX"):
		body = body[3:]
	case hasPrefixFold(body, "INT"):
		body = body[3:]
	}
	fields := fieldsFloat(body)
	if len(fields) < 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseInt(fields[0], 10, 64)
	hi, err2 := strconv.ParseInt(fields[1], 10, 64)
	return lo, hi, err1 == nil && err2 == nil
}

func fieldsFloat(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

var errShortRange = &ParseError{Reason: "attribute range missing bound"}
