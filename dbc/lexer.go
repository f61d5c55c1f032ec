package dbc

import "strings"

// recordKind identifies which record a classified line belongs to (C1).
type recordKind int

const (
	kindIgnore recordKind = iota
	kindUnknown
	kindVersion
	kindBusConfig
	kindBusNodes
	kindMessage
	kindSignal
	kindComment
	kindValueTable
	kindAttributeDef
	kindAttributeDefault
	kindAttributeValue
)

// preamble tokens recognized by the lexer (§6 of the spec). Anything else is
// classified kindUnknown and skipped without error.
const (
	preVersion         = "VERSION"
	preBusConfig       = "BS_:"
	preBusNodes        = "BU_:"
	preMessage         = "BO_"
	preSignal          = "SG_"
	preComment         = "CM_"
	preValueTable      = "VAL_"
	preAttributeDef    = "BA_DEF_"
	preAttributeDefault = "BA_DEF_DEF_"
	preAttributeValue  = "BA_"
)

// classify identifies the record kind of a raw source line, tolerating the
// leading-space variant DBC writers sometimes use before " SG_" lines.
// A line is ignorable if empty or begins with a tab (continuation lines
// and the unsupported NS_ block body).
func classify(line string) (recordKind, string) {
	if line == "" || line[0] == '\t' {
		return kindIgnore, ""
	}

	trimmed := strings.TrimLeft(line, " ")
	if trimmed == "" {
		return kindIgnore, ""
	}

	token := firstToken(trimmed)

	switch token {
	case preVersion:
		return kindVersion, trimmed
	case preBusConfig:
		return kindBusConfig, trimmed
	case preBusNodes:
		return kindBusNodes, trimmed
	case preMessage:
		return kindMessage, trimmed
	case preSignal:
		return kindSignal, trimmed
	case preComment:
		return kindComment, trimmed
	case preValueTable:
		return kindValueTable, trimmed
	case preAttributeDefault:
		return kindAttributeDefault, trimmed
	case preAttributeDef:
		return kindAttributeDef, trimmed
	case preAttributeValue:
		return kindAttributeValue, trimmed
	default:
		return kindUnknown, trimmed
	}
}

// firstToken returns the whitespace-delimited leading token of s. Unlike the
// simple preamble table, BA_DEF_DEF_ and BA_DEF_ and BA_ all begin with
// "BA_"; classify relies on exact-token comparison (rather than prefix
// matching) against the full token so they never collide.
func firstToken(s string) string {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}
