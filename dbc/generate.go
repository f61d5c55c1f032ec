package dbc

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// namespaceKeywords is the fixed NS_ block every generated DBC carries,
// regardless of which categories the source database actually used. It
// lists ten common keyword categories only; the others Vector tools list
// in their NS_ block (ENVVAR_DATA_, SGTYPE_, SIG_GROUP_, BO_TX_BU_, the
// *_REL_ categories and the rest) are not emitted.
var namespaceKeywords = []string{
	"NS_DESC_",
	"CM_",
	"BA_DEF_",
	"BA_",
	"VAL_",
	"CAT_DEF_",
	"CAT_",
	"FILTER",
	"BA_DEF_DEF_",
	"EV_DATA_",
}

// Generate writes db as DBC text to w, in the order Vector CANdb++ produces:
// VERSION, the NS_ keyword block, BS_, BU_, every message with its signals,
// then comments, attribute definitions and defaults, attribute values, and
// value tables.
func Generate(w io.Writer, db *Database) error {
	bw := &errWriter{w: w}

	bw.printf("VERSION \"%s\"\n\n", db.Version)

	bw.printf("NS_ :\n")
	for _, kw := range namespaceKeywords {
		bw.printf("\t%s\n", kw)
	}
	bw.printf("\n")

	bw.printf("BS_: %s\n\n", db.BusConfig)

	nodeNames := make([]string, len(db.Nodes))
	for i, n := range db.Nodes {
		nodeNames[i] = n.Name
	}
	bw.printf("BU_: %s\n\n", strings.Join(nodeNames, " "))

	for _, id := range sortedMessageIDs(db) {
		msg := db.Messages[id]
		bw.printf("BO_ %d %s: %d %s\n", msg.ID, msg.Name, msg.DLC, msg.Transmitter.Name)
		for _, name := range msg.OrderedSignals {
			bw.printf(" %s\n", generateSignalLine(msg.Signals[name]))
		}
		bw.printf("\n")
	}

	generateComments(bw, db)
	generateAttributeDefs(bw, db)
	generateAttributeDefaults(bw, db)
	generateAttributeValues(bw, db)
	generateValueTables(bw, db)

	return bw.err
}

func generateSignalLine(sig *Signal) string {
	var mux string
	switch {
	case sig.IsMultiplexDef:
		mux = " M"
	case sig.HasMultiplexID:
		mux = fmt.Sprintf(" m%d", sig.MultiplexID)
	}

	endian := "0"
	if sig.Endianness == LittleEndian {
		endian = "1"
	}
	sign := "+"
	if sig.Signed {
		sign = "-"
	}

	receivers := strings.Join(sig.ReceivingNodes, ",")
	if receivers == "" {
		receivers = "Vector__XXX"
	}

	return fmt.Sprintf("SG_ %s%s : %d|%d@%s%s (%s,%s) [%s|%s] \"%s\" %s",
		sig.Name, mux, sig.StartBit, sig.Length, endian, sign,
		formatFloat(sig.Factor), formatFloat(sig.Offset),
		formatFloat(sig.Min), formatFloat(sig.Max),
		sig.Unit, receivers)
}

func generateComments(bw *errWriter, db *Database) {
	for _, n := range db.Nodes {
		if n.HasComment {
			bw.printf("CM_ BU_ %s \"%s\";\n", n.Name, n.Comment)
		}
	}
	for _, id := range sortedMessageIDs(db) {
		msg := db.Messages[id]
		if msg.HasComment {
			bw.printf("CM_ BO_ %d \"%s\";\n", msg.ID, msg.Comment)
		}
		for _, name := range msg.OrderedSignals {
			sig := msg.Signals[name]
			if sig.HasComment {
				bw.printf("CM_ SG_ %d %s \"%s\";\n", msg.ID, sig.Name, sig.Comment)
			}
		}
	}
	bw.printf("\n")
}

func generateAttributeDefs(bw *errWriter, db *Database) {
	for _, def := range db.AttributeDefinitions {
		scope := scopeTag(def.Scope)
		switch def.Kind {
		case AttributeEnum:
			quoted := make([]string, len(def.EnumValues))
			for i, v := range def.EnumValues {
				quoted[i] = fmt.Sprintf("%q", v)
			}
			bw.printf("BA_DEF_ %s \"%s\" ENUM %s;\n", scope, def.Name, strings.Join(quoted, ","))
		case AttributeFloat:
			bw.printf("BA_DEF_ %s \"%s\" FLOAT %s %s;\n", scope, def.Name, formatFloat(def.FloatMin), formatFloat(def.FloatMax))
		case AttributeInt:
			bw.printf("BA_DEF_ %s \"%s\" INT %d %d;\n", scope, def.Name, def.IntMin, def.IntMax)
		case AttributeString:
			bw.printf("BA_DEF_ %s \"%s\" STRING;\n", scope, def.Name)
		}
	}
	bw.printf("\n")
}

func generateAttributeDefaults(bw *errWriter, db *Database) {
	for _, def := range db.AttributeDefinitions {
		switch def.Kind {
		case AttributeEnum:
			if def.HasEnumDefault {
				bw.printf("BA_DEF_DEF_ \"%s\" \"%s\";\n", def.Name, def.EnumDefault)
			}
		case AttributeFloat:
			if def.HasFloatDefault {
				bw.printf("BA_DEF_DEF_ \"%s\" %s;\n", def.Name, formatFloat(def.FloatDefault))
			}
		case AttributeInt:
			if def.HasIntDefault {
				bw.printf("BA_DEF_DEF_ \"%s\" %d;\n", def.Name, def.IntDefault)
			}
		case AttributeString:
			if def.HasStringDefault {
				bw.printf("BA_DEF_DEF_ \"%s\" \"%s\";\n", def.Name, def.StringDefault)
			}
		}
	}
	bw.printf("\n")
}

func generateAttributeValues(bw *errWriter, db *Database) {
	for _, n := range db.Nodes {
		for _, name := range sortedKeys(n.AttributeValues) {
			bw.printf("BA_ \"%s\" BU_ %s \"%s\";\n", name, n.Name, n.AttributeValues[name])
		}
	}
	for _, id := range sortedMessageIDs(db) {
		msg := db.Messages[id]
		for _, name := range sortedKeys(msg.AttributeValues) {
			bw.printf("BA_ \"%s\" BO_ %d \"%s\";\n", name, msg.ID, msg.AttributeValues[name])
		}
		for _, sigName := range msg.OrderedSignals {
			sig := msg.Signals[sigName]
			for _, name := range sortedKeys(sig.AttributeValues) {
				bw.printf("BA_ \"%s\" SG_ %d %s \"%s\";\n", name, msg.ID, sig.Name, sig.AttributeValues[name])
			}
		}
	}
	bw.printf("\n")
}

func generateValueTables(bw *errWriter, db *Database) {
	for _, id := range sortedMessageIDs(db) {
		msg := db.Messages[id]
		for _, sigName := range msg.OrderedSignals {
			sig := msg.Signals[sigName]
			if len(sig.ValueDescriptions) == 0 {
				continue
			}
			var b strings.Builder
			for _, raw := range sortedUint32Keys(sig.ValueDescriptions) {
				fmt.Fprintf(&b, "%d \"%s\" ", raw, sig.ValueDescriptions[raw])
			}
			bw.printf("VAL_ %d %s %s;\n", msg.ID, sig.Name, strings.TrimSpace(b.String()))
		}
	}
}

func sortedMessageIDs(db *Database) []uint32 {
	ids := make([]uint32, 0, len(db.Messages))
	for id := range db.Messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedUint32Keys(m map[uint32]string) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// formatFloat renders f the way Vector tools do: an integer value has no
// trailing ".0", anything else uses the shortest round-tripping form.
func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// errWriter lets the generator functions ignore individual write errors and
// check once at the end, matching the teacher's sticky-error style.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, err := fmt.Fprintf(e.w, format, args...)
	if err != nil {
		e.err = &WriteError{Err: err}
	}
}
