// Command dbcctl loads a DBC or Excel signal sheet, prints a summary of its
// contents, and can decode a single sample CAN frame against it.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/astuff/can-dbc-loader/base"
	"github.com/astuff/can-dbc-loader/dbc"
)

var log = base.Logger

func main() {
	var (
		path      = flag.String("dbc", "", "path to a .dbc file")
		excelPath = flag.String("excel", "", "path to a signal spreadsheet (DBC worksheet)")
		emit      = flag.String("emit", "", "write the loaded database back out as DBC text to this path")
		decodeID  = flag.Uint("decode-id", 0, "CAN id to decode --payload against")
		payload   = flag.String("payload", "", "hex-encoded payload to decode alongside --decode-id")
	)
	flag.Parse()

	if *path == "" && *excelPath == "" {
		fmt.Fprintln(os.Stderr, "dbcctl: one of -dbc or -excel is required")
		os.Exit(2)
	}

	var db *dbc.Database
	var err error

	switch {
	case *path != "":
		db, err = loadDBC(*path)
	case *excelPath != "":
		db, err = dbc.ParseExcel(*excelPath)
	}
	if err != nil {
		log.Fatalln(err)
	}

	printSummary(db)

	if *emit != "" {
		if err := writeDBC(db, *emit); err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("wrote %s\n", *emit)
	}

	if *payload != "" {
		if err := decodeSample(db, uint32(*decodeID), *payload); err != nil {
			log.Fatalln(err)
		}
	}
}

func loadDBC(path string) (*dbc.Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dbc.NewParser(f).Parse()
}

func writeDBC(db *dbc.Database, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dbc.Generate(f, db)
}

func printSummary(db *dbc.Database) {
	fmt.Printf("version: %q\n", db.Version)
	fmt.Printf("nodes (%d): %s\n", len(db.Nodes), nodeNames(db))
	fmt.Printf("messages: %d\n", len(db.Messages))
	fmt.Printf("attribute definitions: %d\n", len(db.AttributeDefinitions))

	ids := make([]uint32, 0, len(db.Messages))
	for id := range db.Messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		msg := db.Messages[id]
		fmt.Printf("  %d %s (dlc=%d, tx=%s, signals=%d)\n",
			msg.ID, msg.Name, msg.DLC, msg.Transmitter.Name, len(msg.OrderedSignals))
	}
}

func nodeNames(db *dbc.Database) string {
	names := make([]string, len(db.Nodes))
	for i, n := range db.Nodes {
		names[i] = n.Name
	}
	return strings.Join(names, ", ")
}

func decodeSample(db *dbc.Database, id uint32, hexPayload string) error {
	msg, ok := db.Message(id)
	if !ok {
		return fmt.Errorf("no message with id %d in database", id)
	}

	payload, err := hex.DecodeString(hexPayload)
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}

	tc := dbc.NewTranscoder(msg)
	fmt.Printf("decoding %s (id=%d) payload=%x\n", msg.Name, msg.ID, payload)
	for _, decoded := range tc.Decode(payload) {
		if decoded.Err != nil {
			fmt.Printf("  %s: error: %v\n", decoded.Name, decoded.Err)
			continue
		}
		fmt.Printf("  %s = %v\n", decoded.Name, decoded.Value)
	}
	return nil
}
