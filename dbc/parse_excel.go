package dbc

import (
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Excel column layout of the "DBC" worksheet produced by the signal
// spreadsheets some OEM tooling exports in place of a .dbc file. This
// mirrors the teacher's column layout exactly (CanId..TransmitterECU); the
// sheet carries no Factor/Offset/Min/Max/Unit columns, so a signal imported
// from Excel gets its position (StartBit/Length) but keeps the physical
// conversion fields at their zero value, same as the teacher leaves them.
const (
	excelCanID = iota
	excelCanName
	excelPeriodMs
	excelMsgLen
	excelStartByte
	excelStartBit
	excelBitWidth
	excelSignalName
	excelSignalSymbol
	excelTransmitter
	excelMaxColumn
)

// ParseExcel reads a "DBC" worksheet from filename and returns the Database
// it describes. Each row is one signal; all rows sharing a CAN id, adjacent
// or not, are folded into the same message, in the order they appear.
func ParseExcel(filename string) (*Database, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	defer f.Close()

	rows, err := f.GetRows("DBC")
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	db := NewDatabase()

	for idx, row := range rows {
		if idx == 0 {
			continue // header row
		}
		if len(row) < excelMaxColumn {
			return nil, &ParseError{Line: idx + 1, Text: "", Reason: "excel row has fewer columns than expected"}
		}

		id64, err := strconv.ParseUint(row[excelCanID], 10, 32)
		if err != nil {
			return nil, &ParseError{Line: idx + 1, Text: row[excelCanID], Reason: "malformed CAN id"}
		}
		id := uint32(id64)
		if id > MaxCANID {
			continue
		}

		msg, ok := db.Messages[id]
		if !ok {
			dlc, _ := strconv.Atoi(row[excelMsgLen])
			msg = newMessage(id, row[excelCanName], dlc, row[excelTransmitter])
			db.Messages[id] = msg
		}

		sig := newSignal(row[excelSignalName])
		sig.StartBit, _ = strconv.Atoi(row[excelStartBit])
		sig.Length, _ = strconv.Atoi(row[excelBitWidth])
		sig.Endianness = LittleEndian
		// Factor/Offset/Min/Max/Unit: no such columns in this worksheet.
		// Left at zero value, same as the teacher's commented-out TODOs.

		if _, exists := msg.Signals[sig.Name]; !exists {
			msg.Signals[sig.Name] = sig
			msg.OrderedSignals = append(msg.OrderedSignals, sig.Name)
		}
	}

	return db, nil
}
