package core

import "time"

const (
	isoLayout     = "2006-01-02T15:04:05.999999"
	isoZoneLayout = "2006-01-02T15:04:05.999999Z07:00"
)

// CastRow converts a raw aligned row into typed cells using the locked
// type vector. Each value goes through its column's candidate parser, so
// date columns yield CellTime and grouped integers lose their separators.
// A value that does not fit its column (possible past the sample) stays
// text unchanged; the store decides whether to accept it.
func CastRow(raw []string, types TypeVector) Row {
	row := make(Row, len(raw))
	for i, v := range raw {
		if isEmpty(v) || i >= len(types) {
			row[i] = TextCell(v)
			continue
		}
		if cell, ok := types[i].Parse(v); ok {
			row[i] = cell
			continue
		}
		row[i] = TextCell(v)
	}
	return row
}

// NormalizeCell makes a cell safe for JSON transport: empty text becomes
// null and temporal values become ISO-8601 text. Applying it twice gives
// the same result as applying it once.
func NormalizeCell(c Cell) Cell {
	switch c.Kind {
	case CellTime:
		return TextCell(FormatTimestamp(c.Time))
	case CellText:
		if isEmpty(c.Text) {
			return Cell{Kind: CellNull}
		}
		return c
	default:
		return Cell{Kind: CellNull}
	}
}

// FormatTimestamp renders t as ISO-8601 without a zone when its offset is
// zero (naive, UTC, "Z" or "+00:00" input alike) and with the numeric
// offset otherwise. Fractional seconds appear only when set.
func FormatTimestamp(t time.Time) string {
	if _, offset := t.Zone(); offset == 0 {
		return t.UTC().Format(isoLayout)
	}
	return t.Format(isoZoneLayout)
}

// NormalizeRow applies NormalizeCell to every cell of row in place.
func NormalizeRow(row Row) Row {
	for i, c := range row {
		row[i] = NormalizeCell(c)
	}
	return row
}

// Record keys a normalized row by header name. Null cells become nil.
func (r Row) Record(header Header) Record {
	rec := make(Record, len(header))
	for i, name := range header {
		if i >= len(r) || r[i].Kind != CellText {
			rec[name] = nil
			continue
		}
		rec[name] = r[i].Text
	}
	return rec
}
