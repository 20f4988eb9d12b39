package core

import (
	"fmt"
	"io"
)

// GuessHeader locates the header row in a raw sample. It computes the modal
// number of non-empty cells per row and returns the first row having at
// least modal-1 non-empty cells. A sample with no non-empty cell yields
// (0, nil).
func GuessHeader(sample [][]string) (int, []string) {
	freq := make(map[int]int)
	for _, row := range sample {
		if n := nonEmptyCount(row); n > 0 {
			freq[n]++
		}
	}
	if len(freq) == 0 {
		return 0, nil
	}

	modal, best := 0, 0
	for n, c := range freq {
		// Ties go to the wider row so the result does not depend on map order.
		if c > best || (c == best && n > modal) {
			modal, best = n, c
		}
	}

	for i, row := range sample {
		if n := nonEmptyCount(row); n > 0 && n >= modal-1 {
			return i, row
		}
	}
	return 0, nil
}

func nonEmptyCount(row []string) int {
	n := 0
	for _, v := range row {
		if !isEmpty(v) {
			n++
		}
	}
	return n
}

// usedWidth is the index after the last non-empty cell.
func usedWidth(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if !isEmpty(row[i]) {
			return i + 1
		}
	}
	return 0
}

// MakeHeaderUnique cleans header names, names blank ones column_N (1-based
// position) and suffixes repeats with _2, _3 and so on, skipping any
// suffix that another column already uses.
func MakeHeaderUnique(names []string) Header {
	out := make(Header, len(names))
	reserved := make(map[string]bool, len(names))
	for i, n := range names {
		n = CleanCell(n)
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = n
		reserved[n] = true
	}

	used := make(map[string]bool, len(out))
	for i, n := range out {
		if !used[n] {
			used[n] = true
			continue
		}
		for k := 2; ; k++ {
			candidate := fmt.Sprintf("%s_%d", n, k)
			if !used[candidate] && !reserved[candidate] {
				out[i] = candidate
				used[candidate] = true
				break
			}
		}
	}
	return out
}

// alignRow pads row with empty cells or truncates it to width.
func alignRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// RowSet is a table with its header located and a post-header sample taken.
type RowSet struct {
	Table  *Table
	Offset int
	Header Header
	Sample [][]string
}

// NewRowSet samples the first sampleSize rows of t, guesses the header and
// keeps the rows after it as the inference sample. The header is widened
// to cover sampled data that extends past it.
func NewRowSet(t *Table, sampleSize int) (*RowSet, error) {
	raw, err := t.Sample(sampleSize)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	offset, headerRow := GuessHeader(raw)
	if headerRow == nil {
		return nil, &DecodeError{Err: ErrNoHeader}
	}

	width := usedWidth(headerRow)
	body := raw[offset+1:]
	for _, row := range body {
		width = max(width, usedWidth(row))
	}

	rs := &RowSet{
		Table:  t,
		Offset: offset,
		Header: MakeHeaderUnique(alignRow(headerRow, width)),
	}
	for _, row := range body {
		if nonEmptyCount(row) == 0 {
			continue
		}
		rs.Sample = append(rs.Sample, alignRow(row, width))
	}
	return rs, nil
}

// Rows streams every data row after the header, aligned to the header
// width. Blank rows are skipped.
func (rs *RowSet) Rows() (RowIterator, error) {
	it, err := rs.Table.Rows()
	if err != nil {
		return nil, err
	}
	for i := 0; i <= rs.Offset; i++ {
		if _, err := it.Next(); err != nil {
			it.Close()
			if err == io.EOF {
				return emptyRows{}, nil
			}
			return nil, err
		}
	}
	return &bodyRows{it: it, width: len(rs.Header)}, nil
}

type bodyRows struct {
	it    RowIterator
	width int
}

func (b *bodyRows) Next() ([]string, error) {
	for {
		row, err := b.it.Next()
		if err != nil {
			return nil, err
		}
		if nonEmptyCount(row) > 0 {
			return alignRow(row, b.width), nil
		}
	}
}

func (b *bodyRows) Close() error { return b.it.Close() }

type emptyRows struct{}

func (emptyRows) Next() ([]string, error) { return nil, io.EOF }
func (emptyRows) Close() error            { return nil }
