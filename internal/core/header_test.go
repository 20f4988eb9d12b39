package core

import (
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestMakeHeaderUnique(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  Header
	}{
		{name: "duplicates suffixed", input: []string{"a", "a", "b"}, want: Header{"a", "a_2", "b"}},
		{name: "triple", input: []string{"x", "x", "x"}, want: Header{"x", "x_2", "x_3"}},
		{name: "suffix collision skipped", input: []string{"a", "a", "a_2"}, want: Header{"a", "a_3", "a_2"}},
		{name: "blank names", input: []string{"", "id", " "}, want: Header{"column_1", "id", "column_3"}},
		{name: "trimmed", input: []string{" id ", "id"}, want: Header{"id", "id_2"}},
		{name: "already unique", input: []string{"a", "b"}, want: Header{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MakeHeaderUnique(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MakeHeaderUnique(%q) = %q, want %q", tt.input, got, tt.want)
			}

			seen := make(map[string]bool)
			for _, n := range got {
				if seen[n] {
					t.Errorf("duplicate name %q in %q", n, got)
				}
				seen[n] = true
			}
		})
	}
}

func TestGuessHeader(t *testing.T) {
	tests := []struct {
		name       string
		sample     [][]string
		wantOffset int
		wantHeader []string
	}{
		{
			name:       "first row",
			sample:     [][]string{{"id", "name"}, {"1", "a"}, {"2", "b"}},
			wantOffset: 0,
			wantHeader: []string{"id", "name"},
		},
		{
			name: "title rows above header",
			sample: [][]string{
				{"Quarterly report", "", ""},
				{"", "", ""},
				{"id", "name", "amount"},
				{"1", "a", "10"},
				{"2", "b", "20"},
			},
			wantOffset: 2,
			wantHeader: []string{"id", "name", "amount"},
		},
		{
			name:       "tolerates one missing cell",
			sample:     [][]string{{"id", "", "amount"}, {"1", "a", "10"}, {"2", "b", "20"}},
			wantOffset: 0,
			wantHeader: []string{"id", "", "amount"},
		},
		{
			name:       "empty sample",
			sample:     nil,
			wantOffset: 0,
			wantHeader: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, header := GuessHeader(tt.sample)
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
			if !reflect.DeepEqual(header, tt.wantHeader) {
				t.Errorf("header = %q, want %q", header, tt.wantHeader)
			}
		})
	}
}

func decodeCSV(t *testing.T, data string) *Table {
	t.Helper()
	ts, err := Decode([]byte(data), "text/csv", "csv", DecodeOptions{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ts.Tables[0]
}

func drain(t *testing.T, it RowIterator) [][]string {
	t.Helper()
	defer it.Close()
	var rows [][]string
	for {
		row, err := it.Next()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestNewRowSet(t *testing.T) {
	data := strings.Join([]string{
		"Report,,",
		"id,name,id",
		"1,a,x",
		",,",
		"2,b,y,extra",
		"3",
	}, "\n")

	rs, err := NewRowSet(decodeCSV(t, data), 1000)
	if err != nil {
		t.Fatalf("NewRowSet: %v", err)
	}

	if rs.Offset != 1 {
		t.Errorf("Offset = %d, want 1", rs.Offset)
	}
	wantHeader := Header{"id", "name", "id_2", "column_4"}
	if !reflect.DeepEqual(rs.Header, wantHeader) {
		t.Errorf("Header = %q, want %q", rs.Header, wantHeader)
	}

	wantRows := [][]string{
		{"1", "a", "x", ""},
		{"2", "b", "y", "extra"},
		{"3", "", "", ""},
	}
	if !reflect.DeepEqual(rs.Sample, wantRows) {
		t.Errorf("Sample = %q, want %q", rs.Sample, wantRows)
	}

	// Rows restarts from the top each time and matches the sample.
	for i := 0; i < 2; i++ {
		it, err := rs.Rows()
		if err != nil {
			t.Fatalf("Rows: %v", err)
		}
		if got := drain(t, it); !reflect.DeepEqual(got, wantRows) {
			t.Errorf("pass %d rows = %q, want %q", i, got, wantRows)
		}
	}
}

func TestNewRowSet_SampleSmallerThanTable(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 50; i++ {
		b.WriteString("1\n")
	}

	rs, err := NewRowSet(decodeCSV(t, b.String()), 10)
	if err != nil {
		t.Fatalf("NewRowSet: %v", err)
	}
	if len(rs.Sample) != 9 {
		t.Errorf("sample rows = %d, want 9", len(rs.Sample))
	}

	it, err := rs.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if got := len(drain(t, it)); got != 50 {
		t.Errorf("streamed rows = %d, want 50", got)
	}
}

func TestNewRowSet_HeaderOnly(t *testing.T) {
	rs, err := NewRowSet(decodeCSV(t, "a,b\n"), 1000)
	if err != nil {
		t.Fatalf("NewRowSet: %v", err)
	}
	if len(rs.Sample) != 0 {
		t.Errorf("sample = %q, want empty", rs.Sample)
	}
	it, err := rs.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if got := drain(t, it); len(got) != 0 {
		t.Errorf("rows = %q, want none", got)
	}
}
