package core

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// Candidate parser tests
// ----------------------------------------------------------------------------

func TestCandidateParse(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		input     string
		wantOK    bool
		wantText  string
	}{
		// Integer
		{name: "integer plain", candidate: CandidateInteger, input: "42", wantOK: true, wantText: "42"},
		{name: "integer negative", candidate: CandidateInteger, input: "-7", wantOK: true, wantText: "-7"},
		{name: "integer padded", candidate: CandidateInteger, input: " 12 ", wantOK: true, wantText: "12"},
		{name: "integer grouped", candidate: CandidateInteger, input: "1,234,567", wantOK: true, wantText: "1234567"},
		{name: "integer beyond int64", candidate: CandidateInteger, input: "123456789012345678901234", wantOK: true, wantText: "123456789012345678901234"},
		{name: "integer rejects decimal", candidate: CandidateInteger, input: "1.5", wantOK: false},
		{name: "integer rejects bad grouping", candidate: CandidateInteger, input: "12,34", wantOK: false},
		{name: "integer rejects text", candidate: CandidateInteger, input: "abc", wantOK: false},

		// Decimal
		{name: "decimal positional", candidate: CandidateDecimal, input: "12.50", wantOK: true, wantText: "12.50"},
		{name: "decimal accepts integer", candidate: CandidateDecimal, input: "12", wantOK: true, wantText: "12"},
		{name: "decimal rejects grouping", candidate: CandidateDecimal, input: "1,234.5", wantOK: false},
		{name: "decimal rejects NaN", candidate: CandidateDecimal, input: "NaN", wantOK: false},

		// Float
		{name: "float exponent", candidate: CandidateFloat, input: "1e10", wantOK: true, wantText: "1e10"},
		{name: "float rejects NaN", candidate: CandidateFloat, input: "NaN", wantOK: false},
		{name: "float rejects Inf", candidate: CandidateFloat, input: "Inf", wantOK: false},
		{name: "float rejects signed Infinity", candidate: CandidateFloat, input: "-Infinity", wantOK: false},
		{name: "float out of range", candidate: CandidateFloat, input: "1e400", wantOK: false},
		{name: "float rejects text", candidate: CandidateFloat, input: "twelve", wantOK: false},

		// String
		{name: "string accepts anything", candidate: CandidateString, input: "hello", wantOK: true, wantText: "hello"},

		// Out of range candidate
		{name: "unknown candidate", candidate: candidateCount, input: "1", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell, ok := tt.candidate.Parse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("%s.Parse(%q) ok = %v, want %v", tt.candidate, tt.input, ok, tt.wantOK)
			}
			if ok && cell.Text != tt.wantText {
				t.Errorf("%s.Parse(%q) = %q, want %q", tt.candidate, tt.input, cell.Text, tt.wantText)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      time.Time
	}{
		{name: "ISO date", input: "2020-01-01", wantValid: true, want: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "ISO datetime", input: "2020-01-01T10:30:00", wantValid: true, want: time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)},
		{name: "space datetime", input: "2020-01-01 10:30:00", wantValid: true, want: time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)},
		{name: "US slash", input: "03/15/2024", wantValid: true, want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "US slash no padding", input: "3/5/2024", wantValid: true, want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "long month", input: "Jan 15, 2024", wantValid: true, want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "slash ISO", input: "2024/03/15", wantValid: true, want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "compact digits are not dates", input: "20240315", wantValid: false},
		{name: "plain integer", input: "1", wantValid: false},
		{name: "empty", input: "", wantValid: false},
		{name: "invalid month", input: "2024-13-01", wantValid: false},
		{name: "text", input: "yesterday", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseDate(%q) valid = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	originalPivot := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = originalPivot }()
	TwoDigitYearPivot = 20

	pivotYear := time.Now().Year() + 20

	tests := []struct {
		name     string
		input    string
		wantYear int
	}{
		{name: "recent year stays in 2000s", input: "01/15/25", wantYear: 2025},
		{name: "99 is 1999", input: "01/15/99", wantYear: 1999},
		{name: "dash format", input: "1-15-85", wantYear: 1985},
		{name: "dot format", input: "01.15.99", wantYear: 1999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if !ok {
				t.Fatalf("ParseDate(%q) failed", tt.input)
			}
			if got.Year() != tt.wantYear {
				t.Errorf("ParseDate(%q).Year = %d, want %d (pivot year: %d)", tt.input, got.Year(), tt.wantYear, pivotYear)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "Excel formula with quotes", input: `="12345"`, want: "12345"},
		{name: "bare equals sign", input: "=SUM(A1)", want: "SUM(A1)"},
		{name: "quoted", input: `"name"`, want: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Closed enum tables
// ----------------------------------------------------------------------------

func TestFieldTypeMappingIsExhaustive(t *testing.T) {
	want := map[Candidate]FieldType{
		CandidateString:  FieldText,
		CandidateInteger: FieldNumeric,
		CandidateFloat:   FieldFloat,
		CandidateDecimal: FieldNumeric,
		CandidateDate:    FieldTimestamp,
	}

	for c := Candidate(0); c < candidateCount; c++ {
		fts, err := FieldTypes(TypeVector{c})
		if err != nil {
			t.Fatalf("FieldTypes(%s): %v", c, err)
		}
		if fts[0] != want[c] {
			t.Errorf("FieldTypes(%s) = %s, want %s", c, fts[0], want[c])
		}
		if c.String() == "" {
			t.Errorf("candidate %d has no name", int(c))
		}
	}
	if len(want) != int(candidateCount) {
		t.Errorf("test table covers %d candidates, enum has %d", len(want), candidateCount)
	}
}

func TestFieldTypes_UnmappedCandidate(t *testing.T) {
	_, err := FieldTypes(TypeVector{candidateCount})
	if err == nil {
		t.Fatal("expected error for unmapped candidate")
	}
	if _, ok := err.(*InferenceError); !ok {
		t.Errorf("err = %T, want *InferenceError", err)
	}
}
