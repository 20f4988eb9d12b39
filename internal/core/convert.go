package core

// convert.go holds the per-candidate value parsers used both by type
// inference (does the value fit?) and by the typed cast (what does it
// become?).
//
// Source files are messy:
//   - dates arrive in ISO, US, dotted and long-month forms, with or without a time
//   - integers may carry thousands separators ("1,234")
//   - decimals are positional ("12.50"); floats may use exponents or NaN/Inf
//
// Parsers never see empty values; emptiness is handled by the caller.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	plainIntegerRegex   = regexp.MustCompile(`^[+-]?\d+$`)
	groupedIntegerRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+$`)
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// moved to the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
// Pure digit layouts such as 20060102 are deliberately absent so integer
// id columns are not mistaken for dates.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04:05 PM", "1/2/2006 3:04 PM",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006/01/02", "2006.01.02",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006", "02-Jan-2006",
	}
)

// candidateParser reports whether s fits a candidate and returns the cell
// the value becomes once cast.
type candidateParser func(s string) (Cell, bool)

var candidateParsers = [...]candidateParser{
	CandidateString:  parseString,
	CandidateInteger: parseInteger,
	CandidateFloat:   parseFloat,
	CandidateDecimal: parseDecimal,
	CandidateDate:    parseDate,
}

// Compile-time check that every candidate has a parser.
var _ [len(candidateParsers) - int(candidateCount)]struct{}

// Parse casts a non-empty raw value to candidate c. Strings are kept
// verbatim; every other candidate sees the trimmed value.
func (c Candidate) Parse(s string) (Cell, bool) {
	if c < 0 || c >= candidateCount {
		return Cell{}, false
	}
	if c == CandidateString {
		return parseString(s)
	}
	return candidateParsers[c](strings.TrimSpace(s))
}

func parseString(s string) (Cell, bool) {
	return TextCell(s), true
}

// parseInteger accepts plain and comma-grouped integers of any length.
// The cast strips grouping so the store receives canonical digits.
func parseInteger(s string) (Cell, bool) {
	if plainIntegerRegex.MatchString(s) {
		return TextCell(s), true
	}
	if groupedIntegerRegex.MatchString(s) {
		return TextCell(strings.ReplaceAll(s, ",", "")), true
	}
	return Cell{}, false
}

// parseDecimal accepts positional notation only; exponents are left to the
// float candidate. The original text is kept to avoid reformatting.
func parseDecimal(s string) (Cell, bool) {
	if strings.ContainsAny(s, "eE") {
		return Cell{}, false
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return Cell{}, false
	}
	return TextCell(s), true
}

// parseFloat accepts anything strconv.ParseFloat does, including
// exponents, NaN and Inf. Out-of-range values are rejected.
// parseFloat accepts finite numbers only; ParseFloat also reads the words
// NaN and Inf, which would type a text column as float.
func parseFloat(s string) (Cell, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Cell{}, false
	}
	return TextCell(s), true
}

func parseDate(s string) (Cell, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return Cell{}, false
	}
	return TimeCell(t), true
}

// ParseDate parses s with the supported layouts.
// Four-digit year layouts are tried first because they are unambiguous.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			// time.Parse maps 69-99 to 19xx and 00-68 to 20xx; apply our own pivot instead.
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// CleanCell removes common spreadsheet artifacts from a header cell:
// surrounding whitespace, the Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// isEmpty reports whether a raw value counts as missing.
func isEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
