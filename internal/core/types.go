package core

import (
	"fmt"
	"time"
)

// CellKind tags the value a Cell holds.
type CellKind int

const (
	CellNull CellKind = iota
	CellText
	CellTime
)

// Cell is a single table value. Decoders produce CellText; the typed cast
// produces CellTime for timestamp columns; normalization leaves only
// CellNull and CellText.
type Cell struct {
	Kind CellKind
	Text string
	Time time.Time
}

// TextCell returns a text cell holding s.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// TimeCell returns a temporal cell holding t.
func TimeCell(t time.Time) Cell { return Cell{Kind: CellTime, Time: t} }

// Row is an ordered sequence of cells aligned positionally with a Header.
type Row []Cell

// Header is the ordered, unique list of column names of a table.
type Header []string

// Candidate is a semantic type the inference engine can assign to a column.
type Candidate int

const (
	CandidateString Candidate = iota
	CandidateInteger
	CandidateFloat
	CandidateDecimal
	CandidateDate

	candidateCount
)

var candidateNames = [...]string{
	CandidateString:  "string",
	CandidateInteger: "integer",
	CandidateFloat:   "float",
	CandidateDecimal: "decimal",
	CandidateDate:    "date",
}

// Compile-time check that every candidate has a name.
var _ [len(candidateNames) - int(candidateCount)]struct{}

func (c Candidate) String() string {
	if c < 0 || c >= candidateCount {
		return fmt.Sprintf("candidate(%d)", int(c))
	}
	return candidateNames[c]
}

// DefaultCandidates is the candidate list the pipeline infers with.
var DefaultCandidates = []Candidate{
	CandidateString,
	CandidateInteger,
	CandidateFloat,
	CandidateDecimal,
	CandidateDate,
}

// TypeVector holds one inferred candidate per column. It is computed once
// from the sample and must not be modified afterwards.
type TypeVector []Candidate

// FieldType is the remote store's column type vocabulary.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldNumeric   FieldType = "numeric"
	FieldFloat     FieldType = "float"
	FieldTimestamp FieldType = "timestamp"
)

// fieldTypeOf maps every candidate onto the store vocabulary.
// Integers go to numeric because int columns may overflow.
var fieldTypeOf = [...]FieldType{
	CandidateString:  FieldText,
	CandidateInteger: FieldNumeric,
	CandidateFloat:   FieldFloat,
	CandidateDecimal: FieldNumeric,
	CandidateDate:    FieldTimestamp,
}

// Compile-time check that the mapping table covers every candidate.
var _ [len(fieldTypeOf) - int(candidateCount)]struct{}

// Field is one entry of the datastore_create field list.
type Field struct {
	ID   string    `json:"id"`
	Type FieldType `json:"type"`
}

// Record is one row keyed by header name. Values are nil or string.
type Record map[string]any

// Resource identifies the remote destination of one ingestion.
type Resource struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name,omitempty" yaml:"name"`
	URL      string         `json:"url,omitempty" yaml:"url"`
	Format   string         `json:"format,omitempty" yaml:"format"`
	MimeType string         `json:"mimetype,omitempty" yaml:"mimetype"`
	Path     string         `json:"-" yaml:"path"`
	Metadata map[string]any `json:"-" yaml:"metadata"`
}

// Result describes a completed resource run.
type Result struct {
	RunID        string        `json:"run_id"`
	ResourceID   string        `json:"resource_id"`
	HeaderOffset int           `json:"header_offset"`
	Header       Header        `json:"header"`
	Types        []string      `json:"types"`
	Fields       []Field       `json:"fields"`
	Records      int           `json:"records"`
	Batches      int           `json:"batches"`
	Duration     time.Duration `json:"duration"`
}
