package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoCandidateFits = errors.New("no candidate type fits every sampled value")
	ErrUnmappedType    = errors.New("candidate type has no field type mapping")
)

// preferenceOrder lists candidates from most to least specific.
var preferenceOrder = []Candidate{
	CandidateDate,
	CandidateDecimal,
	CandidateFloat,
	CandidateInteger,
	CandidateString,
}

// InferTypes assigns one candidate to each of the width columns of sample.
//
// A candidate survives for a column only if every non-empty sampled value
// parses as that candidate. The most specific survivor in preferenceOrder
// wins; a column without any non-empty value is a string column.
func InferTypes(sample [][]string, header Header, candidates []Candidate) (TypeVector, error) {
	allowed := make(map[Candidate]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}

	types := make(TypeVector, len(header))
	for col := range header {
		alive := make(map[Candidate]bool, len(candidates))
		for c := range allowed {
			alive[c] = true
		}

		seen := false
		var lastFailed string
		for _, row := range sample {
			if col >= len(row) || isEmpty(row[col]) {
				continue
			}
			seen = true
			for c := range alive {
				if _, ok := c.Parse(row[col]); !ok {
					delete(alive, c)
					lastFailed = row[col]
				}
			}
			if len(alive) == 0 {
				break
			}
		}

		if !seen {
			types[col] = CandidateString
			continue
		}

		chosen := candidateCount
		for _, c := range preferenceOrder {
			if alive[c] {
				chosen = c
				break
			}
		}
		if chosen == candidateCount {
			return nil, &InferenceError{Column: header[col], Value: lastFailed, Err: ErrNoCandidateFits}
		}
		types[col] = chosen
	}
	return types, nil
}

// FieldTypes maps inferred candidates to store field types.
func FieldTypes(types TypeVector) ([]FieldType, error) {
	out := make([]FieldType, len(types))
	for i, c := range types {
		if c < 0 || int(c) >= len(fieldTypeOf) || fieldTypeOf[c] == "" {
			return nil, &InferenceError{Err: fmt.Errorf("%w: %s", ErrUnmappedType, c)}
		}
		out[i] = fieldTypeOf[c]
	}
	return out, nil
}

// Fields pairs header names with field types for datastore_create.
func Fields(header Header, types TypeVector) ([]Field, error) {
	if len(header) != len(types) {
		return nil, &InferenceError{Err: fmt.Errorf("header has %d columns, type vector has %d", len(header), len(types))}
	}
	fts, err := FieldTypes(types)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, len(header))
	for i, name := range header {
		fields[i] = Field{ID: name, Type: fts[i]}
	}
	return fields, nil
}

// Names returns the candidate names of the vector, for logging and results.
func (tv TypeVector) Names() []string {
	out := make([]string, len(tv))
	for i, c := range tv {
		out[i] = c.String()
	}
	return out
}
