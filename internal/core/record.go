package core

import (
	"strconv"
	"strings"
)

// Record is one data line split into exactly as many fields as the header has
// columns. Records are immutable.
type Record struct {
	fields []string
}

// NewRecord wraps fields without checking their count. Prefer BuildRecord.
func NewRecord(fields ...string) Record {
	out := make([]string, len(fields))
	copy(out, fields)
	return Record{fields: out}
}

// BuildRecord splits line and checks it against the expected column count.
// A mismatch returns a *ShapeError carrying the raw line.
// Blank lines must be filtered by the caller.
func BuildRecord(line string, expected int, split LineSplitter) (Record, error) {
	fields := split(line)
	if len(fields) != expected {
		return Record{}, &ShapeError{Line: line, Expected: expected, Actual: len(fields)}
	}
	return Record{fields: fields}, nil
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Get returns the field at index i, or false if i is out of range.
func (r Record) Get(i int) (string, bool) {
	if i < 0 || i >= len(r.fields) {
		return "", false
	}
	return r.fields[i], true
}

// NonBlank returns the field at index i if it exists and is not blank.
func (r Record) NonBlank(i int) (string, bool) {
	v, ok := r.Get(i)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Fields returns a copy of the field values.
func (r Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// String renders the record as Record("a", "b"). It is the record text used
// in rejection and conversion diagnostics.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString("Record(")
	for i, f := range r.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(f))
	}
	b.WriteString(")")
	return b.String()
}
