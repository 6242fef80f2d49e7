// Package models provides the data model shared by every sweepline stage:
// typed field values, ordered records, and column descriptors.
//
// A Record is the typed result of applying one extraction schema to one
// run's raw text. Records keep their keys in schema order because that order
// becomes column order on disk and column numbers in plot scripts.
package models

import (
	"fmt"
	"strings"
)

// Record is an ordered mapping from field name to Value. The key set is fixed
// at construction; Set never adds keys, With returns an extended copy.
type Record struct {
	fields []string
	values []Value
	index  map[string]int
}

// NewRecord creates an all-missing record with exactly the given fields, in
// order. Duplicate or empty names are rejected.
func NewRecord(fields ...string) (*Record, error) {
	r := &Record{
		fields: make([]string, len(fields)),
		values: make([]Value, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, name := range fields {
		if name == "" {
			return nil, fmt.Errorf("field %d has an empty name", i+1)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		r.fields[i] = name
		r.index[name] = i
	}
	return r, nil
}

// MustRecord is NewRecord for statically known field lists
func MustRecord(fields ...string) *Record {
	r, err := NewRecord(fields...)
	if err != nil {
		panic(err)
	}
	return r
}

// Fields returns the field names in order
func (r *Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Values returns the values in field order
func (r *Record) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of fields
func (r *Record) Len() int { return len(r.fields) }

// Has reports whether name is one of the record's fields
func (r *Record) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Get returns the value of a field. The boolean is false for unknown
// fields; a known field that was not reported returns Missing and true.
func (r *Record) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Missing(), false
	}
	return r.values[i], true
}

// Value returns the value of a field, or Missing for unknown fields
func (r *Record) Value(name string) Value {
	v, _ := r.Get(name)
	return v
}

// At returns the value in column i (0-based)
func (r *Record) At(i int) Value { return r.values[i] }

// Set assigns a value to an existing field
func (r *Record) Set(name string, v Value) error {
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("record has no field %q", name)
	}
	r.values[i] = v
	return nil
}

// With returns a copy of r where name holds v. An existing field keeps its
// position; a new field is appended as the last column.
func (r *Record) With(name string, v Value) *Record {
	c := r.Clone()
	if i, ok := c.index[name]; ok {
		c.values[i] = v
		return c
	}
	c.index[name] = len(c.fields)
	c.fields = append(c.fields, name)
	c.values = append(c.values, v)
	return c
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	c := &Record{
		fields: make([]string, len(r.fields)),
		values: make([]Value, len(r.values)),
		index:  make(map[string]int, len(r.index)),
	}
	copy(c.fields, r.fields)
	copy(c.values, r.values)
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

// SameShape reports whether both records have the same fields in the same
// order
func (r *Record) SameShape(o *Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for i := range r.fields {
		if r.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both records have the same shape and values
func (r *Record) Equal(o *Record) bool {
	if !r.SameShape(o) {
		return false
	}
	for i := range r.values {
		if !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// Map returns the record as a plain map. Missing values map to nil.
func (r *Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.fields))
	for i, name := range r.fields {
		m[name] = r.values[i].Interface()
	}
	return m
}

// String renders the record as name=value pairs for logging
func (r *Record) String() string {
	var b strings.Builder
	for i, name := range r.fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(r.values[i].String())
	}
	return b.String()
}

// Interface returns the Go value held by v: int64, float64, string or nil
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Schema describes the column layout of a record sequence.
// It is produced by column type inference and consumed by exporters.
type Schema struct {
	// Name identifies the record set (e.g., experiment kind)
	Name string `json:"name"`

	// Fields in column order
	Fields []Field `json:"fields"`
}

// Field describes one column
type Field struct {
	// Name is the field identifier
	Name string `json:"name"`

	// Type is the widest kind observed in the column. KindMissing means no
	// record reported the field.
	Type Kind `json:"type"`

	// Nullable is true when at least one record had the field missing
	Nullable bool `json:"nullable"`
}
