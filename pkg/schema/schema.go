// Package schema turns the free-form text reported by the analysis program
// into typed records.
//
// An extraction Schema is an ordered list of fields. Each text field carries a
// regular expression that is evaluated independently against the whole run
// output, so the program may print metrics in any order or more than once.
// A field whose pattern does not match, or whose capture is empty, is
// recorded as missing; the record still has every schema field as a key.
//
// Field order is significant: it is preserved as column order by the tabular
// store and as column numbers by plot scripts.
//
//	base := schema.MustNew("default",
//	    schema.TextGroup("executions", `(\d+) schedules enumerated in ([\d.]+)s\.`, 1),
//	    schema.TextGroup("time", `(\d+) schedules enumerated in ([\d.]+)s\.`, 2),
//	)
//	rec := base.Apply("5 schedules enumerated in 3.2s.")
//	// executions=5 (integer), time=3.2 (float)
package schema

import (
	"fmt"
	"regexp"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// Params supplies values for parameter-bound fields. sweep.Point implements
// it with the dimensions of the invocation that produced the text.
type Params interface {
	Param(name string) (models.Value, bool)
}

// Field is one column of an extraction schema.
type Field struct {
	// Name is the column name
	Name string
	// Pattern locates the value in the run output. Empty for parameter fields.
	Pattern string
	// Group selects the capture group holding the value
	Group int
	// Param binds the field to a sweep dimension instead of the output text
	Param string

	groupSet bool
	re       *regexp.Regexp
}

// Text returns a field captured by the first group of pattern, or by the
// whole match when the pattern has no groups.
func Text(name, pattern string) Field {
	return Field{Name: name, Pattern: pattern}
}

// TextGroup returns a field captured by a specific group of pattern. Several
// fields may share one pattern and pick different groups.
func TextGroup(name, pattern string, group int) Field {
	return Field{Name: name, Pattern: pattern, Group: group, groupSet: true}
}

// FromParam returns a field filled from the sweep dimension of the same name
func FromParam(name string) Field {
	return Field{Name: name, Param: name}
}

// FromParamAs returns a field named name filled from the given dimension
func FromParamAs(name, dimension string) Field {
	return Field{Name: name, Param: dimension}
}

// IsParam reports whether the field is bound to a sweep dimension
func (f Field) IsParam() bool { return f.Param != "" }

func (f *Field) compile() error {
	if f.IsParam() {
		return nil
	}
	if f.Pattern == "" {
		return fmt.Errorf("field %q has neither a pattern nor a parameter", f.Name)
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	if !f.groupSet {
		if re.NumSubexp() > 0 {
			f.Group = 1
		} else {
			f.Group = 0
		}
	}
	if f.Group < 0 || f.Group > re.NumSubexp() {
		return fmt.Errorf("field %q: pattern has %d groups, group %d requested",
			f.Name, re.NumSubexp(), f.Group)
	}
	f.re = re
	return nil
}

// capture evaluates the field against the full text
func (f *Field) capture(text string) (string, bool) {
	m := f.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[f.Group], true
}

// Schema is an ordered, validated list of fields.
type Schema struct {
	name   string
	fields []Field
	names  []string
}

// New validates and compiles the fields. Field names must be unique.
func New(name string, fields ...Field) (*Schema, error) {
	s := &Schema{
		name:   name,
		fields: make([]Field, 0, len(fields)),
		names:  make([]string, 0, len(fields)),
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "schema field without a name").
				WithDetail("schema", name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, errors.New(errors.ErrorTypeValidation, "duplicate schema field").
				WithDetail("schema", name).
				WithDetail("field", f.Name)
		}
		if err := f.compile(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid schema field").
				WithDetail("schema", name)
		}
		seen[f.Name] = struct{}{}
		s.fields = append(s.fields, f)
		s.names = append(s.names, f.Name)
	}
	return s, nil
}

// MustNew is New for built-in schemas
func MustNew(name string, fields ...Field) *Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name
func (s *Schema) Name() string { return s.name }

// Len returns the number of fields
func (s *Schema) Len() int { return len(s.fields) }

// Names returns the field names in column order
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Fields returns a copy of the field list
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Extend returns a new schema with s's fields followed by extra. An extra
// field whose name already exists is dropped; earlier fields always win.
func (s *Schema) Extend(name string, extra ...Field) (*Schema, error) {
	fields := s.Fields()
	fields = append(fields, dedupe(s.names, extra)...)
	return New(name, fields...)
}

// MustExtend is Extend for built-in schemas
func (s *Schema) MustExtend(name string, extra ...Field) *Schema {
	out, err := s.Extend(name, extra...)
	if err != nil {
		panic(err)
	}
	return out
}

// Merge composes several schemas left to right under the same first-wins
// rule as Extend.
func Merge(name string, schemas ...*Schema) (*Schema, error) {
	var fields []Field
	var names []string
	for _, s := range schemas {
		add := dedupe(names, s.fields)
		fields = append(fields, add...)
		for _, f := range add {
			names = append(names, f.Name)
		}
	}
	return New(name, fields...)
}

// Family generates the fields of a parameterized schema family for
// k = from..to and concatenates them. Names produced by more than one k are
// kept only for the first.
//
//	schema.Family(0, 3, func(k int) []schema.Field {
//	    return []schema.Field{schema.Text(fmt.Sprintf("c%d_covered", k), ...)}
//	})
func Family(from, to int, gen func(k int) []Field) []Field {
	var out []Field
	var names []string
	for k := from; k <= to; k++ {
		add := dedupe(names, gen(k))
		out = append(out, add...)
		for _, f := range add {
			names = append(names, f.Name)
		}
	}
	return out
}

func dedupe(existing []string, fields []Field) []Field {
	seen := make(map[string]struct{}, len(existing)+len(fields))
	for _, n := range existing {
		seen[n] = struct{}{}
	}
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Apply extracts a record from text. Parameter fields are missing.
func (s *Schema) Apply(text string) *models.Record {
	rec, _ := s.Extract(text, nil)
	return rec
}

// ApplyPoint extracts a record from text, filling parameter fields from
// params.
func (s *Schema) ApplyPoint(text string, params Params) *models.Record {
	rec, _ := s.Extract(text, params)
	return rec
}

// Extract is ApplyPoint that also reports which text fields missed.
// The record always has every schema field, in order.
func (s *Schema) Extract(text string, params Params) (*models.Record, []string) {
	rec := models.MustRecord(s.names...)
	var misses []string
	for i := range s.fields {
		f := &s.fields[i]
		v := models.Missing()
		if f.IsParam() {
			if params != nil {
				if pv, ok := params.Param(f.Param); ok {
					v = pv
				}
			}
		} else if raw, ok := f.capture(text); ok {
			v = models.Coerce(raw)
		}
		if v.IsMissing() && !f.IsParam() {
			misses = append(misses, f.Name)
		}
		// Names come from the schema, so Set cannot fail.
		_ = rec.Set(f.Name, v)
	}
	return rec, misses
}
