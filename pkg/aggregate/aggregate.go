// Package aggregate filters, sorts, groups and derives fields over record
// sequences read back from data files.
//
// Every operation is pure: inputs are never modified and results are new
// slices (records are shared when unchanged, copied when a field changes).
// Operations that depend on all records having the same fields check that
// up front and fail with an integrity error rather than padding or
// dropping fields.
//
// A typical report pipeline mirrors the steps of a benchmark processor:
//
//	recs = aggregate.Filter(recs, aggregate.Match(map[string]models.Value{
//	    "adds": models.Int(2), "removes": models.Int(1),
//	}))
//	recs, _ = aggregate.Sort(recs, "mode", "adds")
//	recs, _ = aggregate.GroupReduce(recs, []string{"mode", "adds"}, []string{"time"})
//	cols, _ := aggregate.Columns(recs)
package aggregate

import (
	"slices"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// Predicate selects records
type Predicate func(*models.Record) bool

// Filter returns the records satisfying pred, in order
func Filter(records []*models.Record, pred Predicate) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Eq matches records whose field equals v. Numbers compare by value, so
// Int(2) matches Float(2.0).
func Eq(field string, v models.Value) Predicate {
	return func(r *models.Record) bool {
		return Compare(r.Value(field), v) == 0
	}
}

// Match matches records equal to every field/value pair
func Match(want map[string]models.Value) Predicate {
	preds := make([]Predicate, 0, len(want))
	for f, v := range want {
		preds = append(preds, Eq(f, v))
	}
	return And(preds...)
}

// AtLeast matches records whose numeric field is >= x. Missing and
// non-numeric values never match.
func AtLeast(field string, x float64) Predicate {
	return func(r *models.Record) bool {
		n, ok := r.Value(field).Number()
		return ok && n >= x
	}
}

// AtMost matches records whose numeric field is <= x
func AtMost(field string, x float64) Predicate {
	return func(r *models.Record) bool {
		n, ok := r.Value(field).Number()
		return ok && n <= x
	}
}

// Present matches records where field is not missing
func Present(field string) Predicate {
	return func(r *models.Record) bool {
		return !r.Value(field).IsMissing()
	}
}

// Not negates p
func Not(p Predicate) Predicate {
	return func(r *models.Record) bool { return !p(r) }
}

// And matches when every predicate matches. And() matches everything.
func And(ps ...Predicate) Predicate {
	return func(r *models.Record) bool {
		for _, p := range ps {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches
func Or(ps ...Predicate) Predicate {
	return func(r *models.Record) bool {
		for _, p := range ps {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// Compare is a total order over values: missing sorts first, then numbers
// by value (integers and floats compare together), then strings
// lexically.
func Compare(a, b models.Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		x, _ := a.Number()
		y, _ := b.Number()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		x, _ := a.Str()
		y, _ := b.Str()
		return strings.Compare(x, y)
	default:
		return 0
	}
}

func rank(v models.Value) int {
	switch v.Kind() {
	case models.KindInt, models.KindFloat:
		return 1
	case models.KindString:
		return 2
	default:
		return 0
	}
}

// Sort returns the records ordered by keys, left to right. The sort is
// stable: records with equal keys keep their original order.
func Sort(records []*models.Record, keys ...string) ([]*models.Record, error) {
	if err := requireFields(records, "sort", keys...); err != nil {
		return nil, err
	}
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b *models.Record) int {
		return compareKeys(a, b, keys)
	})
	return out, nil
}

func compareKeys(a, b *models.Record, keys []string) int {
	for _, k := range keys {
		if c := Compare(a.Value(k), b.Value(k)); c != 0 {
			return c
		}
	}
	return 0
}

// Columns maps each field name to its 1-based column position, taken from
// the first record. All records must share that shape.
func Columns(records []*models.Record) (map[string]int, error) {
	if err := CheckShape(records, "columns"); err != nil {
		return nil, err
	}
	cols := make(map[string]int)
	if len(records) == 0 {
		return cols, nil
	}
	for i, f := range records[0].Fields() {
		cols[f] = i + 1
	}
	return cols, nil
}

// CheckShape verifies that every record has the first record's fields in
// the same order. op names the calling operation in the error.
func CheckShape(records []*models.Record, op string) error {
	if len(records) == 0 {
		return nil
	}
	first := records[0]
	for i, r := range records[1:] {
		if !r.SameShape(first) {
			return errors.New(errors.ErrorTypeIntegrity, "records do not share one set of fields").
				WithDetail("operation", op).
				WithDetail("record", i+2).
				WithDetail("expected", strings.Join(first.Fields(), ",")).
				WithDetail("actual", strings.Join(r.Fields(), ","))
		}
	}
	return nil
}

// requireFields checks shape and that every named field exists
func requireFields(records []*models.Record, op string, fields ...string) error {
	if err := CheckShape(records, op); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	for _, f := range fields {
		if !records[0].Has(f) {
			return errors.New(errors.ErrorTypeNotFound, "unknown field").
				WithDetail("operation", op).
				WithDetail("field", f)
		}
	}
	return nil
}
