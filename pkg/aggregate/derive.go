package aggregate

import (
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// Func computes a derived value from one record
type Func func(*models.Record) models.Value

// Derive returns copies of records with field name set to fn(record). An
// existing field keeps its column; a new field becomes the last column.
func Derive(records []*models.Record, name string, fn Func) ([]*models.Record, error) {
	if err := CheckShape(records, "derive"); err != nil {
		return nil, err
	}
	out := make([]*models.Record, len(records))
	for i, r := range records {
		out[i] = r.With(name, fn(r))
	}
	return out, nil
}

// Subtract computes a - b. Two integers give an integer, any float gives a
// float, and a missing or non-numeric operand gives missing. Negative
// results are kept.
func Subtract(a, b string) Func {
	return func(r *models.Record) models.Value {
		return sub(r.Value(a), r.Value(b))
	}
}

func sub(x, y models.Value) models.Value {
	if xi, ok := x.Int(); ok {
		if yi, ok := y.Int(); ok {
			return models.Int(xi - yi)
		}
	}
	xf, ok1 := x.Number()
	yf, ok2 := y.Number()
	if !ok1 || !ok2 {
		return models.Missing()
	}
	return models.Float(xf - yf)
}

// Ratio computes a / b as a float. A zero, missing or non-numeric
// denominator gives missing.
func Ratio(a, b string) Func {
	return func(r *models.Record) models.Value {
		return div(r.Value(a), r.Value(b))
	}
}

func div(x, y models.Value) models.Value {
	xf, ok1 := x.Number()
	yf, ok2 := y.Number()
	if !ok1 || !ok2 || yf == 0 {
		return models.Missing()
	}
	return models.Float(xf / yf)
}

// NormalizeByBaseline divides field of each target record by field of the
// baseline record at the same position and stores the ratio in out (which
// may equal field). Both sequences must already be sorted into matching
// order; unequal lengths are a configuration error.
func NormalizeByBaseline(target, baseline []*models.Record, field, out string) ([]*models.Record, error) {
	if len(target) != len(baseline) {
		return nil, errors.New(errors.ErrorTypeConfig, "baseline and target differ in length").
			WithDetail("operation", "normalize").
			WithDetail("field", field).
			WithDetail("target", len(target)).
			WithDetail("baseline", len(baseline))
	}
	if err := requireFields(target, "normalize", field); err != nil {
		return nil, err
	}
	if err := requireFields(baseline, "normalize", field); err != nil {
		return nil, err
	}
	if out == "" {
		out = field
	}
	res := make([]*models.Record, len(target))
	for i := range target {
		res[i] = target[i].With(out, div(target[i].Value(field), baseline[i].Value(field)))
	}
	return res, nil
}

// NegativeCount returns how many records hold a negative number in field.
// Derived differences can go negative when a wider count does not contain
// a narrower one; callers report this instead of clamping.
func NegativeCount(records []*models.Record, field string) int {
	n := 0
	for _, r := range records {
		if x, ok := r.Value(field).Number(); ok && x < 0 {
			n++
		}
	}
	return n
}

// Rename returns copies of records with field from renamed to to. The
// column keeps its position.
func Rename(records []*models.Record, from, to string) ([]*models.Record, error) {
	if err := requireFields(records, "rename", from); err != nil {
		return nil, err
	}
	if len(records) > 0 && records[0].Has(to) {
		return nil, errors.New(errors.ErrorTypeConfig, "rename target already exists").
			WithDetail("operation", "rename").
			WithDetail("field", to)
	}
	out := make([]*models.Record, len(records))
	for i, r := range records {
		fields := r.Fields()
		for j, f := range fields {
			if f == from {
				fields[j] = to
			}
		}
		rec := models.MustRecord(fields...)
		for j, v := range r.Values() {
			_ = rec.Set(fields[j], v)
		}
		out[i] = rec
	}
	return out, nil
}

// Project returns copies of records holding only fields, in the given
// order
func Project(records []*models.Record, fields ...string) ([]*models.Record, error) {
	if err := requireFields(records, "project", fields...); err != nil {
		return nil, err
	}
	out := make([]*models.Record, len(records))
	for i, r := range records {
		rec, err := models.NewRecord(fields...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid projection").
				WithDetail("operation", "project")
		}
		for _, f := range fields {
			_ = rec.Set(f, r.Value(f))
		}
		out[i] = rec
	}
	return out, nil
}
