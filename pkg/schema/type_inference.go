package schema

import (
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// InferColumns derives a column layout from a record sequence. Every record
// must have the same fields in the same order. Each column's type is the
// widest kind observed across records, where integer widens to float and any
// number widens to string. Columns with at least one missing value are
// nullable; a column that is missing everywhere keeps KindMissing.
func InferColumns(name string, records []*models.Record) (*models.Schema, error) {
	out := &models.Schema{Name: name}
	if len(records) == 0 {
		return out, nil
	}

	first := records[0]
	fields := first.Fields()
	out.Fields = make([]models.Field, len(fields))
	for i, f := range fields {
		out.Fields[i] = models.Field{Name: f, Type: models.KindMissing}
	}

	for n, rec := range records {
		if !rec.SameShape(first) {
			return nil, errors.New(errors.ErrorTypeIntegrity, "records do not share one shape").
				WithDetail("record", n+1)
		}
		for i := range out.Fields {
			v := rec.At(i)
			if v.IsMissing() {
				out.Fields[i].Nullable = true
				continue
			}
			out.Fields[i].Type = widen(out.Fields[i].Type, v.Kind())
		}
	}
	return out, nil
}

// widen returns the narrowest kind able to hold values of both a and b
func widen(a, b models.Kind) models.Kind {
	switch {
	case a == models.KindMissing:
		return b
	case b == models.KindMissing || a == b:
		return a
	case a == models.KindString || b == models.KindString:
		return models.KindString
	default:
		// int and float
		return models.KindFloat
	}
}
