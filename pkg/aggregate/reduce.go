package aggregate

import (
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// DefaultCountField names the column added by WithCount("")
const DefaultCountField = "trials"

type reduceOptions struct {
	countField string
}

// ReduceOption configures GroupReduce
type ReduceOption func(*reduceOptions)

// WithCount appends a column holding the number of records in each group.
// An empty name uses DefaultCountField.
func WithCount(name string) ReduceOption {
	if name == "" {
		name = DefaultCountField
	}
	return func(o *reduceOptions) { o.countField = name }
}

// GroupReduce collapses maximal runs of adjacent records sharing the same
// key values into one representative per run. Sort by the same keys first
// to group non-adjacent repeats.
//
// Each field in fields becomes the arithmetic mean (a float) of the run's
// numeric values; missing values are ignored and a run with no numeric
// value yields missing. When fields is empty every non-key field that holds
// only numbers or missing values across the whole sequence is averaged.
// All other fields are taken from the first record of the run.
func GroupReduce(records []*models.Record, keys, fields []string, opts ...ReduceOption) ([]*models.Record, error) {
	o := reduceOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if err := requireFields(records, "group-reduce", append(append([]string(nil), keys...), fields...)...); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if o.countField != "" && records[0].Has(o.countField) {
		return nil, errors.New(errors.ErrorTypeConfig, "count column already exists").
			WithDetail("operation", "group-reduce").
			WithDetail("field", o.countField)
	}

	if len(fields) == 0 {
		fields = numericFields(records, keys)
	} else {
		for _, f := range fields {
			for i, r := range records {
				if v := r.Value(f); v.Kind() == models.KindString {
					return nil, errors.New(errors.ErrorTypeConfig, "cannot average a non-numeric field").
						WithDetail("operation", "group-reduce").
						WithDetail("field", f).
						WithDetail("record", i+1)
				}
			}
		}
	}

	var out []*models.Record
	start := 0
	for i := 1; i <= len(records); i++ {
		if i < len(records) && compareKeys(records[start], records[i], keys) == 0 {
			continue
		}
		out = append(out, reduceRun(records[start:i], fields, o))
		start = i
	}
	return out, nil
}

func reduceRun(run []*models.Record, fields []string, o reduceOptions) *models.Record {
	rep := run[0].Clone()
	for _, f := range fields {
		// f exists on every record, so Set cannot fail
		_ = rep.Set(f, Mean(run, f))
	}
	if o.countField != "" {
		rep = rep.With(o.countField, models.Int(int64(len(run))))
	}
	return rep
}

// Mean returns the arithmetic mean of field's numeric values in records, or
// missing when there are none.
func Mean(records []*models.Record, field string) models.Value {
	var sum float64
	var n int
	for _, r := range records {
		if x, ok := r.Value(field).Number(); ok {
			sum += x
			n++
		}
	}
	if n == 0 {
		return models.Missing()
	}
	return models.Float(sum / float64(n))
}

// numericFields lists non-key fields that never hold a string
func numericFields(records []*models.Record, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, f := range records[0].Fields() {
		if isKey[f] {
			continue
		}
		numeric := true
		for _, r := range records {
			if r.Value(f).Kind() == models.KindString {
				numeric = false
				break
			}
		}
		if numeric {
			out = append(out, f)
		}
	}
	return out
}
