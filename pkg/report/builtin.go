package report

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/aggregate"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

var objectNames = map[string]string{
	"bkq":   "Bounded-Size K FIFO",
	"dq":    "Distributed Queue",
	"dtsq":  "DTS Queue",
	"fcq":   "Flat-Combining Queue",
	"lbq":   "Lock-Based Queue",
	"msq":   "Michael-Scott Queue",
	"rdq":   "Random-Dequeue Queue",
	"sl":    "Single List",
	"ts":    "Treiber Stack",
	"ukq":   "Unbounded-Size K FIFO",
	"wfq11": "Wait-free Queue (2011)",
}

// ObjectName returns the display name of a known object, or id itself
func ObjectName(id string) string {
	if name, ok := objectNames[id]; ok {
		return name
	}
	return id
}

// Report is a plot together with the records it draws
type Report struct {
	Records []*models.Record
	Plot    Plot
	// Negative counts records per field where a derived difference went
	// below zero
	Negative map[string]int
}

// CoverageOptions selects one slice of a coverage data file
type CoverageOptions struct {
	Object  string
	Adds    int
	Removes int
	// Output defaults to coverage.<object>.<adds>x<removes>.pdf
	Output string
}

// HistoryCoverage builds the stacked histogram of violating histories for
// one adds/removes pair. Each bar splits into histories found by counting,
// histories counting covers beyond those, and the remaining violations:
//
//	bad_histories -= covered
//	covered       -= c_histories
//
// The subtractions run in that order on the selected records.
func HistoryCoverage(records []*models.Record, opts CoverageOptions) (*Report, error) {
	selected := aggregate.Filter(records, aggregate.Match(map[string]models.Value{
		sweep.DimAdds:    models.Int(int64(opts.Adds)),
		sweep.DimRemoves: models.Int(int64(opts.Removes)),
	}))
	if len(selected) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, "no records for the selected adds and removes").
			WithDetail("object", opts.Object).
			WithDetail("adds", opts.Adds).
			WithDetail("removes", opts.Removes)
	}

	derived, err := aggregate.Derive(selected, "bad_histories", aggregate.Subtract("bad_histories", "covered"))
	if err != nil {
		return nil, err
	}
	derived, err = aggregate.Derive(derived, "covered", aggregate.Subtract("covered", "c_histories"))
	if err != nil {
		return nil, err
	}

	output := opts.Output
	if output == "" {
		output = fmt.Sprintf("coverage.%s.%dx%d.pdf", opts.Object, opts.Adds, opts.Removes)
	}

	plot := Plot{
		Title:  fmt.Sprintf("%s w/ %d adds & %d removes", ObjectName(opts.Object), opts.Adds, opts.Removes),
		Output: output,
		XLabel: "Number of Barriers & Delays",
		YLabel: "Number of Histories",
		Style:  StyleHistogramRows,
		Preamble: []string{
			"set key box opaque top left",
			`set xtics 2,5,20 ("0 barriers" 2, "1 barrier" 7, "2 barriers" 12, "3 barriers" 17, "4 barriers" 22)`,
			"set yrange [1:*]",
			"set grid y",
			"set tic scale 0",
		},
		Series: []Series{
			{Field: "c_histories", Title: "Counting Violations", Color: "turquoise"},
			{Field: "covered", Title: "Covered by Counting", Color: "aquamarine"},
			{Field: "bad_histories", Title: "All Violations", Color: "beige"},
		},
	}

	return &Report{
		Records: derived,
		Plot:    plot,
		Negative: map[string]int{
			"bad_histories": aggregate.NegativeCount(derived, "bad_histories"),
			"covered":       aggregate.NegativeCount(derived, "covered"),
		},
	}, nil
}

// RuntimeOptions configures the overhead report
type RuntimeOptions struct {
	Object string
	// Baseline is the mode every other mode is divided by
	Baseline string
	// Field is the measured column, time by default
	Field string
	// Output defaults to runtime.<object>.pdf
	Output string
}

// OverheadSuffix names the per-mode overhead columns, e.g. counting_overhead
const OverheadSuffix = "_overhead"

var runtimeKeys = []string{sweep.DimAdds, sweep.DimRemoves, sweep.DimDelays, sweep.DimBarriers}

// RuntimeOverhead averages repeated trials and divides each mode's field by
// the baseline mode at the same sweep point. The result holds one record
// per point with a label column and one <mode>_overhead column per mode,
// drawn as a clustered histogram.
func RuntimeOverhead(records []*models.Record, opts RuntimeOptions) (*Report, error) {
	if opts.Baseline == "" {
		opts.Baseline = "none"
	}
	if opts.Field == "" {
		opts.Field = "time"
	}
	if opts.Object != "" {
		records = aggregate.Filter(records, aggregate.Eq(sweep.DimObject, models.String(models.Sanitize(opts.Object))))
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, "no runtime records").
			WithDetail("object", opts.Object)
	}
	// trials of different objects must never be averaged together
	if objects := distinct(records, sweep.DimObject); len(objects) > 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "records hold several objects; choose one").
			WithDetail("objects", strings.Join(objects, ","))
	}

	keys := append([]string{sweep.DimMode}, runtimeKeys...)
	sorted, err := aggregate.Sort(records, keys...)
	if err != nil {
		return nil, err
	}
	reduced, err := aggregate.GroupReduce(sorted, keys, []string{opts.Field}, aggregate.WithCount(""))
	if err != nil {
		return nil, err
	}

	baseline := aggregate.Filter(reduced, aggregate.Eq(sweep.DimMode, models.String(models.Sanitize(opts.Baseline))))
	if len(baseline) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "baseline mode has no records").
			WithDetail("baseline", opts.Baseline)
	}

	wide := make([]*models.Record, len(baseline))
	for i, b := range baseline {
		label := make([]string, len(runtimeKeys))
		for j, k := range runtimeKeys {
			label[j] = b.Value(k).String()
		}
		fields := append([]string{"point"}, runtimeKeys...)
		rec := models.MustRecord(fields...)
		_ = rec.Set("point", models.String(strings.Join(label, "/")))
		for _, k := range runtimeKeys {
			_ = rec.Set(k, b.Value(k))
		}
		wide[i] = rec
	}

	var series []Series
	for _, mode := range modes(reduced) {
		if mode == models.Sanitize(opts.Baseline) {
			continue
		}
		target := aggregate.Filter(reduced, aggregate.Eq(sweep.DimMode, models.String(mode)))
		normalized, err := aggregate.NormalizeByBaseline(target, baseline, opts.Field, "overhead")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "mode does not cover the baseline's sweep points").
				WithDetail("mode", mode)
		}
		column := mode + OverheadSuffix
		for i, n := range normalized {
			for _, k := range runtimeKeys {
				if aggregate.Compare(n.Value(k), baseline[i].Value(k)) != 0 {
					return nil, errors.New(errors.ErrorTypeConfig, "mode and baseline sweep points differ").
						WithDetail("mode", mode).
						WithDetail("point", wide[i].Value("point").String())
				}
			}
			wide[i] = wide[i].With(column, n.Value("overhead"))
		}
		series = append(series, Series{Field: column, Title: mode})
	}
	if len(series) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no mode besides the baseline").
			WithDetail("baseline", opts.Baseline)
	}

	output := opts.Output
	if output == "" {
		output = fmt.Sprintf("runtime.%s.pdf", strings.TrimSpace(opts.Object))
		if opts.Object == "" {
			output = "runtime.pdf"
		}
	}
	title := fmt.Sprintf("Overhead relative to %s", opts.Baseline)
	if opts.Object != "" {
		title = fmt.Sprintf("%s: overhead relative to %s", ObjectName(opts.Object), opts.Baseline)
	}

	return &Report{
		Records: wide,
		Plot: Plot{
			Title:  title,
			Output: output,
			XLabel: "adds/removes/delays/barriers",
			YLabel: fmt.Sprintf("%s / %s", opts.Field, opts.Baseline),
			Style:  StyleHistogramClustered,
			XTics:  "point",
			Preamble: []string{
				"set key top left",
				"set grid y",
				"set xtics rotate by -45",
			},
			Series: series,
		},
		Negative: map[string]int{},
	}, nil
}

// modes lists the mode values in order of first appearance
func modes(records []*models.Record) []string {
	return distinct(records, sweep.DimMode)
}

// distinct lists the values of field in order of first appearance
func distinct(records []*models.Record, field string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		m := r.Value(field).String()
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Progress plots fields against record order. The sweep runner redraws it
// after every point.
func Progress(title, output string, fields ...string) Plot {
	series := make([]Series, len(fields))
	for i, f := range fields {
		series[i] = Series{Field: f}
	}
	return Plot{
		Title:  title,
		Output: output,
		XLabel: "Sweep point",
		Style:  StyleLinesPoints,
		Series: series,
	}
}
