package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/internal/pipeline"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/report"
	"github.com/ajitpratap0/sweepline/pkg/store"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

type reportFlags struct {
	object string
	output string
	script bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.object, "object", "o", "", "Object the data file measures (default: from the manifest or file name)")
	cmd.Flags().StringVar(&f.output, "output", "", "Output file, relative to the report directory")
	cmd.Flags().BoolVar(&f.script, "script", false, "Print the gnuplot script instead of rendering it")
}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render figures from a data file",
	}
	cmd.PersistentFlags().String("terminal", "", "gnuplot terminal, e.g. pdf or pngcairo")
	cmd.PersistentFlags().String("dir", "", "Directory relative outputs are written to")
	bindFlag(cmd.PersistentFlags(), "terminal", "report.terminal")
	bindFlag(cmd.PersistentFlags(), "dir", "report.dir")

	var cov reportFlags
	var adds, removes int
	coverage := &cobra.Command{
		Use:   "coverage DATA",
		Short: "Stacked histogram of violations found and covered by counting",
		Long: `Draw one stacked histogram per adds/removes pair of a coverage data file.
Without --adds and --removes every pair present in the file is drawn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, object, err := loadForReport(args[0], cov.object)
			if err != nil {
				return err
			}
			pairs := [][2]int{{adds, removes}}
			if adds == 0 && removes == 0 {
				pairs = distinctPairs(records)
			}
			for _, pr := range pairs {
				r, err := report.HistoryCoverage(records, report.CoverageOptions{
					Object: object, Adds: pr[0], Removes: pr[1], Output: cov.output,
				})
				if err != nil {
					return err
				}
				if err := emitReport(cmd.Context(), a, r, cov.script, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cov.register(coverage)
	coverage.Flags().IntVar(&adds, "adds", 0, "Number of adds to plot")
	coverage.Flags().IntVar(&removes, "removes", 0, "Number of removes to plot")

	var rt reportFlags
	var baseline, field string
	runtime := &cobra.Command{
		Use:   "runtime DATA",
		Short: "Clustered histogram of each mode's cost relative to a baseline mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, object, err := loadForReport(args[0], rt.object)
			if err != nil {
				return err
			}
			if baseline == "" {
				baseline = a.cfg.Sweep.Baseline
			}
			r, err := report.RuntimeOverhead(records, report.RuntimeOptions{
				Object: object, Baseline: baseline, Field: field, Output: rt.output,
			})
			if err != nil {
				return err
			}
			return emitReport(cmd.Context(), a, r, rt.script, cmd.OutOrStdout())
		},
	}
	rt.register(runtime)
	runtime.Flags().StringVar(&baseline, "baseline", "", "Mode the other modes are divided by (default none)")
	runtime.Flags().StringVar(&field, "field", "", "Measured field (default time)")

	var pg reportFlags
	var fields []string
	progress := &cobra.Command{
		Use:   "progress DATA",
		Short: "Line plot of measured fields in sweep order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, object, err := loadForReport(args[0], pg.object)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				for _, f := range records[0].Fields() {
					if !sweep.IsDimension(f) {
						fields = append(fields, f)
					}
				}
			}
			output := pg.output
			if output == "" {
				output = fmt.Sprintf("progress.%s.pdf", object)
			}
			r := &report.Report{
				Records: records,
				Plot:    report.Progress(report.ObjectName(object), output, fields...),
			}
			return emitReport(cmd.Context(), a, r, pg.script, cmd.OutOrStdout())
		},
	}
	pg.register(progress)
	progress.Flags().StringSliceVar(&fields, "field", nil, "Fields to plot (default every measured field)")

	cmd.AddCommand(coverage, runtime, progress)
	return cmd
}

// loadForReport reads a data file and resolves the object it measures
func loadForReport(path, object string) ([]*models.Record, string, error) {
	records, err := store.Read(path)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", errors.New(errors.ErrorTypeNotFound, "data file holds no records").
			WithDetail("file", path)
	}
	if object == "" {
		object = objectOf(path)
	}
	return records, object, nil
}

// objectOf finds the object from the manifest, then from a file named
// <experiment>.<object>.dat
func objectOf(path string) string {
	if m, err := pipeline.ReadManifest(path); err == nil && m.Object != "" {
		return m.Object
	}
	parts := strings.Split(filepath.Base(path), ".")
	if len(parts) >= 3 {
		return parts[len(parts)-2]
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// distinctPairs lists the adds/removes pairs present in records, sorted
func distinctPairs(records []*models.Record) [][2]int {
	seen := make(map[[2]int]bool)
	var pairs [][2]int
	for _, r := range records {
		adds, ok1 := r.Value(sweep.DimAdds).Int()
		removes, ok2 := r.Value(sweep.DimRemoves).Int()
		if !ok1 || !ok2 {
			continue
		}
		p := [2]int{int(adds), int(removes)}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

func emitReport(ctx context.Context, a *app, r *report.Report, scriptOnly bool, out io.Writer) error {
	emitter := report.NewEmitter(a.cfg.Report, a.log)
	if !scriptOnly {
		if err := emitter.Emit(ctx, r); err != nil {
			return err
		}
		a.log.Info("report written", zap.String("output", emitter.OutputPath(r.Plot.Output)))
		return nil
	}
	script, err := emitter.Script(r.Records, r.Plot)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, script)
	return err
}
