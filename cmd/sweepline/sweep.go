package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/internal/pipeline"
	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/invoker"
	"github.com/ajitpratap0/sweepline/pkg/metrics"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/observability"
	"github.com/ajitpratap0/sweepline/pkg/publish"
	"github.com/ajitpratap0/sweepline/pkg/report"
	"github.com/ajitpratap0/sweepline/pkg/store"
	"github.com/ajitpratap0/sweepline/pkg/stream"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

func newSweepCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the analysis program over a parameter space",
		Long: `Run the analysis program once per point of the parameter space and append
one row per run to the data file. Ranges are written as lo..hi, a,b,c or a
single number.

Example:
  sweepline sweep -e coverage -o msq --adds 1..3 --removes 1..3 \
    --delays 0..4 --barriers 0..4 -p ./checkfence -d data/coverage.msq.dat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), a, cmd.OutOrStdout(), dryRun)
		},
	}

	f := cmd.Flags()
	f.StringP("experiment", "e", "", "Experiment kind (see 'sweepline schemas')")
	f.StringP("object", "o", "", "Object under test, passed to the program as its first argument")
	f.String("adds", "", "Range of add operations")
	f.String("removes", "", "Range of remove operations")
	f.String("delays", "", "Range of delays")
	f.String("barriers", "", "Range of barriers")
	f.StringSlice("modes", nil, "Analysis modes, each run for every point")
	f.String("show", "", "Value of the program's -show option")
	f.Int("repeat", 0, "Trials per point")
	f.StringP("data", "d", "", "Data file rows are written to")
	f.String("mode", "", "truncate or append")
	f.String("delimiter", "", "Column delimiter: space or comma")
	f.Bool("live-report", false, "Redraw the experiment's report after every point")
	f.String("baseline", "", "Baseline mode for runtime reports")
	f.String("archive", "", "Compress the data file when the sweep completes (gzip, zstd, lz4, s2, snappy)")
	f.StringP("program", "p", "", "Analysis program")
	f.Duration("timeout", 0, "Time budget of one invocation")
	f.String("wrapper", "", "Delegate the time budget to this command, e.g. timeout")
	f.Bool("kafka", false, "Mirror records to Kafka")
	f.StringSlice("brokers", nil, "Kafka brokers")
	f.String("publish", "", "Upload artifacts to s3://bucket/prefix or gs://bucket/prefix")
	f.BoolVar(&dryRun, "dry-run", false, "Print the command line of every point and exit")

	for name, key := range map[string]string{
		"experiment":  "sweep.experiment",
		"object":      "sweep.space.object",
		"adds":        "sweep.space.adds",
		"removes":     "sweep.space.removes",
		"delays":      "sweep.space.delays",
		"barriers":    "sweep.space.barriers",
		"modes":       "sweep.space.modes",
		"show":        "sweep.space.show",
		"repeat":      "sweep.space.repeat",
		"data":        "sweep.data",
		"mode":        "sweep.mode",
		"delimiter":   "sweep.delimiter",
		"live-report": "sweep.live_report",
		"baseline":    "sweep.baseline",
		"archive":     "sweep.archive",
		"program":     "invoker.program",
		"timeout":     "invoker.timeout",
		"wrapper":     "invoker.wrapper",
		"kafka":       "stream.enabled",
		"brokers":     "stream.brokers",
		"publish":     "publish.target",
	} {
		bindFlag(f, name, key)
	}
	return cmd
}

func runSweep(ctx context.Context, a *app, out io.Writer, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.cfg
	if err := cfg.ValidateSweep(a.registry); err != nil {
		return err
	}
	exp, err := a.registry.Lookup(cfg.Sweep.Experiment)
	if err != nil {
		return err
	}
	space := cfg.Sweep.Space.Normalize()

	inv, err := invoker.New(cfg.Invoker, a.log)
	if err != nil {
		return err
	}
	if dryRun {
		for p := range space.Points() {
			fmt.Fprintln(out, strings.Join(inv.Argv(p), " "))
		}
		return nil
	}

	opts, err := cfg.StoreOptions()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(cfg.Sweep.Data); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create data directory").
				WithDetail("dir", dir)
		}
	}

	id := uuid.NewString()
	log := a.log.With(zap.String("sweep_id", id))

	collector := metrics.NewCollector(exp.Name, space.Object)
	tracer, err := observability.NewTracer(cfg.Observability.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := observability.CollectHost(ctx)
	if err != nil {
		log.Warn("failed to collect host facts", zap.Error(err))
	} else {
		log.Info("host", host.Fields()...)
	}

	data, err := pipeline.NewStoreSink(cfg.Sweep.Data, exp.Schema.Names(), opts)
	if err != nil {
		return err
	}
	popts := []pipeline.Option{pipeline.WithMetrics(collector), pipeline.WithTracer(tracer)}
	if cfg.Stream.Enabled {
		ks, err := stream.NewSink(cfg.Stream, id, exp.Name, log)
		if err != nil {
			_ = data.Close()
			return err
		}
		popts = append(popts, pipeline.WithSink("kafka", ks))
	}
	if cfg.Sweep.LiveReport {
		emitter := report.NewEmitter(cfg.Report, log)
		build := liveReportFunc(exp.Name, exp.Schema.Names(), space.Object, cfg.Sweep.Baseline)
		popts = append(popts, pipeline.WithSink("report", pipeline.NewLiveReport(cfg.Sweep.Data, emitter, build, log)))
	}

	p, err := pipeline.NewSweepPipeline(id, exp, space, inv, data, log, popts...)
	if err != nil {
		_ = data.Close()
		return err
	}
	summary, runErr := p.Run(ctx)

	// the data written so far is described even when the sweep stopped early
	artifacts := []string{cfg.Sweep.Data}
	manifestPath, err := pipeline.WriteManifest(&pipeline.Manifest{
		Summary: *summary,
		Version: version,
		Data:    cfg.Sweep.Data,
		Fields:  exp.Schema.Names(),
		Space:   space,
		Argv:    os.Args,
		Host:    host,
		Config:  cfg,
	})
	if err != nil {
		log.Warn("failed to write manifest", zap.Error(err))
	} else {
		artifacts = append(artifacts, manifestPath)
	}
	if file := cfg.Observability.MetricsFile; file != "" {
		if err := collector.WriteTextfile(file); err != nil {
			log.Warn("failed to write metrics", zap.Error(err))
		} else {
			artifacts = append(artifacts, file)
		}
	}

	printSummary(out, summary, cfg.Sweep.Data)
	if runErr != nil {
		return runErr
	}

	if cfg.Sweep.Archive != "" {
		alg, err := compression.ParseAlgorithm(cfg.Sweep.Archive)
		if err != nil {
			return err
		}
		archive, err := archiveFile(cfg.Sweep.Data, alg, compression.Default, log)
		if err != nil {
			return err
		}
		// the archive replaces the plain file in the upload
		artifacts[0] = archive
	}

	if cfg.Publish.Enabled() {
		if _, err := publishFiles(ctx, a, artifacts, map[string]string{
			"sweep-id":   id,
			"experiment": exp.Name,
			"object":     space.Object,
		}, out); err != nil {
			return err
		}
	}
	return nil
}

// liveReportFunc picks the report redrawn during a sweep: the experiment's
// own report where one exists, a progress plot of its measured fields
// otherwise
func liveReportFunc(experiment string, fields []string, object, baseline string) pipeline.ReportFunc {
	switch experiment {
	case "coverage":
		return func(records []*models.Record, p sweep.Point) (*report.Report, error) {
			return report.HistoryCoverage(records, report.CoverageOptions{
				Object: object, Adds: p.Adds, Removes: p.Removes,
			})
		}
	case "runtime":
		return func(records []*models.Record, _ sweep.Point) (*report.Report, error) {
			return report.RuntimeOverhead(records, report.RuntimeOptions{Object: object, Baseline: baseline})
		}
	}
	measured := make([]string, 0, len(fields))
	for _, f := range fields {
		if !sweep.IsDimension(f) {
			measured = append(measured, f)
		}
	}
	plot := report.Progress(fmt.Sprintf("%s on %s", experiment, report.ObjectName(object)),
		fmt.Sprintf("progress.%s.%s.pdf", experiment, object), measured...)
	return func(records []*models.Record, _ sweep.Point) (*report.Report, error) {
		return &report.Report{Records: records, Plot: plot}, nil
	}
}

func printSummary(out io.Writer, s *pipeline.Summary, data string) {
	fmt.Fprintf(out, "%d/%d points written to %s in %s\n",
		s.Written, s.Points, data, s.Duration().Round(time.Millisecond))
	if s.Timeouts > 0 || s.Failures > 0 {
		fmt.Fprintf(out, "  %d timed out, %d failed\n", s.Timeouts, s.Failures)
	}
	for _, f := range s.MissedFields() {
		fmt.Fprintf(out, "  %s missing in %d rows\n", f, s.Misses[f])
	}
	for sink, n := range s.SinkErrors {
		fmt.Fprintf(out, "  %s rejected %d records\n", sink, n)
	}
	if s.Interrupted {
		fmt.Fprintln(out, "  interrupted; the point in flight was discarded and the data file holds every completed point")
	}
}

func archiveFile(path string, alg compression.Algorithm, level compression.Level, log *zap.Logger) (string, error) {
	start := time.Now()
	archive, err := store.Archive(path, alg, level)
	if err != nil {
		return "", err
	}
	log.Info("archived data file",
		zap.String("file", path),
		zap.String("archive", archive),
		zap.String("algorithm", string(alg)),
		zap.Duration("duration", time.Since(start)))
	return archive, nil
}

func publishFiles(ctx context.Context, a *app, files []string, metadata map[string]string, out io.Writer) ([]string, error) {
	pub, err := publish.New(ctx, a.cfg.Publish, a.log)
	if err != nil {
		return nil, err
	}
	defer pub.Close()
	locations, err := pub.PublishAll(ctx, files, metadata)
	for _, loc := range locations {
		fmt.Fprintln(out, loc)
	}
	return locations, err
}
