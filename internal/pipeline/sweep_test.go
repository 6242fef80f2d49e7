package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/invoker"
	"github.com/ajitpratap0/sweepline/pkg/metrics"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/report"
	"github.com/ajitpratap0/sweepline/pkg/schema"
	"github.com/ajitpratap0/sweepline/pkg/store"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
	"github.com/ajitpratap0/sweepline/pkg/testutil"
)

// fakeInvoker prints the dimension and schedule lines of the analysis
// program, or runs a custom function
type fakeInvoker struct {
	calls []sweep.Point
	fn    func(p sweep.Point) *invoker.Result
}

func (f *fakeInvoker) Run(_ context.Context, p sweep.Point) *invoker.Result {
	f.calls = append(f.calls, p)
	if f.fn != nil {
		return f.fn(p)
	}
	return &invoker.Result{
		Text: fmt.Sprintf("w/ %d adds, %d removes, %d delays, %d barriers.\n%d schedules enumerated in %.1fs.\n",
			p.Adds, p.Removes, p.Delays, p.Barriers, 5*p.Adds, 1.5*float64(p.Adds)),
		Duration: 10 * time.Millisecond,
		ExitCode: 0,
	}
}

type memSink struct {
	records []*models.Record
	err     error
	closed  bool
}

func (m *memSink) Emit(_ context.Context, _ sweep.Point, rec *models.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func defaultExperiment(t *testing.T) *schema.Experiment {
	t.Helper()
	exp, err := schema.DefaultRegistry().Lookup("default")
	require.NoError(t, err)
	return exp
}

func TestSweepWritesEveryPoint(t *testing.T) {
	exp := defaultExperiment(t)
	path := filepath.Join(t.TempDir(), "default.msq.dat")
	sink, err := NewStoreSink(path, exp.Schema.Names(), store.DefaultOptions())
	require.NoError(t, err)

	inv := &fakeInvoker{}
	space := sweep.Space{Object: "msq", Adds: sweep.MustParseRange("1..2")}
	p, err := NewSweepPipeline("s-1", exp, space, inv, sink, testutil.TestLogger(t))
	require.NoError(t, err)

	summary, err := p.Run(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Points)
	assert.Equal(t, 2, summary.Written)
	assert.Empty(t, summary.Misses)
	assert.False(t, summary.Interrupted)

	require.Len(t, inv.calls, 2)
	assert.Equal(t, 1, inv.calls[0].Adds)
	assert.Equal(t, 2, inv.calls[1].Adds)

	records, err := store.Read(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exp.Schema.Names(), records[0].Fields())
	n, ok := records[1].Value("executions").Int()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)
	f, ok := records[1].Value("time").Float()
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	m := p.Metrics()
	assert.Equal(t, 2, m["written"])
}

func TestSweepRecordsFailuresAsMissing(t *testing.T) {
	exp := defaultExperiment(t)
	inv := &fakeInvoker{fn: func(p sweep.Point) *invoker.Result {
		if p.Adds == 2 {
			return &invoker.Result{
				Text:     "w/ 2 adds, 1 removes, 0 delays, 0 barriers.\n",
				TimedOut: true,
				Err:      errors.New(errors.ErrorTypeTimeout, "invocation exceeded its budget"),
			}
		}
		return &invoker.Result{Err: errors.New(errors.ErrorTypeInvocation, "program could not be run")}
	}}
	sink := &memSink{}
	collector := metrics.NewCollector("default", "msq")

	space := sweep.Space{Object: "msq", Adds: sweep.Range{1, 2}}
	p, err := NewSweepPipeline("s-2", exp, space, inv, sink, testutil.TestLogger(t), WithMetrics(collector))
	require.NoError(t, err)

	summary, err := p.Run(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Timeouts)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, map[string]int{
		"adds": 1, "removes": 1, "delays": 1, "barriers": 1,
		"executions": 2, "time": 2,
	}, summary.Misses)
	assert.Equal(t, []string{"adds", "barriers", "delays", "executions", "removes", "time"}, summary.MissedFields())

	// the timed-out run keeps the partial output it produced
	require.Len(t, sink.records, 2)
	adds, ok := sink.records[1].Value("adds").Int()
	require.True(t, ok)
	assert.Equal(t, int64(2), adds)
	assert.True(t, sink.records[1].Value("time").IsMissing())
	assert.True(t, sink.closed)

	assert.Equal(t, 1.0, promtest.ToFloat64(collector.Invocations.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, promtest.ToFloat64(collector.Invocations.WithLabelValues("failed")))
	assert.Equal(t, 2.0, promtest.ToFloat64(collector.ExtractionMisses.WithLabelValues("time")))
	assert.Equal(t, 2.0, promtest.ToFloat64(collector.RecordsWritten))
}

func TestSweepAbortsOnStoreFailure(t *testing.T) {
	inv := &fakeInvoker{}
	sink := &memSink{err: fmt.Errorf("disk full")}
	space := sweep.Space{Object: "msq", Adds: sweep.Range{1, 2, 3}}
	p, err := NewSweepPipeline("s-3", defaultExperiment(t), space, inv, sink, testutil.TestLogger(t))
	require.NoError(t, err)

	summary, err := p.Run(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIntegrity))
	assert.Equal(t, 1, summary.Run)
	assert.Equal(t, 0, summary.Written)
	assert.Len(t, inv.calls, 1)
	assert.True(t, sink.closed)
}

func TestSweepToleratesSecondarySinkFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	collector := metrics.NewCollector("default", "msq")
	primary := &memSink{}
	broken := &memSink{err: fmt.Errorf("broker unavailable")}

	space := sweep.Space{Object: "msq", Adds: sweep.Range{1, 2}}
	p, err := NewSweepPipeline("s-4", defaultExperiment(t), space, &fakeInvoker{}, primary, zap.New(core),
		WithSink("kafka", broken), WithMetrics(collector))
	require.NoError(t, err)

	summary, err := p.Run(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, map[string]int{"kafka": 2}, summary.SinkErrors)
	assert.Equal(t, 2, logs.FilterMessage("sink rejected record").Len())
	assert.Equal(t, 2.0, promtest.ToFloat64(collector.SinkErrors.WithLabelValues("kafka")))
	assert.True(t, broken.closed)
}

func TestSweepStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &fakeInvoker{fn: func(p sweep.Point) *invoker.Result {
		cancel()
		return &invoker.Result{Text: "5 schedules enumerated in 3.2s.\n"}
	}}
	sink := &memSink{}
	space := sweep.Space{Object: "msq", Adds: sweep.Range{1, 2, 3}}
	p, err := NewSweepPipeline("s-5", defaultExperiment(t), space, inv, sink, testutil.TestLogger(t))
	require.NoError(t, err)

	summary, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, summary.Interrupted)
	// output of a canceled invocation is never stored
	assert.Equal(t, 0, summary.Written)
	assert.Equal(t, 0, summary.Failures)
	assert.Empty(t, sink.records)
	assert.Len(t, inv.calls, 1)
}

func TestSweepDiscardsKilledPoint(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := testutil.WriteFile(t, "slow.sh",
		"echo 'w/ 1 adds, 1 removes, 0 delays, 0 barriers.'\nexec sleep 5\n")
	inv, err := invoker.New(invoker.Config{Program: sh, WaitDelay: 500 * time.Millisecond}, testutil.TestLogger(t))
	require.NoError(t, err)

	exp := defaultExperiment(t)
	data := filepath.Join(t.TempDir(), "default.dat")
	sink, err := NewStoreSink(data, exp.Schema.Names(), store.DefaultOptions())
	require.NoError(t, err)

	// the script path takes the object's place in argv
	space := sweep.Space{Object: script, Adds: sweep.Range{1, 2}}
	p, err := NewSweepPipeline("s-6", exp, space, inv, sink, testutil.TestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	summary, err := p.Run(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 0, summary.Run)
	assert.Equal(t, 0, summary.Written)
	assert.Equal(t, 0, summary.Failures)

	records, err := store.Read(data)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewSweepPipelineValidates(t *testing.T) {
	exp := defaultExperiment(t)
	_, err := NewSweepPipeline("x", nil, sweep.Space{Object: "msq"}, &fakeInvoker{}, &memSink{}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = NewSweepPipeline("x", exp, sweep.Space{}, &fakeInvoker{}, &memSink{}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = NewSweepPipeline("x", exp, sweep.Space{Object: "msq"}, nil, &memSink{}, nil)
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	data := filepath.Join(t.TempDir(), "coverage.msq.dat")
	m := &Manifest{
		Summary: Summary{SweepID: "s-6", Experiment: "coverage", Object: "msq", Points: 4, Written: 4,
			Misses: map[string]int{"covered": 1}},
		Version: "test",
		Data:    data,
		Fields:  []string{"adds", "removes"},
		Space:   sweep.Space{Object: "msq", Adds: sweep.Range{1, 2, 3, 4}},
		Config:  map[string]string{"experiment": "coverage"},
	}
	path, err := WriteManifest(m)
	require.NoError(t, err)
	assert.Equal(t, data+ManifestSuffix, path)

	back, err := ReadManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "s-6", back.SweepID)
	assert.Equal(t, 4, back.Written)
	assert.Equal(t, sweep.Range{1, 2, 3, 4}, back.Space.Adds)
	assert.Equal(t, map[string]int{"covered": 1}, back.Misses)

	_, err = ReadManifest(filepath.Join(t.TempDir(), "none.dat"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestLiveReportSkipsIncompleteData(t *testing.T) {
	exp := defaultExperiment(t)
	path := filepath.Join(t.TempDir(), "data.dat")
	sink, err := NewStoreSink(path, exp.Schema.Names(), store.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, sink.Emit(context.Background(), sweep.Point{}, exp.Schema.Apply("")))
	require.NoError(t, sink.Close())

	emitter := report.NewEmitter(report.DefaultConfig(), testutil.TestLogger(t))
	var seen int
	live := NewLiveReport(path, emitter, func(records []*models.Record, _ sweep.Point) (*report.Report, error) {
		seen = len(records)
		return nil, errors.New(errors.ErrorTypeNotFound, "no records for the point")
	}, testutil.TestLogger(t))
	assert.NoError(t, live.Emit(context.Background(), sweep.Point{Object: "msq"}, nil))
	assert.Equal(t, 1, seen)

	failing := NewLiveReport(path, emitter, func([]*models.Record, sweep.Point) (*report.Report, error) {
		return nil, errors.New(errors.ErrorTypeConfig, "no baseline")
	}, nil)
	assert.Error(t, failing.Emit(context.Background(), sweep.Point{Object: "msq"}, nil))
	assert.NoError(t, failing.Close())
}
