// Package pipeline runs sweeps: it walks the parameter space, invokes the
// analysis program once per point, extracts a record from each run's
// output and hands the record to the sinks.
//
// # Overview
//
// Points run strictly one after another. The first sink is the data file
// and is critical: a failed write aborts the sweep because every later row
// would be lost. Other sinks (Kafka, live reports) are best effort; their
// failures are logged and counted.
//
// # Basic Usage
//
//	store, err := pipeline.NewStoreSink(path, exp.Schema.Names(), opts)
//	p, err := pipeline.NewSweepPipeline(id, exp, space, inv, store, logger,
//	    pipeline.WithSink("kafka", kafkaSink),
//	    pipeline.WithMetrics(collector),
//	)
//	summary, err := p.Run(ctx)
//
// Canceling ctx kills the point in flight and discards its partial output;
// the rows already written stay valid.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/invoker"
	"github.com/ajitpratap0/sweepline/pkg/logger"
	"github.com/ajitpratap0/sweepline/pkg/metrics"
	"github.com/ajitpratap0/sweepline/pkg/observability"
	"github.com/ajitpratap0/sweepline/pkg/schema"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// Invoker runs the analysis program for one point
type Invoker interface {
	Run(ctx context.Context, p sweep.Point) *invoker.Result
}

type namedSink struct {
	name string
	sink Sink
}

// SweepPipeline drives one sweep
type SweepPipeline struct {
	id         string
	experiment *schema.Experiment
	space      sweep.Space
	invoker    Invoker
	primary    Sink
	secondary  []namedSink
	collector  *metrics.Collector
	tracer     *observability.Tracer
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	summary Summary
}

// Option configures a SweepPipeline
type Option func(*SweepPipeline)

// WithSink adds a best-effort sink
func WithSink(name string, s Sink) Option {
	return func(p *SweepPipeline) {
		p.secondary = append(p.secondary, namedSink{name: name, sink: s})
	}
}

// WithMetrics records progress in c
func WithMetrics(c *metrics.Collector) Option {
	return func(p *SweepPipeline) { p.collector = c }
}

// WithTracer traces the sweep and each point with t
func WithTracer(t *observability.Tracer) Option {
	return func(p *SweepPipeline) { p.tracer = t }
}

// Summary describes a finished (or interrupted) sweep
type Summary struct {
	SweepID     string         `json:"sweep_id"`
	Experiment  string         `json:"experiment"`
	Object      string         `json:"object"`
	Points      int            `json:"points"`
	Run         int            `json:"run"`
	Written     int            `json:"written"`
	Timeouts    int            `json:"timeouts"`
	Failures    int            `json:"failures"`
	SinkErrors  map[string]int `json:"sink_errors,omitempty"`
	Misses      map[string]int `json:"misses,omitempty"`
	Interrupted bool           `json:"interrupted"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
}

// Duration returns the wall time of the sweep
func (s Summary) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// MissedFields lists fields that were missing at least once, sorted
func (s Summary) MissedFields() []string {
	out := make([]string, 0, len(s.Misses))
	for f := range s.Misses {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// NewSweepPipeline creates a pipeline. primary receives every record and
// its errors abort the sweep.
func NewSweepPipeline(id string, experiment *schema.Experiment, space sweep.Space, inv Invoker, primary Sink, log *zap.Logger, opts ...Option) (*SweepPipeline, error) {
	if experiment == nil || experiment.Schema == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sweep needs an experiment schema")
	}
	if inv == nil || primary == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sweep needs an invoker and a data sink")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &SweepPipeline{
		id:         id,
		experiment: experiment,
		space:      space.Normalize(),
		invoker:    inv,
		primary:    primary,
		logger:     log.With(zap.String("component", "sweep")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer, _ = observability.NewTracer(observability.TracingConfig{}, "")
	}
	return p, nil
}

// Run executes every point of the space. It returns the summary even when
// it fails; the error is non-nil only for a data sink failure or a canceled
// context.
func (p *SweepPipeline) Run(ctx context.Context) (*Summary, error) {
	ctx = logger.WithSweep(ctx, p.id, p.experiment.Name, p.space.Object)
	log := logger.FromContext(ctx, p.logger)

	p.mu.Lock()
	p.summary = Summary{
		SweepID:    p.id,
		Experiment: p.experiment.Name,
		Object:     p.space.Object,
		Points:     p.space.Count(),
		Start:      p.now(),
	}
	p.mu.Unlock()
	if p.collector != nil {
		p.collector.PointsTotal.Set(float64(p.space.Count()))
	}

	ctx, span := p.tracer.StartSweep(ctx, p.id, p.experiment.Name, p.space.Object, p.space.Count())
	defer span.End()

	log.Info("starting sweep",
		zap.Int("points", p.space.Count()),
		zap.Strings("fields", p.experiment.Schema.Names()))

	runErr := p.runPoints(ctx, log)
	closeErr := p.close(log)

	p.mu.Lock()
	p.summary.End = p.now()
	summary := p.summary
	p.mu.Unlock()

	if runErr == nil {
		runErr = closeErr
	}
	if runErr == nil && p.collector != nil {
		p.collector.MarkComplete(summary.End)
	}

	fields := []zap.Field{
		zap.Int("run", summary.Run),
		zap.Int("written", summary.Written),
		zap.Int("timeouts", summary.Timeouts),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration()),
	}
	if runErr != nil {
		log.Error("sweep stopped", append(fields, zap.Error(runErr))...)
	} else {
		log.Info("sweep completed", fields...)
	}
	return &summary, runErr
}

func (p *SweepPipeline) runPoints(ctx context.Context, log *zap.Logger) error {
	for pt := range p.space.Points() {
		if err := ctx.Err(); err != nil {
			p.mu.Lock()
			p.summary.Interrupted = true
			p.mu.Unlock()
			return errors.Wrap(err, errors.ErrorTypeInvocation, "sweep interrupted").
				WithDetail("next_point", pt.String())
		}
		if err := p.runPoint(ctx, pt, log); err != nil {
			return err
		}
	}
	return nil
}

func (p *SweepPipeline) runPoint(ctx context.Context, pt sweep.Point, log *zap.Logger) error {
	pctx, span := p.tracer.StartPoint(ctx, pt)

	res := p.invoker.Run(pctx, pt)
	if err := ctx.Err(); err != nil {
		// a killed process leaves a partial row; the point is not stored
		observability.EndPoint(span, "interrupted", nil, err)
		p.mu.Lock()
		p.summary.Interrupted = true
		p.mu.Unlock()
		log.Warn("sweep interrupted, point discarded", zap.String("point", pt.String()))
		return errors.Wrap(err, errors.ErrorTypeInvocation, "sweep interrupted").
			WithDetail("point", pt.String())
	}
	rec, misses := p.experiment.Schema.Extract(res.Text, pt)

	p.mu.Lock()
	p.summary.Run++
	switch {
	case res.TimedOut:
		p.summary.Timeouts++
	case res.Err != nil:
		p.summary.Failures++
	}
	if len(misses) > 0 {
		if p.summary.Misses == nil {
			p.summary.Misses = make(map[string]int)
		}
		for _, f := range misses {
			p.summary.Misses[f]++
		}
	}
	p.mu.Unlock()

	if p.collector != nil {
		p.collector.ObserveInvocation(res.Outcome(), res.Duration)
		p.collector.ObserveMisses(misses)
	}

	if err := p.primary.Emit(pctx, pt, rec); err != nil {
		observability.EndPoint(span, res.Outcome(), misses, err)
		return errors.Wrap(err, errors.ErrorTypeIntegrity, "failed to store record").
			WithDetail("point", pt.String())
	}
	p.mu.Lock()
	p.summary.Written++
	p.mu.Unlock()
	if p.collector != nil {
		p.collector.RecordsWritten.Inc()
	}

	for _, s := range p.secondary {
		if err := s.sink.Emit(pctx, pt, rec); err != nil {
			log.Warn("sink rejected record",
				zap.String("sink", s.name),
				zap.String("point", pt.String()),
				zap.Error(err))
			p.mu.Lock()
			if p.summary.SinkErrors == nil {
				p.summary.SinkErrors = make(map[string]int)
			}
			p.summary.SinkErrors[s.name]++
			p.mu.Unlock()
			if p.collector != nil {
				p.collector.SinkErrors.WithLabelValues(s.name).Inc()
			}
		}
	}

	log.Debug("record appended",
		zap.String("point", pt.String()),
		zap.String("outcome", res.Outcome()),
		zap.Strings("misses", misses),
		zap.Stringer("record", rec))
	observability.EndPoint(span, res.Outcome(), misses, res.Err)
	return nil
}

func (p *SweepPipeline) close(log *zap.Logger) error {
	for _, s := range p.secondary {
		if err := s.sink.Close(); err != nil {
			log.Warn("failed to close sink", zap.String("sink", s.name), zap.Error(err))
		}
	}
	if err := p.primary.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close data file")
	}
	return nil
}

// Metrics returns progress counters for logs and status output
func (p *SweepPipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.now().Sub(p.summary.Start)
	if !p.summary.End.IsZero() {
		elapsed = p.summary.Duration()
	}
	return map[string]interface{}{
		"points":   p.summary.Points,
		"run":      p.summary.Run,
		"written":  p.summary.Written,
		"timeouts": p.summary.Timeouts,
		"failures": p.summary.Failures,
		"elapsed":  elapsed.String(),
	}
}
