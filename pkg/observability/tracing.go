// Package observability provides tracing and host facts for sweeps
package observability

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Output is the file spans are written to as JSON. Empty means stderr.
	Output       string  `yaml:"output,omitempty" mapstructure:"output"`
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
}

// DefaultTracingConfig returns a disabled tracing config that samples every
// span once enabled
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{SamplingRate: 1.0, ServiceName: "sweepline"}
}

// Tracer starts sweep and point spans. A disabled Tracer hands out no-op
// spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// NewTracer creates a tracer for config. Spans go to config.Output.
func NewTracer(config TracingConfig, version string) (*Tracer, error) {
	if !config.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}, nil
	}
	var (
		w   io.Writer = os.Stderr
		out io.Closer
	)
	if config.Output != "" {
		if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil { //nolint:gosec
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create trace directory")
		}
		f, err := os.Create(config.Output) //nolint:gosec // path comes from configuration
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create trace file").
				WithDetail("file", config.Output)
		}
		w, out = f, f
	}
	t, err := NewTracerWithWriter(config, version, w)
	if err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, err
	}
	t.out = out
	return t, nil
}

// NewTracerWithWriter creates an enabled tracer exporting to w
func NewTracerWithWriter(config TracingConfig, version string, w io.Writer) (*Tracer, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace resource")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithBatcher(exporter),
	)
	return &Tracer{tracer: tp.Tracer(config.ServiceName), provider: tp}, nil
}

// Enabled reports whether spans are exported
func (t *Tracer) Enabled() bool {
	return t.provider != nil
}

// StartSweep starts the root span of a sweep
func (t *Tracer) StartSweep(ctx context.Context, sweepID, experiment, object string, points int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "sweep",
		trace.WithAttributes(
			attribute.String("sweep.id", sweepID),
			attribute.String("sweep.experiment", experiment),
			attribute.String("sweep.object", object),
			attribute.Int("sweep.points", points),
		))
}

// StartPoint starts the span of one invocation
func (t *Tracer) StartPoint(ctx context.Context, p sweep.Point) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("point.object", p.Object),
		attribute.String("point.mode", p.Mode),
		attribute.Int("point.adds", p.Adds),
		attribute.Int("point.removes", p.Removes),
		attribute.Int("point.delays", p.Delays),
		attribute.Int("point.barriers", p.Barriers),
		attribute.Int("point.trial", p.Trial),
	}
	if p.Show != "" {
		attrs = append(attrs, attribute.String("point.show", p.Show))
	}
	return t.tracer.Start(ctx, "sweep.point", trace.WithAttributes(attrs...))
}

// EndPoint records the outcome of an invocation and ends its span
func EndPoint(span trace.Span, outcome string, misses []string, err error) {
	span.SetAttributes(
		attribute.String("point.outcome", outcome),
		attribute.StringSlice("point.misses", misses),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes pending spans and closes the output file
func (t *Tracer) Shutdown(ctx context.Context) error {
	var err error
	if t.provider != nil {
		if serr := t.provider.Shutdown(ctx); serr != nil {
			err = errors.Wrap(serr, errors.ErrorTypeInternal, "failed to flush spans")
		}
	}
	if t.out != nil {
		if cerr := t.out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close trace file")
		}
		t.out = nil
	}
	return err
}
