// Package metrics tracks sweep progress with Prometheus metrics.
//
// Each sweep owns a Collector backed by a private registry, so concurrent
// sweeps in one process (and tests) never share counters. At the end of a
// sweep the registry can be written in the text exposition format for the
// node-exporter textfile collector.
//
// # Basic Usage
//
//	m := metrics.NewCollector("coverage", "msq")
//	timer := metrics.NewTimer()
//	res := inv.Run(ctx, p)
//	m.ObserveInvocation(res.Outcome(), timer.Stop())
//	m.RecordsWritten.Inc()
//	_ = m.WriteTextfile("/var/lib/node_exporter/sweepline.prom")
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/ajitpratap0/sweepline/pkg/errors"
)

const namespace = "sweepline"

// Collector holds the metrics of one sweep
type Collector struct {
	registry *prometheus.Registry
	start    time.Time

	// Invocations counts program runs by outcome (ok, timeout, failed)
	Invocations *prometheus.CounterVec
	// InvocationDuration is the distribution of run times in seconds
	InvocationDuration *prometheus.HistogramVec
	// ExtractionMisses counts schema fields a run's output did not report
	ExtractionMisses *prometheus.CounterVec
	// RecordsWritten counts rows appended to the data file
	RecordsWritten prometheus.Counter
	// SinkErrors counts failures of non-critical sinks
	SinkErrors *prometheus.CounterVec
	// PointsTotal is the size of the sweep space
	PointsTotal prometheus.Gauge
	// LastSuccess is the unix time the sweep finished
	LastSuccess prometheus.Gauge
}

// NewCollector creates a collector whose metrics carry the experiment and
// object as constant labels
func NewCollector(experiment, object string) *Collector {
	labels := prometheus.Labels{"experiment": experiment, "object": object}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "invocations_total",
			Help:        "Program invocations by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		InvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "invocation_duration_seconds",
			Help:        "Wall time of program invocations",
			ConstLabels: labels,
			// analysis runs range from milliseconds to the timeout budget
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		ExtractionMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "extraction_misses_total",
			Help:        "Schema fields missing from program output",
			ConstLabels: labels,
		}, []string{"field"}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_written_total",
			Help:        "Rows appended to the data file",
			ConstLabels: labels,
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sink_errors_total",
			Help:        "Records a secondary sink failed to accept",
			ConstLabels: labels,
		}, []string{"sink"}),
		PointsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "points",
			Help:        "Parameter combinations in the sweep",
			ConstLabels: labels,
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time the sweep completed",
			ConstLabels: labels,
		}),
	}
	c.registry.MustRegister(
		c.Invocations,
		c.InvocationDuration,
		c.ExtractionMisses,
		c.RecordsWritten,
		c.SinkErrors,
		c.PointsTotal,
		c.LastSuccess,
	)
	return c
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.start
}

// ObserveInvocation records one program run
func (c *Collector) ObserveInvocation(outcome string, d time.Duration) {
	c.Invocations.WithLabelValues(outcome).Inc()
	c.InvocationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveMisses records the fields an extraction did not find
func (c *Collector) ObserveMisses(fields []string) {
	for _, f := range fields {
		c.ExtractionMisses.WithLabelValues(f).Inc()
	}
}

// MarkComplete sets the completion timestamp
func (c *Collector) MarkComplete(at time.Time) {
	c.LastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is written next to its destination and renamed into place so the
// textfile collector never reads a partial file.
func (c *Collector) WriteTextfile(path string) error {
	families, err := c.registry.Gather()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to gather metrics")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create metrics directory").
			WithDetail("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create metrics file").
			WithDetail("file", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			_ = tmp.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to encode metrics").
				WithDetail("file", path)
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics file").
			WithDetail("file", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to move metrics file into place").
			WithDetail("file", path)
	}
	return nil
}

// Timer measures the duration of one operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since the timer started. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
