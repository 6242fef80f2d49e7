package config

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/invoker"
	"github.com/ajitpratap0/sweepline/pkg/logger"
	"github.com/ajitpratap0/sweepline/pkg/observability"
	"github.com/ajitpratap0/sweepline/pkg/publish"
	"github.com/ajitpratap0/sweepline/pkg/report"
	"github.com/ajitpratap0/sweepline/pkg/schema"
	"github.com/ajitpratap0/sweepline/pkg/store"
	"github.com/ajitpratap0/sweepline/pkg/stream"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// Config is the complete configuration of a sweepline run
type Config struct {
	// Sweep describes what to run and where rows go
	Sweep SweepConfig `yaml:"sweep" mapstructure:"sweep"`

	// Invoker describes how the analysis program is executed
	Invoker invoker.Config `yaml:"invoker" mapstructure:"invoker"`

	// Report configures the plotting backend
	Report report.Config `yaml:"report" mapstructure:"report"`

	// Observability configures logs, metrics and traces
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`

	// Publish uploads artifacts to object storage
	Publish publish.Config `yaml:"publish" mapstructure:"publish"`

	// Stream mirrors records to Kafka while a sweep runs
	Stream stream.Config `yaml:"stream" mapstructure:"stream"`
}

// SweepConfig names the experiment, its parameter space and its data file
type SweepConfig struct {
	Experiment string      `yaml:"experiment" mapstructure:"experiment"`
	Space      sweep.Space `yaml:"space" mapstructure:"space"`
	// Data is the tabular file rows are written to
	Data string `yaml:"data" mapstructure:"data"`
	// Mode is truncate or append
	Mode string `yaml:"mode" mapstructure:"mode"`
	// Delimiter is "space" or "comma"
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	// LiveReport re-renders the experiment's report after every point
	LiveReport bool `yaml:"live_report" mapstructure:"live_report"`
	// Baseline is the mode runtime reports normalize against
	Baseline string `yaml:"baseline,omitempty" mapstructure:"baseline"`
	// Archive compresses the data file when the sweep ends (gzip, zstd, ...)
	Archive string `yaml:"archive,omitempty" mapstructure:"archive"`
}

// ObservabilityConfig groups logging, metrics and tracing
type ObservabilityConfig struct {
	Log logger.Config `yaml:"log" mapstructure:"log"`
	// MetricsFile receives Prometheus metrics at the end of a sweep
	MetricsFile string                      `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
	Tracing     observability.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// NewConfig returns a configuration with defaults for every section
func NewConfig() *Config {
	return &Config{
		Sweep: SweepConfig{
			Experiment: "default",
			Space:      sweep.Space{}.Normalize(),
			Mode:       store.Truncate.String(),
			Delimiter:  "space",
		},
		Invoker: invoker.DefaultConfig(),
		Report:  report.DefaultConfig(),
		Observability: ObservabilityConfig{
			Log:     logger.DefaultConfig(),
			Tracing: observability.DefaultTracingConfig(),
		},
		Publish: publish.DefaultConfig(),
		Stream:  stream.DefaultConfig(),
	}
}

// Validate checks the sections every command relies on
func (c *Config) Validate() error {
	if _, err := c.StoreOptions(); err != nil {
		return err
	}
	if c.Sweep.Archive != "" {
		if _, err := compressionAlgorithm(c.Sweep.Archive); err != nil {
			return err
		}
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.Publish.Enabled() {
		if _, err := publish.ParseTarget(c.Publish.Target); err != nil {
			return err
		}
	}
	return validateLog(c.Observability.Log)
}

// ValidateSweep additionally checks what running a sweep needs. A nil
// registry means the built-in experiments.
func (c *Config) ValidateSweep(registry *schema.Registry) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if registry == nil {
		registry = schema.DefaultRegistry()
	}
	if _, err := registry.Lookup(c.Sweep.Experiment); err != nil {
		return err
	}
	if strings.TrimSpace(c.Sweep.Data) == "" {
		return errors.New(errors.ErrorTypeConfig, "sweep data file is required")
	}
	if err := c.Sweep.Space.Validate(); err != nil {
		return err
	}
	return c.Invoker.Validate()
}

// StoreOptions converts the sweep's storage settings
func (c *Config) StoreOptions() (store.Options, error) {
	opts := store.DefaultOptions()
	mode, err := store.ParseMode(c.Sweep.Mode)
	if err != nil {
		return opts, err
	}
	opts.Mode = mode
	switch strings.ToLower(c.Sweep.Delimiter) {
	case "", "space", " ":
		opts.Delimiter = ' '
	case "comma", ",":
		opts.Delimiter = ','
	default:
		return opts, errors.New(errors.ErrorTypeConfig, "delimiter must be space or comma").
			WithDetail("delimiter", c.Sweep.Delimiter)
	}
	return opts, nil
}

func validateLog(cfg logger.Config) error {
	if cfg.Level != "" {
		if _, err := zapcore.ParseLevel(cfg.Level); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log level").
				WithDetail("level", cfg.Level)
		}
	}
	switch cfg.Encoding {
	case "", "console", "json":
		return nil
	}
	return errors.New(errors.ErrorTypeConfig, "log encoding must be console or json").
		WithDetail("encoding", cfg.Encoding)
}
