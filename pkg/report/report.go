// Package report renders record sequences through gnuplot.
//
// A script embeds the records as an inline datablock and refers to fields
// by the 1-based column numbers from aggregate.Columns, so the script and
// its data can never disagree about which column holds which field:
//
//	$data << EOD
//	# 1:adds 2:removes ... 8:bad_histories 9:covered ...
//	2 1 0 0 120 1.75 3 2 3 4 2
//	EOD
//	plot $data using 11 title "Counting Violations", $data using 9 ...
//
// Missing values are written as "?" and declared with set datafile missing.
// Records are never modified.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/aggregate"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/pool"
	"github.com/ajitpratap0/sweepline/pkg/store"
)

// Plot styles
const (
	StyleHistogramRows      = "histogram-rows"
	StyleHistogramClustered = "histogram-clustered"
	StyleLinesPoints        = "linespoints"
)

// Series is one plotted column
type Series struct {
	Field string
	Title string
	Color string
}

// Plot describes one rendered figure
type Plot struct {
	Title    string
	Output   string
	Terminal string
	XLabel   string
	YLabel   string
	Style    string
	// XTics names a field whose values label the x axis
	XTics string
	// Preamble holds extra gnuplot commands emitted before the data
	Preamble []string
	Series   []Series
}

// Config configures the plotting backend
type Config struct {
	// Backend is the gnuplot executable
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Args are passed to the backend before the script is piped to stdin
	Args []string `yaml:"args,omitempty" mapstructure:"args"`
	// Terminal is used when a plot does not name one
	Terminal string `yaml:"terminal" mapstructure:"terminal"`
	// Missing is the marker written for missing values in payloads
	Missing string `yaml:"missing" mapstructure:"missing"`
	// KeepScripts writes each script next to its output as <output>.gp
	KeepScripts bool `yaml:"keep_scripts" mapstructure:"keep_scripts"`
	// Dir is where relative output paths are placed
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// DefaultConfig returns the report defaults
func DefaultConfig() Config {
	return Config{
		Backend:  "gnuplot",
		Terminal: "pdf",
		Missing:  models.PlotMissingMarker,
		Dir:      "graphs",
	}
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Emitter builds and renders plot scripts
type Emitter struct {
	config  Config
	logger  *zap.Logger
	command commandFunc
}

// NewEmitter creates an emitter. Empty config fields take defaults.
func NewEmitter(config Config, logger *zap.Logger) *Emitter {
	def := DefaultConfig()
	if config.Backend == "" {
		config.Backend = def.Backend
	}
	if config.Terminal == "" {
		config.Terminal = def.Terminal
	}
	if config.Missing == "" {
		config.Missing = def.Missing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		config:  config,
		logger:  logger.With(zap.String("component", "report")),
		command: exec.CommandContext,
	}
}

// OutputPath resolves a plot output against the configured directory
func (e *Emitter) OutputPath(output string) string {
	if output == "" || filepath.IsAbs(output) || e.config.Dir == "" {
		return output
	}
	return filepath.Join(e.config.Dir, output)
}

// Payload renders records as the inline datablock body. The header becomes
// a comment so gnuplot does not read it as data.
func (e *Emitter) Payload(records []*models.Record) (string, error) {
	out, err := store.Format(records, store.Options{Delimiter: ' ', Missing: e.config.Missing})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", nil
	}
	return "# " + out, nil
}

// Script builds the gnuplot script for plot over records
func (e *Emitter) Script(records []*models.Record, plot Plot) (string, error) {
	if len(records) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "nothing to plot").
			WithDetail("output", plot.Output)
	}
	if len(plot.Series) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "plot has no series").
			WithDetail("output", plot.Output)
	}
	cols, err := aggregate.Columns(records)
	if err != nil {
		return "", err
	}
	column := func(field string) (int, error) {
		c, ok := cols[field]
		if !ok {
			return 0, errors.New(errors.ErrorTypeNotFound, "plotted field is not a column").
				WithDetail("field", field).
				WithDetail("output", plot.Output)
		}
		return c, nil
	}

	payload, err := e.Payload(records)
	if err != nil {
		return "", err
	}

	terminal := plot.Terminal
	if terminal == "" {
		terminal = e.config.Terminal
	}

	b := pool.GetBuffer()
	defer pool.PutBuffer(b)
	fmt.Fprintf(b, "set terminal %s\n", terminal)
	if plot.Output != "" {
		fmt.Fprintf(b, "set output %s\n", singleQuote(e.OutputPath(plot.Output)))
	}
	if plot.Title != "" {
		fmt.Fprintf(b, "set title %s\n", doubleQuote(plot.Title))
	}
	if plot.XLabel != "" {
		fmt.Fprintf(b, "set xlabel %s\n", doubleQuote(plot.XLabel))
	}
	if plot.YLabel != "" {
		fmt.Fprintf(b, "set ylabel %s\n", doubleQuote(plot.YLabel))
	}
	fmt.Fprintf(b, "set datafile missing %s\n", doubleQuote(e.config.Missing))

	switch plot.Style {
	case StyleHistogramRows:
		b.WriteString("set style data histogram\n")
		b.WriteString("set style histogram rows\n")
		b.WriteString("set style fill solid border rgb \"black\"\n")
		b.WriteString("set boxwidth 0.8\n")
	case StyleHistogramClustered:
		b.WriteString("set style data histogram\n")
		b.WriteString("set style histogram clustered gap 1\n")
		b.WriteString("set style fill solid border rgb \"black\"\n")
	case StyleLinesPoints, "":
		b.WriteString("set style data linespoints\n")
	default:
		return "", errors.New(errors.ErrorTypeValidation, "unknown plot style").
			WithDetail("style", plot.Style)
	}
	for _, line := range plot.Preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("$data << EOD\n")
	b.WriteString(payload)
	b.WriteString("EOD\n")

	xtic := ""
	if plot.XTics != "" {
		c, err := column(plot.XTics)
		if err != nil {
			return "", err
		}
		xtic = fmt.Sprintf(":xtic(%d)", c)
	}

	b.WriteString("plot \\\n")
	for i, s := range plot.Series {
		c, err := column(s.Field)
		if err != nil {
			return "", err
		}
		title := s.Title
		if title == "" {
			title = s.Field
		}
		fmt.Fprintf(b, "  $data using %d%s title %s", c, xtic, doubleQuote(title))
		if s.Color != "" {
			fmt.Fprintf(b, " lc rgb %s", doubleQuote(s.Color))
		}
		if i < len(plot.Series)-1 {
			b.WriteString(", \\\n")
		} else {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// Render builds the script and pipes it to the backend. The output
// directory is created when missing.
func (e *Emitter) Render(ctx context.Context, records []*models.Record, plot Plot) error {
	script, err := e.Script(records, plot)
	if err != nil {
		return err
	}

	output := e.OutputPath(plot.Output)
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
				WithDetail("output", output)
		}
		if e.config.KeepScripts {
			path := output + ".gp"
			if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to keep plot script").
					WithDetail("script", path)
			}
			e.logger.Debug("kept plot script", zap.String("script", path))
		}
	}

	cmd := e.command(ctx, e.config.Backend, e.config.Args...)
	cmd.Stdin = strings.NewReader(script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInvocation, "plotting backend failed").
			WithDetail("backend", e.config.Backend).
			WithDetail("output", output).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}

	e.logger.Info("rendered plot",
		zap.String("output", output),
		zap.Int("records", len(records)),
		zap.Int("series", len(plot.Series)))
	return nil
}

func doubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// singleQuote quotes s for gnuplot; inside single quotes only '' is special
func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Emit renders a built report. Negative derived counts are logged as
// warnings; they usually mean a narrower count was not contained in a wider
// one for that run.
func (e *Emitter) Emit(ctx context.Context, r *Report) error {
	for field, n := range r.Negative {
		if n > 0 {
			e.logger.Warn("derived field went negative",
				zap.String("field", field),
				zap.Int("records", n),
				zap.String("output", r.Plot.Output))
		}
	}
	return e.Render(ctx, r.Records, r.Plot)
}
