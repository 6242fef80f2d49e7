package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/report"
	"github.com/ajitpratap0/sweepline/pkg/store"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// Sink receives every extracted record of a sweep, in point order
type Sink interface {
	Emit(ctx context.Context, p sweep.Point, rec *models.Record) error
	Close() error
}

// StoreSink appends records to a tabular data file
type StoreSink struct {
	w *store.Writer
}

// NewStoreSink opens path for the schema's fields
func NewStoreSink(path string, fields []string, opts store.Options) (*StoreSink, error) {
	w, err := store.Create(path, fields, opts)
	if err != nil {
		return nil, err
	}
	return &StoreSink{w: w}, nil
}

// Emit writes one line and flushes it
func (s *StoreSink) Emit(_ context.Context, _ sweep.Point, rec *models.Record) error {
	return s.w.Write(rec)
}

// Path returns the data file
func (s *StoreSink) Path() string {
	return s.w.Path()
}

// Close closes the data file
func (s *StoreSink) Close() error {
	return s.w.Close()
}

// ReportFunc builds the report for the data gathered so far. p is the
// point that was just run.
type ReportFunc func(records []*models.Record, p sweep.Point) (*report.Report, error)

// LiveReport re-renders a report from the data file after every point, so
// the graph tracks a long sweep while it runs
type LiveReport struct {
	path    string
	emitter *report.Emitter
	build   ReportFunc
	logger  *zap.Logger
}

// NewLiveReport creates a live report over the data file at path
func NewLiveReport(path string, emitter *report.Emitter, build ReportFunc, logger *zap.Logger) *LiveReport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveReport{path: path, emitter: emitter, build: build, logger: logger}
}

// Emit reads the data file back and renders the report
func (l *LiveReport) Emit(ctx context.Context, p sweep.Point, _ *models.Record) error {
	records, err := store.Read(l.path)
	if err != nil {
		return err
	}
	r, err := l.build(records, p)
	if err != nil {
		// points before the first complete group have nothing to plot
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			l.logger.Debug("nothing to plot yet", zap.String("point", p.String()))
			return nil
		}
		return err
	}
	return l.emitter.Emit(ctx, r)
}

// Close is a no-op
func (l *LiveReport) Close() error {
	return nil
}
