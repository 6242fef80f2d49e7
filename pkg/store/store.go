// Package store reads and writes sweep data files.
//
// A data file is plain text. The first line is a header of 1-based
// position:name tokens; every following line holds one record's values in
// header order:
//
//	1:adds 2:removes 3:delays 4:barriers 5:executions 6:time
//	1 1 0 0 12 0.04
//	2 1 0 0 - -
//
// Values are separated by spaces or commas. Missing values are written as
// "-" (or "?" in plot payloads) and both read back as missing. Each line is
// flushed as soon as it is written so an interrupted sweep leaves a valid
// file. Files appended to by several sessions carry one header per session;
// the reader skips repeats of the first header and rejects any other.
package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/pool"
)

// Mode selects how Create opens an existing file
type Mode int

const (
	// Truncate starts a fresh file
	Truncate Mode = iota
	// Append adds a new session to an existing file
	Append
)

// String returns the mode name
func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "truncate"
}

// ParseMode parses "truncate" or "append"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate", "create":
		return Truncate, nil
	case "append":
		return Append, nil
	default:
		return Truncate, errors.New(errors.ErrorTypeConfig, "unknown store mode").
			WithDetail("mode", s)
	}
}

// Options controls the on-disk rendering
type Options struct {
	Mode Mode
	// Delimiter separates values: ' ' or ','
	Delimiter rune
	// Missing is the marker written for missing values
	Missing string
}

// DefaultOptions returns space-delimited, truncating options
func DefaultOptions() Options {
	return Options{Mode: Truncate, Delimiter: ' ', Missing: models.MissingMarker}
}

func (o Options) normalize() (Options, error) {
	if o.Delimiter == 0 {
		o.Delimiter = ' '
	}
	if o.Delimiter != ' ' && o.Delimiter != ',' {
		return o, errors.New(errors.ErrorTypeConfig, "delimiter must be a space or a comma").
			WithDetail("delimiter", string(o.Delimiter))
	}
	if o.Missing == "" {
		o.Missing = models.MissingMarker
	}
	if !models.Coerce(o.Missing).IsMissing() {
		return o, errors.New(errors.ErrorTypeConfig, "missing marker would not read back as missing").
			WithDetail("missing", o.Missing)
	}
	return o, nil
}

func (o Options) separator() string {
	if o.Delimiter == ',' {
		return ","
	}
	return " "
}

// Header renders the header line for fields, without a newline
func Header(fields []string, opts Options) string {
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = strconv.Itoa(i+1) + ":" + f
	}
	return strings.Join(tokens, opts.separator())
}

// Row renders one record, without a newline
func Row(rec *models.Record, opts Options) string {
	values := rec.Values()
	tokens := make([]string, len(values))
	for i, v := range values {
		tokens[i] = v.Format(opts.Missing)
	}
	return strings.Join(tokens, opts.separator())
}

// Writer appends records to one data file
type Writer struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	fields []string
	opts   Options
	rows   int
}

// Create opens path for writing records with the given fields. In Truncate
// mode the file is replaced. In Append mode an existing header must list
// the same fields; a new header line opens the session.
func Create(path string, fields []string, opts Options) (*Writer, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if _, err := models.NewRecord(fields...); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid field list").
			WithDetail("file", path)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Mode == Append {
		if err := checkAppendable(path, fields); err != nil {
			return nil, err
		}
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open data file").
			WithDetail("file", path)
	}

	w := &Writer{
		path:   path,
		file:   f,
		buf:    bufio.NewWriter(f),
		fields: append([]string(nil), fields...),
		opts:   opts,
	}
	if err := w.line(Header(fields, opts)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// checkAppendable verifies that an existing file's header matches fields
func checkAppendable(path string, fields []string) error {
	existing, err := ReadHeader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if existing == nil {
		return nil
	}
	if !equalFields(existing, fields) {
		return errors.New(errors.ErrorTypeIntegrity, "cannot append: existing header lists different fields").
			WithDetail("file", path).
			WithDetail("existing", strings.Join(existing, ",")).
			WithDetail("fields", strings.Join(fields, ","))
	}
	return nil
}

// Write appends rec and flushes it to the file. rec must have exactly the
// writer's fields in order.
func (w *Writer) Write(rec *models.Record) error {
	if !equalFields(rec.Fields(), w.fields) {
		return errors.New(errors.ErrorTypeIntegrity, "record fields do not match the file header").
			WithDetail("file", w.path).
			WithDetail("expected", len(w.fields)).
			WithDetail("actual", rec.Len())
	}
	if err := w.line(Row(rec, w.opts)); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *Writer) line(s string) error {
	if _, err := w.buf.WriteString(s); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write data file").WithDetail("file", w.path)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write data file").WithDetail("file", w.path)
	}
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush data file").WithDetail("file", w.path)
	}
	return nil
}

// Path returns the file path
func (w *Writer) Path() string { return w.path }

// Fields returns the header fields
func (w *Writer) Fields() []string { return append([]string(nil), w.fields...) }

// Rows returns the number of records written in this session
func (w *Writer) Rows() int { return w.rows }

// Close closes the file
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close data file").WithDetail("file", w.path)
	}
	return nil
}

// Format serializes records in the data file format. All records must share
// one shape. An empty sequence renders as an empty string.
func Format(records []*models.Record, opts Options) (string, error) {
	opts, err := opts.normalize()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	first := records[0]
	b := pool.GetBuffer()
	defer pool.PutBuffer(b)
	b.WriteString(Header(first.Fields(), opts))
	b.WriteByte('\n')
	for i, rec := range records {
		if !rec.SameShape(first) {
			return "", errors.New(errors.ErrorTypeIntegrity, "records do not share one shape").
				WithDetail("operation", "format").
				WithDetail("record", i+1)
		}
		b.WriteString(Row(rec, opts))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String describes the writer for logs
func (w *Writer) String() string {
	return fmt.Sprintf("%s (%s, %d fields)", w.path, w.opts.Mode, len(w.fields))
}
