// Package export converts data files into formats other tools load
// directly: JSON lines, Arrow IPC files and Avro object container files.
//
// Column types come from schema.InferColumns. Missing values become JSON
// null, Arrow nulls and Avro null union branches, so an export keeps the
// difference between a metric that was not reported and a zero.
package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	jsonpool "github.com/ajitpratap0/sweepline/pkg/json"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/schema"
)

// Format is an export format
type Format string

const (
	JSONL Format = "jsonl"
	Arrow Format = "arrow"
	Avro  Format = "avro"
)

// Formats lists the supported formats
func Formats() []Format {
	return []Format{JSONL, Arrow, Avro}
}

// ParseFormat parses a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case JSONL, "ndjson":
		return JSONL, nil
	case Arrow, "ipc", "feather":
		return Arrow, nil
	case Avro:
		return Avro, nil
	}
	return "", errors.New(errors.ErrorTypeConfig, "unknown export format").
		WithDetail("format", s)
}

// FormatFromPath infers the format from a file name, ignoring a trailing
// compression extension
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(compression.StripExtension(path)))
}

// Write encodes records to w in format f using the column layout cols
func Write(w io.Writer, f Format, cols *models.Schema, records []*models.Record) error {
	switch f {
	case JSONL:
		lw := jsonpool.NewLinesWriter(w)
		defer lw.Close()
		for _, r := range records {
			if err := lw.WriteRecord(r); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode record")
			}
		}
		return nil
	case Arrow:
		return writeArrow(w, cols, records)
	case Avro:
		return writeAvro(w, cols, records)
	}
	return errors.New(errors.ErrorTypeConfig, "unknown export format").
		WithDetail("format", string(f))
}

// Read decodes records written by Write
func Read(r io.Reader, f Format) ([]*models.Record, error) {
	switch f {
	case JSONL:
		return readJSONL(r)
	case Arrow:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read arrow data")
		}
		return readArrow(bytes.NewReader(data))
	case Avro:
		return readAvro(r)
	}
	return nil, errors.New(errors.ErrorTypeConfig, "unknown export format").
		WithDetail("format", string(f))
}

// WriteFile infers the column layout of records and writes them to path.
// The format comes from the extension, and a trailing compression
// extension (.gz, .zst, ...) compresses the output.
func WriteFile(path, name string, records []*models.Record, level compression.Level) (*models.Schema, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	cols, err := schema.InferColumns(name, records)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create export").
			WithDetail("file", path)
	}
	defer out.Close()

	cw, err := compression.NewWriter(out, compression.FromPath(path), level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to set up compression").
			WithDetail("file", path)
	}
	if err := Write(cw, f, cols, records); err != nil {
		_ = cw.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write export").
			WithDetail("file", path)
	}
	if err := cw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to finish export").
			WithDetail("file", path)
	}
	if err := out.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to close export").
			WithDetail("file", path)
	}
	return cols, nil
}

// ReadFile reads an export written by WriteFile
func ReadFile(path string) ([]*models.Record, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open export").
			WithDetail("file", path)
	}
	defer in.Close()

	r, err := compression.NewReader(in, compression.FromPath(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decompress export").
			WithDetail("file", path)
	}
	defer r.Close()
	return Read(r, f)
}

// valueFor converts v to the Go value stored in a column of kind k
func valueFor(v models.Value, k models.Kind) interface{} {
	if v.IsMissing() {
		return nil
	}
	switch k {
	case models.KindInt:
		i, _ := v.Int()
		return i
	case models.KindFloat:
		f, _ := v.Number()
		return f
	default:
		return v.Format("")
	}
}

// fromNative converts a decoded value back into a record value
func fromNative(x interface{}) models.Value {
	switch t := x.(type) {
	case nil:
		return models.Missing()
	case int64:
		return models.Int(t)
	case int32:
		return models.Int(int64(t))
	case int:
		return models.Int(int64(t))
	case float64:
		return models.Float(t)
	case float32:
		return models.Float(float64(t))
	case string:
		return models.String(t)
	default:
		return models.Missing()
	}
}

func readJSONL(r io.Reader) ([]*models.Record, error) {
	dec := jsonpool.NewDecoder(r)
	var out []*models.Record
	for line := 1; ; line++ {
		var raw jsonpool.RawObject
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid JSON line").
				WithDetail("line", line)
		}
		rec, err := raw.Record()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid JSON record").
				WithDetail("line", line)
		}
		out = append(out, rec)
	}
}
