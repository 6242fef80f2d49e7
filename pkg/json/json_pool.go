// Package json provides JSON serialization backed by goccy/go-json, with
// pooled buffers and an encoding for records that keeps column order
package json

import (
	"bytes"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/pool"
)

// GetBuffer gets an empty buffer from the shared pool
func GetBuffer() *bytes.Buffer {
	return pool.GetBuffer()
}

// PutBuffer returns a buffer to the shared pool
func PutBuffer(buf *bytes.Buffer) {
	pool.PutBuffer(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewDecoder returns a decoder that keeps numbers as json.Number
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// AppendRecord appends rec to dst as a JSON object whose keys follow the
// record's column order. Missing values become null.
func AppendRecord(dst []byte, rec *models.Record) ([]byte, error) {
	dst = append(dst, '{')
	for i, name := range rec.Fields() {
		if i > 0 {
			dst = append(dst, ',')
		}
		key, err := gojson.Marshal(name)
		if err != nil {
			return nil, err
		}
		dst = append(dst, key...)
		dst = append(dst, ':')
		v := rec.At(i)
		switch v.Kind() {
		case models.KindInt, models.KindFloat:
			// floats keep their decimal point so they decode as floats
			dst = append(dst, v.Format("")...)
		case models.KindString:
			s, _ := v.Str()
			val, err := gojson.Marshal(s)
			if err != nil {
				return nil, err
			}
			dst = append(dst, val...)
		default:
			dst = append(dst, "null"...)
		}
	}
	return append(dst, '}'), nil
}

// Record is a record that marshals as an ordered JSON object
type Record struct {
	*models.Record
}

// MarshalJSON implements json.Marshaler
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Record == nil {
		return []byte("null"), nil
	}
	return AppendRecord(nil, r.Record)
}

// LinesWriter writes one JSON value per line
type LinesWriter struct {
	w   io.Writer
	buf *bytes.Buffer
	n   int
}

// NewLinesWriter creates a JSON-lines writer on w
func NewLinesWriter(w io.Writer) *LinesWriter {
	return &LinesWriter{w: w, buf: GetBuffer()}
}

// WriteRecord writes rec as one line
func (lw *LinesWriter) WriteRecord(rec *models.Record) error {
	lw.buf.Reset()
	b, err := AppendRecord(lw.buf.Bytes(), rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := lw.w.Write(b); err != nil {
		return err
	}
	lw.n++
	return nil
}

// Encode writes v as one line
func (lw *LinesWriter) Encode(v interface{}) error {
	data, err := gojson.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := lw.w.Write(append(data, '\n')); err != nil {
		return err
	}
	lw.n++
	return nil
}

// Count returns the number of lines written
func (lw *LinesWriter) Count() int {
	return lw.n
}

// Close releases the writer's buffer. The underlying writer stays open.
func (lw *LinesWriter) Close() error {
	if lw.buf != nil {
		PutBuffer(lw.buf)
		lw.buf = nil
	}
	return nil
}

// RawObject decodes a flat JSON object into a record, keeping key order.
// Numbers without a fraction or exponent become integers; null becomes
// missing.
type RawObject struct {
	names  []string
	values []models.Value
}

// UnmarshalJSON implements json.Unmarshaler
func (o *RawObject) UnmarshalJSON(data []byte) error {
	dec := NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(gojson.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	o.names, o.values = nil, nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key")
		}
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, err := valueOf(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		o.names = append(o.names, name)
		o.values = append(o.values, v)
	}
	_, err = dec.Token()
	return err
}

// Record builds the record; duplicate keys are an error
func (o *RawObject) Record() (*models.Record, error) {
	rec, err := models.NewRecord(o.names...)
	if err != nil {
		return nil, err
	}
	for i, name := range o.names {
		_ = rec.Set(name, o.values[i])
	}
	return rec, nil
}

func valueOf(raw interface{}) (models.Value, error) {
	switch t := raw.(type) {
	case nil:
		return models.Missing(), nil
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return models.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return models.Missing(), err
		}
		return models.Float(f), nil
	case string:
		return models.String(t), nil
	case bool:
		if t {
			return models.Int(1), nil
		}
		return models.Int(0), nil
	default:
		return models.Missing(), fmt.Errorf("nested values are not supported")
	}
}
