package export

import (
	"io"
	"regexp"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	jsonpool "github.com/ajitpratap0/sweepline/pkg/json"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

var avroInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)

// avroName makes s a valid Avro name
func avroName(s string) string {
	s = avroInvalid.ReplaceAllString(s, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}

func avroPrimitive(k models.Kind) string {
	switch k {
	case models.KindInt:
		return "long"
	case models.KindFloat:
		return "double"
	default:
		return "string"
	}
}

type avroField struct {
	Name    string      `json:"name"`
	Type    interface{} `json:"type"`
	Default interface{} `json:"default,omitempty"`
}

type avroRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
	Fields    []avroField `json:"fields"`
}

// AvroSchema renders the Avro record schema for a column layout. Nullable
// columns are ["null", T] unions.
func AvroSchema(cols *models.Schema) (string, error) {
	name := cols.Name
	if name == "" {
		name = "records"
	}
	rec := avroRecord{Type: "record", Name: avroName(name), Namespace: "sweepline"}
	for _, f := range cols.Fields {
		var typ interface{} = avroPrimitive(f.Type)
		if f.Nullable || f.Type == models.KindMissing {
			typ = []string{"null", avroPrimitive(f.Type)}
		}
		rec.Fields = append(rec.Fields, avroField{Name: avroName(f.Name), Type: typ})
	}
	data, err := jsonpool.Marshal(rec)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to render avro schema")
	}
	return string(data), nil
}

func writeAvro(w io.Writer, cols *models.Schema, records []*models.Record) error {
	spec, err := AvroSchema(cols)
	if err != nil {
		return err
	}
	codec, err := goavro.NewCodec(spec)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create avro codec").
			WithDetail("schema", spec)
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create avro writer")
	}

	batch := make([]interface{}, 0, len(records))
	for _, r := range records {
		native := make(map[string]interface{}, len(cols.Fields))
		for i, f := range cols.Fields {
			v := valueFor(r.At(i), f.Type)
			if v != nil && (f.Nullable || f.Type == models.KindMissing) {
				v = goavro.Union(avroPrimitive(f.Type), v)
			}
			native[avroName(f.Name)] = v
		}
		batch = append(batch, native)
	}
	if err := ocf.Append(batch); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write avro records")
	}
	return nil
}

func readAvro(r io.Reader) ([]*models.Record, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid avro file")
	}
	var spec avroRecord
	if err := jsonpool.Unmarshal([]byte(ocf.Codec().Schema()), &spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid avro schema")
	}
	names := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		names[i] = f.Name
	}

	var out []*models.Record
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid avro record").
				WithDetail("record", len(out)+1)
		}
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeIntegrity, "avro datum is not a record").
				WithDetail("record", len(out)+1)
		}
		rec, err := models.NewRecord(names...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid avro schema")
		}
		for _, name := range names {
			x := m[name]
			// union branches decode as a single-entry map
			if u, ok := x.(map[string]interface{}); ok {
				for _, inner := range u {
					x = inner
				}
			}
			_ = rec.Set(name, fromNative(x))
		}
		out = append(out, rec)
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "failed to read avro file")
	}
	return out, nil
}
