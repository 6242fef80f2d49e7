package export

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// arrowBatchSize bounds the rows held in one record batch
const arrowBatchSize = 4096

func arrowType(k models.Kind) arrow.DataType {
	switch k {
	case models.KindInt:
		return arrow.PrimitiveTypes.Int64
	case models.KindFloat:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema maps a column layout to an Arrow schema. Columns that were
// never reported become nullable strings.
func ArrowSchema(cols *models.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(cols.Fields))
	for i, f := range cols.Fields {
		fields[i] = arrow.Field{
			Name:     f.Name,
			Type:     arrowType(f.Type),
			Nullable: f.Nullable || f.Type == models.KindMissing,
		}
	}
	md := arrow.NewMetadata([]string{"sweepline.schema"}, []string{cols.Name})
	return arrow.NewSchema(fields, &md)
}

func writeArrow(w io.Writer, cols *models.Schema, records []*models.Record) error {
	mem := memory.NewGoAllocator()
	sc := ArrowSchema(cols)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(sc), ipc.WithAllocator(mem))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create arrow writer")
	}

	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return fw.Write(rec)
	}

	for n, r := range records {
		for i, f := range cols.Fields {
			appendArrow(b.Field(i), valueFor(r.At(i), f.Type))
		}
		if (n+1)%arrowBatchSize == 0 {
			if err := flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow batch")
			}
		}
	}
	if err := flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow batch")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close arrow writer")
	}
	return nil
}

func appendArrow(b array.Builder, v interface{}) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		fb.Append(v.(int64))
	case *array.Float64Builder:
		fb.Append(v.(float64))
	case *array.StringBuilder:
		fb.Append(v.(string))
	default:
		b.AppendNull()
	}
}

func readArrow(r ipc.ReadAtSeeker) ([]*models.Record, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid arrow file")
	}
	defer fr.Close()

	names := make([]string, fr.Schema().NumFields())
	for i, f := range fr.Schema().Fields() {
		names[i] = f.Name
	}

	var out []*models.Record
	for b := 0; b < fr.NumRecords(); b++ {
		batch, err := fr.Record(b)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid arrow batch").
				WithDetail("batch", b)
		}
		for row := 0; row < int(batch.NumRows()); row++ {
			rec, err := models.NewRecord(names...)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid arrow schema")
			}
			for c := range names {
				_ = rec.Set(names[c], arrowValue(batch.Column(c), row))
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func arrowValue(col arrow.Array, row int) models.Value {
	if col.IsNull(row) {
		return models.Missing()
	}
	switch a := col.(type) {
	case *array.Int64:
		return models.Int(a.Value(row))
	case *array.Float64:
		return models.Float(a.Value(row))
	case *array.String:
		return models.String(a.Value(row))
	default:
		return models.Missing()
	}
}
