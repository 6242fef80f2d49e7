package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/schema"
)

func records(t *testing.T) []*models.Record {
	t.Helper()
	var out []*models.Record
	for i, covered := range []models.Value{models.Int(4), models.Missing(), models.Int(0)} {
		r := models.MustRecord("object", "adds", "time", "covered", "notes")
		require.NoError(t, r.Set("object", models.String("msq")))
		require.NoError(t, r.Set("adds", models.Int(int64(i+1))))
		require.NoError(t, r.Set("time", models.Float(1.5*float64(i+1))))
		require.NoError(t, r.Set("covered", covered))
		out = append(out, r)
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	in := records(t)
	cols, err := schema.InferColumns("coverage", in)
	require.NoError(t, err)

	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, f, cols, in))

			out, err := Read(&buf, f)
			require.NoError(t, err)
			require.Len(t, out, len(in))
			for i := range in {
				assert.True(t, in[i].Equal(out[i]), "row %d: want %s got %s", i, in[i], out[i])
			}
		})
	}
}

func TestWriteFileCompressed(t *testing.T) {
	dir := t.TempDir()
	in := records(t)

	for _, name := range []string{"out.jsonl.gz", "out.arrow.zst", "out.avro", "out.ndjson.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			cols, err := WriteFile(path, "coverage", in, compression.Default)
			require.NoError(t, err)
			assert.Equal(t, "coverage", cols.Name)
			require.Len(t, cols.Fields, 5)
			assert.Equal(t, models.KindInt, cols.Fields[3].Type)
			assert.True(t, cols.Fields[3].Nullable)
			assert.Equal(t, models.KindMissing, cols.Fields[4].Type)

			out, err := ReadFile(path)
			require.NoError(t, err)
			require.Len(t, out, len(in))
			assert.True(t, in[1].Equal(out[1]))
		})
	}
}

func TestWidenedColumns(t *testing.T) {
	a := models.MustRecord("n")
	require.NoError(t, a.Set("n", models.Int(2)))
	b := models.MustRecord("n")
	require.NoError(t, b.Set("n", models.Float(2.5)))
	in := []*models.Record{a, b}
	cols, err := schema.InferColumns("mixed", in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Arrow, cols, in))
	out, err := Read(&buf, Arrow)
	require.NoError(t, err)
	// integers in a float column come back as floats
	f, ok := out[0].Value("n").Float()
	require.True(t, ok)
	assert.Equal(t, 2.0, f)
}

func TestAvroSchema(t *testing.T) {
	cols := &models.Schema{Name: "runtime.v2", Fields: []models.Field{
		{Name: "adds", Type: models.KindInt},
		{Name: "1st-depth", Type: models.KindFloat, Nullable: true},
	}}
	spec, err := AvroSchema(cols)
	require.NoError(t, err)
	assert.Contains(t, spec, `"name":"runtime_v2"`)
	assert.Contains(t, spec, `{"name":"adds","type":"long"}`)
	assert.Contains(t, spec, `{"name":"_1st_depth","type":["null","double"]}`)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"jsonl", JSONL},
		{".ndjson", JSONL},
		{"ARROW", Arrow},
		{"feather", Arrow},
		{"avro", Avro},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("csv")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	f, err := FormatFromPath("/tmp/coverage.avro.gz")
	require.NoError(t, err)
	assert.Equal(t, Avro, f)
	_, err = FormatFromPath("/tmp/coverage.dat")
	assert.Error(t, err)
}

func TestReadRejectsGarbage(t *testing.T) {
	for _, f := range Formats() {
		_, err := Read(bytes.NewReader([]byte("not an export\n")), f)
		assert.Error(t, err, string(f))
	}
}
