package json

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sweepline/pkg/models"
)

func sample(t *testing.T) *models.Record {
	t.Helper()
	r := models.MustRecord("object", "adds", "time", "covered")
	require.NoError(t, r.Set("object", models.String("msq")))
	require.NoError(t, r.Set("adds", models.Int(2)))
	require.NoError(t, r.Set("time", models.Float(3.2)))
	return r
}

func TestAppendRecordKeepsOrder(t *testing.T) {
	out, err := AppendRecord(nil, sample(t))
	require.NoError(t, err)
	assert.Equal(t, `{"object":"msq","adds":2,"time":3.2,"covered":null}`, string(out))

	// the output is valid JSON for the standard decoder too
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Nil(t, m["covered"])
}

func TestRecordMarshaler(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"record": Record{sample(t)}, "none": Record{}})
	require.NoError(t, err)
	assert.Equal(t, `{"none":null,"record":{"object":"msq","adds":2,"time":3.2,"covered":null}}`, string(data))
}

func TestLinesWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLinesWriter(&buf)
	require.NoError(t, lw.WriteRecord(sample(t)))
	require.NoError(t, lw.Encode(map[string]int{"points": 2}))
	require.NoError(t, lw.WriteRecord(sample(t)))
	require.NoError(t, lw.Close())
	assert.Equal(t, 3, lw.Count())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, lines[0], lines[2])
	assert.Equal(t, `{"points":2}`, lines[1])
}

func TestDecoderUsesNumber(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, NewDecoder(strings.NewReader(`{"n": 12}`)).Decode(&v))
	assert.IsType(t, json.Number(""), v["n"])
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}

func TestRawObjectRoundTrip(t *testing.T) {
	r := sample(t)
	require.NoError(t, r.Set("covered", models.Float(2)))
	line, err := AppendRecord(nil, r)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"covered":2.0`)

	var raw RawObject
	require.NoError(t, Unmarshal(line, &raw))
	back, err := raw.Record()
	require.NoError(t, err)
	assert.True(t, r.Equal(back), "got %s", back)

	require.NoError(t, Unmarshal([]byte(`{"b":null,"a":true}`), &raw))
	back, err = raw.Record()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, back.Fields())
	assert.True(t, back.Value("b").IsMissing())

	assert.Error(t, Unmarshal([]byte(`{"a":[1]}`), &raw))
	assert.Error(t, Unmarshal([]byte(`[1]`), &raw))
}
