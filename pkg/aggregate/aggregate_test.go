package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// rec builds a record from alternating name/value pairs
func rec(t *testing.T, kv ...interface{}) *models.Record {
	t.Helper()
	var names []string
	for i := 0; i < len(kv); i += 2 {
		names = append(names, kv[i].(string))
	}
	r := models.MustRecord(names...)
	for i := 0; i < len(kv); i += 2 {
		var v models.Value
		switch x := kv[i+1].(type) {
		case int:
			v = models.Int(int64(x))
		case float64:
			v = models.Float(x)
		case string:
			v = models.String(x)
		case nil:
			v = models.Missing()
		case models.Value:
			v = x
		}
		require.NoError(t, r.Set(kv[i].(string), v))
	}
	return r
}

func number(t *testing.T, v models.Value) float64 {
	t.Helper()
	n, ok := v.Number()
	require.True(t, ok, "%v is not a number", v)
	return n
}

func TestGroupReduceMean(t *testing.T) {
	records := []*models.Record{
		rec(t, "mode", "none", "adds", 2, "time", 4, "host", "a"),
		rec(t, "mode", "none", "adds", 2, "time", 6, "host", "b"),
		rec(t, "mode", "none", "adds", 2, "time", 8, "host", "c"),
	}
	out, err := GroupReduce(records, []string{"mode", "adds"}, []string{"time"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, 6.0, number(t, out[0].Value("time")))
	assert.True(t, models.String("a").Equal(out[0].Value("host")))
	assert.True(t, models.Int(2).Equal(out[0].Value("adds")))

	// inputs untouched
	assert.True(t, models.Int(4).Equal(records[0].Value("time")))
}

func TestGroupReduceRuns(t *testing.T) {
	records := []*models.Record{
		rec(t, "adds", 1, "time", 1.0, "covered", nil),
		rec(t, "adds", 1, "time", 3.0, "covered", 4),
		rec(t, "adds", 2, "time", 5.0, "covered", nil),
		rec(t, "adds", 1, "time", 7.0, "covered", nil),
	}
	out, err := GroupReduce(records, []string{"adds"}, nil, WithCount(""))
	require.NoError(t, err)
	require.Len(t, out, 3, "only adjacent records group")

	assert.Equal(t, 2.0, number(t, out[0].Value("time")))
	assert.Equal(t, 4.0, number(t, out[0].Value("covered")))
	assert.True(t, out[1].Value("covered").IsMissing(), "all-missing run stays missing")
	assert.True(t, models.Int(2).Equal(out[0].Value(DefaultCountField)))
	assert.True(t, models.Int(1).Equal(out[2].Value(DefaultCountField)))
	assert.Equal(t, []string{"adds", "time", "covered", "trials"}, out[0].Fields())

	sorted, err := Sort(records, "adds")
	require.NoError(t, err)
	out, err = GroupReduce(sorted, []string{"adds"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 11.0/3, number(t, out[0].Value("time")), 1e-12)
}

func TestGroupReduceErrors(t *testing.T) {
	records := []*models.Record{rec(t, "mode", "none", "time", 1)}

	_, err := GroupReduce(records, []string{"mode"}, []string{"mode"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = GroupReduce(records, []string{"nope"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = GroupReduce(records, nil, nil, WithCount("time"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	mixed := append(records, rec(t, "mode", "none"))
	_, err = GroupReduce(mixed, []string{"mode"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIntegrity))

	out, err := GroupReduce(nil, []string{"mode"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompareOrder(t *testing.T) {
	ordered := []models.Value{
		models.Missing(),
		models.Int(-2),
		models.Float(0.5),
		models.Int(1),
		models.Float(1.5),
		models.String("a"),
		models.String("b"),
	}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, got, "%v < %v", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, got, "%v > %v", ordered[i], ordered[j])
			default:
				assert.Zero(t, got)
			}
		}
	}
	assert.Zero(t, Compare(models.Int(2), models.Float(2)))
}

func TestSortIsStable(t *testing.T) {
	records := []*models.Record{
		rec(t, "mode", "versus", "adds", 2, "id", 0),
		rec(t, "mode", "none", "adds", 2, "id", 1),
		rec(t, "mode", "none", "adds", 1, "id", 2),
		rec(t, "mode", "versus", "adds", 2, "id", 3),
		rec(t, "mode", "none", "adds", nil, "id", 4),
	}
	out, err := Sort(records, "mode", "adds")
	require.NoError(t, err)

	var ids []float64
	for _, r := range out {
		ids = append(ids, number(t, r.Value("id")))
	}
	assert.Equal(t, []float64{4, 2, 1, 0, 3}, ids)
	// input order untouched
	assert.Equal(t, 0.0, number(t, records[0].Value("id")))

	_, err = Sort(records, "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestFilter(t *testing.T) {
	records := []*models.Record{
		rec(t, "adds", 1, "removes", 1, "time", 0.5),
		rec(t, "adds", 2, "removes", 1, "time", 2.0),
		rec(t, "adds", 2, "removes", 2, "time", nil),
	}

	got := Filter(records, Match(map[string]models.Value{"adds": models.Int(2), "removes": models.Int(1)}))
	require.Len(t, got, 1)
	assert.Same(t, records[1], got[0])

	assert.Len(t, Filter(records, Eq("adds", models.Float(2))), 2)
	assert.Len(t, Filter(records, AtLeast("time", 1)), 1)
	assert.Len(t, Filter(records, AtMost("time", 1)), 1)
	assert.Len(t, Filter(records, Not(Present("time"))), 1)
	assert.Len(t, Filter(records, Or(Eq("adds", models.Int(1)), Eq("removes", models.Int(2)))), 2)
	assert.Len(t, Filter(records, And()), 3)
	assert.Len(t, Filter(records, Eq("unknown", models.Int(1))), 0)
}

func TestNormalizeByBaseline(t *testing.T) {
	target := []*models.Record{
		rec(t, "mode", "counting", "time", 10),
		rec(t, "mode", "counting", "time", 3),
		rec(t, "mode", "counting", "time", 4),
	}
	baseline := []*models.Record{
		rec(t, "mode", "none", "time", 2),
		rec(t, "mode", "none", "time", 0),
		rec(t, "mode", "none", "time", nil),
	}
	out, err := NormalizeByBaseline(target, baseline, "time", "overhead")
	require.NoError(t, err)

	assert.True(t, models.Float(5.0).Equal(out[0].Value("overhead")))
	assert.True(t, out[1].Value("overhead").IsMissing(), "zero baseline")
	assert.True(t, out[2].Value("overhead").IsMissing(), "missing baseline")
	assert.True(t, models.Int(10).Equal(out[0].Value("time")))

	inPlace, err := NormalizeByBaseline(target, baseline, "time", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mode", "time"}, inPlace[0].Fields())
	assert.True(t, models.Float(5.0).Equal(inPlace[0].Value("time")))

	_, err = NormalizeByBaseline(target, baseline[:2], "time", "overhead")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.True(t, errors.IsFatal(err))
}

func TestDeriveSubtract(t *testing.T) {
	records := []*models.Record{
		rec(t, "bad_histories", 7, "covered", 5, "c_histories", 2),
		rec(t, "bad_histories", 3, "covered", 1, "c_histories", 4),
		rec(t, "bad_histories", nil, "covered", 1.5, "c_histories", 1),
	}

	out, err := Derive(records, "bad_histories", Subtract("bad_histories", "covered"))
	require.NoError(t, err)
	out, err = Derive(out, "covered", Subtract("covered", "c_histories"))
	require.NoError(t, err)

	assert.True(t, models.Int(2).Equal(out[0].Value("bad_histories")))
	assert.True(t, models.Int(3).Equal(out[0].Value("covered")))
	assert.True(t, models.Int(-3).Equal(out[1].Value("covered")), "negative differences are kept")
	assert.True(t, out[2].Value("bad_histories").IsMissing())
	assert.True(t, models.Float(0.5).Equal(out[2].Value("covered")))
	assert.Equal(t, 1, NegativeCount(out, "covered"))

	// column order is preserved
	assert.Equal(t, records[0].Fields(), out[0].Fields())
	assert.True(t, models.Int(7).Equal(records[0].Value("bad_histories")))

	ratio, err := Derive(records, "share", Ratio("covered", "bad_histories"))
	require.NoError(t, err)
	assert.InDelta(t, 5.0/7, number(t, ratio[0].Value("share")), 1e-12)
	assert.Equal(t, "share", ratio[0].Fields()[3])
}

func TestColumns(t *testing.T) {
	records := []*models.Record{
		rec(t, "adds", 1, "removes", 1, "time", 0.5),
		rec(t, "adds", 2, "removes", 1, "time", 2.0),
	}
	cols, err := Columns(records)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"adds": 1, "removes": 2, "time": 3}, cols)

	_, err = Columns(append(records, rec(t, "removes", 1, "adds", 1, "time", 0.1)))
	assert.True(t, errors.IsType(err, errors.ErrorTypeIntegrity))

	cols, err = Columns(nil)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestRenameAndProject(t *testing.T) {
	records := []*models.Record{rec(t, "adds", 1, "time", 0.5, "mode", "none")}

	out, err := Rename(records, "time", "seconds")
	require.NoError(t, err)
	assert.Equal(t, []string{"adds", "seconds", "mode"}, out[0].Fields())

	_, err = Rename(records, "time", "adds")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	out, err = Project(records, "mode", "adds")
	require.NoError(t, err)
	assert.Equal(t, "mode=none adds=1", out[0].String())
}
