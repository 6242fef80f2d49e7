package schema

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

type fakeParams map[string]models.Value

func (p fakeParams) Param(name string) (models.Value, bool) {
	v, ok := p[name]
	return v, ok
}

const coverageOutput = `bkq w/ 2 adds, 1 removes, 0 delays, 0 barriers.
Line-Up found 3 violations / 7 histories; Operation-Counting covers 5.
Operation-Counting found 4 violations / 2 histories.
120 schedules enumerated in 1.75s.
`

func TestDefaultSchemaScenario(t *testing.T) {
	rec := Default.Apply("5 schedules enumerated in 3.2s.")

	assert.Equal(t, Default.Names(), rec.Fields())

	executions := rec.Value("executions")
	assert.Equal(t, models.KindInt, executions.Kind())
	n, _ := executions.Int()
	assert.Equal(t, int64(5), n)

	elapsed := rec.Value("time")
	assert.Equal(t, models.KindFloat, elapsed.Kind())
	f, _ := elapsed.Float()
	assert.Equal(t, 3.2, f)

	for _, name := range []string{"adds", "removes", "delays", "barriers"} {
		assert.True(t, rec.Value(name).IsMissing(), name)
	}
}

func TestKeySetIsFixed(t *testing.T) {
	texts := []string{
		"",
		"garbage",
		coverageOutput,
		"5 schedules enumerated in 3.2s.\n5 schedules enumerated in 9.9s.",
	}
	for _, s := range []*Schema{Dimensions, Default, Coverage, Runtime} {
		for _, text := range texts {
			rec := s.Apply(text)
			assert.Equal(t, s.Names(), rec.Fields(), "schema %s", s.Name())
		}
	}
}

func TestPatternsAreIndependent(t *testing.T) {
	// lines in any order; the first match of each pattern wins
	text := "Operation-Counting found 4 violations / 2 histories.\n" +
		"9 schedules enumerated in 0.5s.\n" +
		"w/ 1 adds, 1 removes, 0 delays, 0 barriers.\n"

	rec := Coverage.Apply(text)
	assert.True(t, models.Int(9).Equal(rec.Value("executions")))
	assert.True(t, models.Int(1).Equal(rec.Value("adds")))
	assert.True(t, models.Int(2).Equal(rec.Value("c_histories")))
	assert.True(t, rec.Value("covered").IsMissing())

	rec = Default.Apply("5 schedules enumerated in 3.2s.\n5 schedules enumerated in 9.9s.")
	assert.True(t, models.Float(3.2).Equal(rec.Value("time")))
}

func TestCoverageColumns(t *testing.T) {
	names := Coverage.Names()
	require.Len(t, names, 11)
	assert.Equal(t, "bad_histories", names[7])
	assert.Equal(t, "covered", names[8])
	assert.Equal(t, "c_histories", names[10])

	rec, misses := Coverage.Extract(coverageOutput, nil)
	assert.Empty(t, misses)
	assert.Equal(t, "adds=2 removes=1 delays=0 barriers=0 executions=120 time=1.75 "+
		"bad_executions=3 bad_histories=7 covered=5 c_executions=4 c_histories=2", rec.String())
}

func TestEmptyCaptureIsMissing(t *testing.T) {
	s, err := New("opt", Text("tag", `tag=([\w-]*);`))
	require.NoError(t, err)

	rec := s.Apply("tag=;")
	assert.True(t, rec.Value("tag").IsMissing())

	rec = s.Apply("tag=Line-Up;")
	assert.True(t, models.String("Line_Up").Equal(rec.Value("tag")))
}

func TestWholeMatchWithoutGroups(t *testing.T) {
	s := MustNew("whole", Text("ok", `\d+`))
	assert.True(t, models.Int(42).Equal(s.Apply("answer 42").Value("ok")))
}

func TestParamFields(t *testing.T) {
	params := fakeParams{
		"object": models.String("msq"),
		"mode":   models.String("none"),
		"trial":  models.Int(0),
	}
	rec, misses := Runtime.Extract("5 schedules enumerated in 3.2s.", params)

	assert.Equal(t, []string{"object", "mode", "trial", "adds", "removes", "delays",
		"barriers", "executions", "time", "violations"}, rec.Fields())
	assert.True(t, models.String("msq").Equal(rec.Value("object")))
	assert.True(t, models.String("none").Equal(rec.Value("mode")))
	assert.NotContains(t, misses, "object")
	assert.Contains(t, misses, "violations")
	assert.Contains(t, misses, "adds")

	// without params the bound fields are missing but present
	rec = Runtime.Apply("5 schedules enumerated in 3.2s.")
	assert.True(t, rec.Value("object").IsMissing())
	assert.True(t, rec.Has("object"))
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"duplicate", []Field{Text("a", `(\d+)`), Text("a", `(\d+)`)}},
		{"unnamed", []Field{Text("", `(\d+)`)}},
		{"bad regexp", []Field{Text("a", `(\d+`)}},
		{"group out of range", []Field{TextGroup("a", `(\d+)`, 2)}},
		{"no pattern", []Field{{Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.fields...)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestExtendKeepsEarlierFields(t *testing.T) {
	base := MustNew("base", Text("a", `a=(\d+)`), Text("b", `b=(\d+)`))
	ext, err := base.Extend("ext", Text("b", `B=(\d+)`), Text("c", `c=(\d+)`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ext.Names())
	rec := ext.Apply("a=1 b=2 B=3 c=4")
	assert.True(t, models.Int(2).Equal(rec.Value("b")))

	// the base is untouched
	assert.Equal(t, []string{"a", "b"}, base.Names())
}

func TestMerge(t *testing.T) {
	left := MustNew("l", Text("x", `x=(\d+)`), Text("y", `y=(\d+)`))
	right := MustNew("r", Text("y", `Y=(\d+)`), Text("z", `z=(\d+)`))

	m, err := Merge("m", left, right)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, m.Names())
}

func TestFamily(t *testing.T) {
	fields := Family(0, 2, func(k int) []Field {
		return []Field{
			Text(fmt.Sprintf("c%d_covered", k), fmt.Sprintf(`k=%d covered (\d+)`, k)),
			Text("shared", `shared (\d+)`),
		}
	})
	s, err := New("fam", fields...)
	require.NoError(t, err)
	assert.Equal(t, []string{"c0_covered", "shared", "c1_covered", "c2_covered"}, s.Names())
}

func TestCoverageDepth(t *testing.T) {
	s, err := CoverageDepth(2)
	require.NoError(t, err)

	names := s.Names()
	assert.Equal(t, Coverage.Names(), names[:Coverage.Len()])
	assert.Equal(t, []string{"c0_covered", "c0_histories", "c1_covered", "c1_histories",
		"c2_covered", "c2_histories"}, names[Coverage.Len():])

	rec := s.Apply("Operation-Counting(k=1) covers 6 / 9 histories.")
	assert.True(t, models.Int(6).Equal(rec.Value(DepthField(1, "covered"))))
	assert.True(t, models.Int(9).Equal(rec.Value(DepthField(1, "histories"))))
	assert.True(t, rec.Value(DepthField(0, "covered")).IsMissing())

	_, err = CoverageDepth(-1)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	e, err := r.Lookup("coverage")
	require.NoError(t, err)
	assert.Same(t, Coverage, e.Schema)

	e, err = r.Lookup("depth:3")
	require.NoError(t, err)
	assert.True(t, e.Schema.Len() > Coverage.Len())

	_, err = r.Lookup("depth:x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = r.Lookup("nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	assert.Error(t, r.Register(&Experiment{Name: "coverage", Schema: Coverage}))

	var names []string
	for _, e := range r.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"coverage", "default", "runtime"}, names)
}

func TestInferColumns(t *testing.T) {
	a := models.MustRecord("n", "t", "label", "empty")
	require.NoError(t, a.Set("n", models.Int(1)))
	require.NoError(t, a.Set("t", models.Int(2)))
	require.NoError(t, a.Set("label", models.String("x")))

	b := a.Clone()
	require.NoError(t, b.Set("t", models.Float(2.5)))
	require.NoError(t, b.Set("label", models.Missing()))

	got, err := InferColumns("mixed", []*models.Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, []models.Field{
		{Name: "n", Type: models.KindInt},
		{Name: "t", Type: models.KindFloat},
		{Name: "label", Type: models.KindString, Nullable: true},
		{Name: "empty", Type: models.KindMissing, Nullable: true},
	}, got.Fields)

	other := models.MustRecord("n")
	_, err = InferColumns("bad", []*models.Record{a, other})
	assert.True(t, errors.IsType(err, errors.ErrorTypeIntegrity))

	empty, err := InferColumns("none", nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Fields)
}
