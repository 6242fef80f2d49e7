package sweep

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{in: "1..3", want: Range{1, 2, 3}},
		{in: "0..0", want: Range{0}},
		{in: " 2 .. 4 ", want: Range{2, 3, 4}},
		{in: "1,5,3", want: Range{1, 5, 3}},
		{in: "7", want: Range{7}},
		{in: "", want: nil},
		{in: "3..1", wantErr: true},
		{in: "a..2", wantErr: true},
		{in: "1,x", wantErr: true},
		{in: "1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeStringRoundTrip(t *testing.T) {
	for _, r := range []Range{{1}, {1, 2}, {1, 2, 3, 4}, {4, 2, 9}} {
		back, err := ParseRange(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, back)
	}
	assert.Equal(t, "1..4", Range{1, 2, 3, 4}.String())
}

func TestRangeYAML(t *testing.T) {
	var s Space
	doc := `
object: msq
adds: 1..3
removes: [2, 4]
delays: 1
modes: [none, counting]
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, Range{1, 2, 3}, s.Adds)
	assert.Equal(t, Range{2, 4}, s.Removes)
	assert.Equal(t, Range{1}, s.Delays)
	assert.Nil(t, s.Barriers)

	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	var back Space
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}

func TestRangeFrom(t *testing.T) {
	r, err := RangeFrom([]interface{}{1, "3..4", 9.0})
	require.NoError(t, err)
	assert.Equal(t, Range{1, 3, 4, 9}, r)

	r, err = RangeFrom(2)
	require.NoError(t, err)
	assert.Equal(t, Range{2}, r)

	_, err = RangeFrom(2.5)
	assert.Error(t, err)
	_, err = RangeFrom(map[string]int{})
	assert.Error(t, err)
}

func TestScenarioTwoPoints(t *testing.T) {
	s := Space{
		Object:   "msq",
		Adds:     MustParseRange("1..2"),
		Removes:  MustParseRange("1..1"),
		Delays:   MustParseRange("0..0"),
		Barriers: MustParseRange("0..0"),
		Modes:    []string{"none"},
	}
	require.NoError(t, s.Validate())

	points := slices.Collect(s.Points())
	require.Len(t, points, 2)
	assert.Equal(t, Point{Object: "msq", Mode: "none", Adds: 1, Removes: 1}, points[0])
	assert.Equal(t, Point{Object: "msq", Mode: "none", Adds: 2, Removes: 1}, points[1])
	assert.Equal(t, 2, s.Count())
}

func TestDefaults(t *testing.T) {
	s := Space{Object: "ts"}
	points := slices.Collect(s.Points())
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, Point{Object: "ts", Mode: DefaultMode, Adds: DefaultAdds, Removes: DefaultRemoves}, p)
	assert.Equal(t, []string{DimObject, DimMode, DimAdds, DimRemoves, DimDelays, DimBarriers}, p.Keys())

	// show is a dimension only when configured
	s.Show = "all"
	p = slices.Collect(s.Points())[0]
	assert.Contains(t, p.Keys(), DimShow)
}

func TestNestingOrder(t *testing.T) {
	s := Space{
		Object:   "bkq",
		Adds:     Range{1, 2},
		Delays:   Range{0, 1},
		Barriers: Range{0, 1},
		Modes:    []string{"none", "counting"},
	}

	var got [][4]interface{}
	for p := range s.Points() {
		got = append(got, [4]interface{}{p.Delays, p.Adds, p.Barriers, p.Mode})
	}
	require.Len(t, got, 16)
	assert.Equal(t, [4]interface{}{0, 1, 0, "none"}, got[0])
	assert.Equal(t, [4]interface{}{0, 1, 0, "counting"}, got[1])
	assert.Equal(t, [4]interface{}{0, 1, 1, "none"}, got[2])
	assert.Equal(t, [4]interface{}{0, 2, 0, "none"}, got[4])
	assert.Equal(t, [4]interface{}{1, 1, 0, "none"}, got[8])
}

func TestNoDuplicatesWithoutRepeat(t *testing.T) {
	s := Space{Object: "dq", Adds: Span(0, 3), Removes: Span(0, 2), Modes: []string{"a", "b"}}
	seen := make(map[Point]bool)
	for p := range s.Points() {
		assert.False(t, seen[p], "duplicate point %v", p)
		seen[p] = true
	}
	assert.Len(t, seen, s.Count())
}

func TestRepeat(t *testing.T) {
	s := Space{Object: "dq", Adds: Range{1, 2}, Repeat: 3}
	points := slices.Collect(s.Points())
	require.Len(t, points, 6)

	assert.Equal(t, 0, points[0].Trial)
	assert.Equal(t, 2, points[5].Trial)

	// the same dimension values repeat once per trial
	dims := func(p Point) Point { p.Trial = 0; return p }
	assert.Equal(t, dims(points[0]), dims(points[2]))
	assert.Equal(t, dims(points[1]), dims(points[5]))
}

func TestPointsRestartable(t *testing.T) {
	s := Space{Object: "lbq", Adds: Span(1, 3), Modes: []string{"none", "versus"}, Repeat: 2}
	seq := s.Points()
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// early exit does not disturb later iterations
	for range seq {
		break
	}
	assert.Equal(t, first, slices.Collect(seq))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		space Space
	}{
		{"no object", Space{}},
		{"negative repeat", Space{Object: "x", Repeat: -1}},
		{"negative adds", Space{Object: "x", Adds: Range{-1}}},
		{"blank mode", Space{Object: "x", Modes: []string{""}}},
		{"mode with space", Space{Object: "x", Modes: []string{"a b"}}},
		{"repeated adds", Space{Object: "x", Adds: MustParseRange("1,1")}},
		{"repeated barriers", Space{Object: "x", Barriers: Range{0, 1, 0}}},
		{"repeated mode", Space{Object: "x", Modes: []string{"none", "none"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.space.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
	assert.Equal(t, 0, Space{Object: "x", Repeat: -1}.Count())

	err := Space{Object: "x", Adds: Range{2, 1, 2}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adds")
	assert.NoError(t, Space{Object: "x", Adds: Range{2, 1}, Repeat: 3}.Validate())
}

func TestPointParam(t *testing.T) {
	p := Point{Object: "msq", Mode: "none", Adds: 2, Removes: 1, Trial: 1}

	v, ok := p.Param(DimAdds)
	assert.True(t, ok)
	assert.True(t, models.Int(2).Equal(v))

	v, ok = p.Param(DimObject)
	assert.True(t, ok)
	assert.True(t, models.String("msq").Equal(v))

	_, ok = p.Param(DimShow)
	assert.False(t, ok)
	_, ok = p.Param("nope")
	assert.False(t, ok)

	assert.Equal(t, "msq mode=none adds=2 removes=1 delays=0 barriers=0 trial=1", p.String())
}

func TestIsDimension(t *testing.T) {
	for _, d := range []string{DimObject, DimMode, DimAdds, DimBarriers, DimTrial} {
		assert.True(t, IsDimension(d), d)
	}
	assert.False(t, IsDimension("time"))
	assert.False(t, IsDimension("executions"))
}
