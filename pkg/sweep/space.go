// Package sweep enumerates the parameter space of an experiment.
//
// A Space names one object and a list of values per dimension. Points walks
// the Cartesian product in a fixed nesting order, outermost first:
//
//	repeat, delays, adds, removes, barriers, modes
//
// Rows are appended to storage in this order, so repeated trials of the same
// dimension values are adjacent only after sorting; aggregation sorts before
// grouping. Dimensions left empty take the analysis program's own defaults.
package sweep

import (
	"fmt"
	"iter"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

// Defaults applied to dimensions that are not configured. They match the
// flag defaults of the analysis program so that an omitted flag and an
// explicit default describe the same run.
const (
	DefaultAdds     = 1
	DefaultRemoves  = 1
	DefaultDelays   = 0
	DefaultBarriers = 0
	DefaultMode     = "counting"
	DefaultRepeat   = 1
)

// Dimension names as they appear in records, flags and Point.Param.
const (
	DimObject   = "object"
	DimMode     = "mode"
	DimShow     = "show"
	DimAdds     = "adds"
	DimRemoves  = "removes"
	DimDelays   = "delays"
	DimBarriers = "barriers"
	DimTrial    = "trial"
)

// IsDimension reports whether name is a sweep dimension rather than a
// measured field
func IsDimension(name string) bool {
	switch name {
	case DimObject, DimMode, DimShow, DimAdds, DimRemoves, DimDelays, DimBarriers, DimTrial:
		return true
	}
	return false
}

// Space is the configured parameter space of one sweep.
type Space struct {
	Object   string   `yaml:"object" mapstructure:"object" json:"object"`
	Adds     Range    `yaml:"adds,omitempty" mapstructure:"adds" json:"adds,omitempty"`
	Removes  Range    `yaml:"removes,omitempty" mapstructure:"removes" json:"removes,omitempty"`
	Delays   Range    `yaml:"delays,omitempty" mapstructure:"delays" json:"delays,omitempty"`
	Barriers Range    `yaml:"barriers,omitempty" mapstructure:"barriers" json:"barriers,omitempty"`
	Modes    []string `yaml:"modes,omitempty" mapstructure:"modes" json:"modes,omitempty"`
	// Show is passed through to the program only when set
	Show   string `yaml:"show,omitempty" mapstructure:"show" json:"show,omitempty"`
	Repeat int    `yaml:"repeat,omitempty" mapstructure:"repeat" json:"repeat,omitempty"`
}

// Normalize returns a copy of s with defaults filled in
func (s Space) Normalize() Space {
	out := s
	if len(out.Adds) == 0 {
		out.Adds = Single(DefaultAdds)
	}
	if len(out.Removes) == 0 {
		out.Removes = Single(DefaultRemoves)
	}
	if len(out.Delays) == 0 {
		out.Delays = Single(DefaultDelays)
	}
	if len(out.Barriers) == 0 {
		out.Barriers = Single(DefaultBarriers)
	}
	if len(out.Modes) == 0 {
		out.Modes = []string{DefaultMode}
	}
	if out.Repeat == 0 {
		out.Repeat = DefaultRepeat
	}
	return out
}

// Validate checks the space after defaulting
func (s Space) Validate() error {
	n := s.Normalize()
	if strings.TrimSpace(n.Object) == "" {
		return errors.New(errors.ErrorTypeConfig, "sweep object is required")
	}
	if n.Repeat < 1 {
		return errors.New(errors.ErrorTypeConfig, "repeat must be at least 1").
			WithDetail("repeat", n.Repeat)
	}
	for name, r := range map[string]Range{
		DimAdds:     n.Adds,
		DimRemoves:  n.Removes,
		DimDelays:   n.Delays,
		DimBarriers: n.Barriers,
	} {
		seen := make(map[int]bool, len(r))
		for _, v := range r {
			if v < 0 {
				return errors.New(errors.ErrorTypeConfig, "dimension values must be non-negative").
					WithDetail("dimension", name).
					WithDetail("value", v)
			}
			if seen[v] {
				return errors.New(errors.ErrorTypeConfig, "dimension value repeated; use repeat for trials").
					WithDetail("dimension", name).
					WithDetail("value", v)
			}
			seen[v] = true
		}
	}
	modes := make(map[string]bool, len(n.Modes))
	for _, m := range n.Modes {
		if strings.TrimSpace(m) == "" || strings.ContainsAny(m, " \t") {
			return errors.New(errors.ErrorTypeConfig, "invalid mode").
				WithDetail("mode", m)
		}
		if modes[m] {
			return errors.New(errors.ErrorTypeConfig, "dimension value repeated; use repeat for trials").
				WithDetail("dimension", DimMode).
				WithDetail("value", m)
		}
		modes[m] = true
	}
	return nil
}

// Count returns the number of points the space produces
func (s Space) Count() int {
	n := s.Normalize()
	if n.Repeat < 1 {
		return 0
	}
	return n.Repeat * len(n.Delays) * len(n.Adds) * len(n.Removes) * len(n.Barriers) * len(n.Modes)
}

// Points returns the lazy sequence of points. The sequence is finite and may
// be iterated any number of times with the same result. Call Validate first;
// an invalid repeat yields no points.
func (s Space) Points() iter.Seq[Point] {
	n := s.Normalize()
	return func(yield func(Point) bool) {
		for trial := 0; trial < n.Repeat; trial++ {
			for _, d := range n.Delays {
				for _, a := range n.Adds {
					for _, r := range n.Removes {
						for _, b := range n.Barriers {
							for _, m := range n.Modes {
								p := Point{
									Object:   n.Object,
									Mode:     m,
									Show:     n.Show,
									Adds:     a,
									Removes:  r,
									Delays:   d,
									Barriers: b,
									Trial:    trial,
								}
								if !yield(p) {
									return
								}
							}
						}
					}
				}
			}
		}
	}
}

// Point is one parameter combination.
type Point struct {
	Object   string
	Mode     string
	Show     string
	Adds     int
	Removes  int
	Delays   int
	Barriers int
	// Trial is the 0-based repeat index. It is not passed to the program.
	Trial int
}

// Keys lists the dimensions present in p, in flag order
func (p Point) Keys() []string {
	keys := []string{DimObject, DimMode}
	if p.Show != "" {
		keys = append(keys, DimShow)
	}
	return append(keys, DimAdds, DimRemoves, DimDelays, DimBarriers)
}

// Param returns a dimension as a record value. It implements schema.Params.
func (p Point) Param(name string) (models.Value, bool) {
	switch name {
	case DimObject:
		return models.String(p.Object), p.Object != ""
	case DimMode:
		return models.String(p.Mode), p.Mode != ""
	case DimShow:
		return models.String(p.Show), p.Show != ""
	case DimAdds:
		return models.Int(int64(p.Adds)), true
	case DimRemoves:
		return models.Int(int64(p.Removes)), true
	case DimDelays:
		return models.Int(int64(p.Delays)), true
	case DimBarriers:
		return models.Int(int64(p.Barriers)), true
	case DimTrial:
		return models.Int(int64(p.Trial)), true
	default:
		return models.Missing(), false
	}
}

// String renders the point for logs
func (p Point) String() string {
	var b strings.Builder
	b.WriteString(p.Object)
	for _, k := range p.Keys()[1:] {
		v, _ := p.Param(k)
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	if p.Trial > 0 {
		fmt.Fprintf(&b, " trial=%d", p.Trial)
	}
	return b.String()
}
