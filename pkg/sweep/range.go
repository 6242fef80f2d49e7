package sweep

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is an ordered list of values for one integer sweep dimension.
//
// Ranges are written in configuration files and on the command line as
// "a..b" (inclusive), "a,b,c", a single integer, or a YAML sequence.
type Range []int

// Span returns the inclusive range lo..hi
func Span(lo, hi int) Range {
	if hi < lo {
		return nil
	}
	r := make(Range, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		r = append(r, v)
	}
	return r
}

// Single returns a one-element range
func Single(v int) Range { return Range{v} }

// ParseRange parses the textual range forms
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if lo, hi, ok := strings.Cut(s, ".."); ok {
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("range %q: invalid lower bound: %w", s, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("range %q: invalid upper bound: %w", s, err)
		}
		if b < a {
			return nil, fmt.Errorf("range %q is empty", s)
		}
		return Span(a, b), nil
	}

	parts := strings.Split(s, ",")
	r := make(Range, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", s, err)
		}
		r = append(r, v)
	}
	return r, nil
}

// MustParseRange is ParseRange for literals
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Values returns a copy of the range values
func (r Range) Values() []int {
	out := make([]int, len(r))
	copy(out, r)
	return out
}

// String renders the range in its shortest parseable form
func (r Range) String() string {
	if len(r) > 2 && r.contiguous() {
		return fmt.Sprintf("%d..%d", r[0], r[len(r)-1])
	}
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (r Range) contiguous() bool {
	for i := 1; i < len(r); i++ {
		if r[i] != r[i-1]+1 {
			return false
		}
	}
	return true
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalYAML accepts a scalar range expression or a sequence of integers
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return r.UnmarshalText([]byte(node.Value))
	case yaml.SequenceNode:
		var values []int
		if err := node.Decode(&values); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = values
		return nil
	default:
		return fmt.Errorf("line %d: range must be a string, an integer or a list", node.Line)
	}
}

// MarshalYAML writes the range as its string form
func (r Range) MarshalYAML() (interface{}, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return r.String(), nil
}

// RangeFrom converts loosely typed configuration values (as decoded by
// viper from YAML, flags or the environment) into a Range.
func RangeFrom(v interface{}) (Range, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Range:
		return t, nil
	case string:
		return ParseRange(t)
	case int:
		return Single(t), nil
	case int64:
		return Single(int(t)), nil
	case float64:
		if t != float64(int(t)) {
			return nil, fmt.Errorf("range value %v is not an integer", t)
		}
		return Single(int(t)), nil
	case []int:
		return Range(t), nil
	case []interface{}:
		r := make(Range, 0, len(t))
		for _, e := range t {
			sub, err := RangeFrom(e)
			if err != nil {
				return nil, err
			}
			r = append(r, sub...)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported range value %v (%T)", v, v)
	}
}
