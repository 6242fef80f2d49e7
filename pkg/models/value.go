package models

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindMissing marks a field whose metric was not reported
	KindMissing Kind = iota
	// KindInt is a signed integer
	KindInt
	// KindFloat is a floating-point number
	KindFloat
	// KindString is free text
	KindString
)

// String returns the lowercase kind name
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "missing"
	}
}

// MarshalText renders the kind name in JSON documents
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Value is a single field value. The zero Value is missing, which is
// distinct from Int(0) and String("").
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Missing returns the missing sentinel
func Missing() Value { return Value{} }

// Int returns an integer value
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point value. NaN and infinities cannot be stored
// or re-read and are therefore represented as missing.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Missing()
	}
	return Value{kind: KindFloat, f: f}
}

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing sentinel
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Int returns the integer payload
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float payload
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string payload
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Number returns v as a float64 when it is an integer or a float
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNumber reports whether v is an integer or a float
func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Equal reports exact equality of kind and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	default:
		return true
	}
}

// Format renders v for storage. Floats always carry a decimal point so that
// they coerce back to floats, and missing renders as the given marker.
func (v Value) Format(missing string) string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	case KindString:
		if v.s == "" {
			return missing
		}
		return Sanitize(v.s)
	default:
		return missing
	}
}

// String implements fmt.Stringer using the storage missing marker
func (v Value) String() string {
	return v.Format(MissingMarker)
}

const (
	// MissingMarker is how the tabular store renders a missing value
	MissingMarker = "-"
	// PlotMissingMarker is how plot payloads render a missing value
	PlotMissingMarker = "?"
)

var (
	intPattern   = regexp.MustCompile(`^-?\d+$`)
	floatPattern = regexp.MustCompile(`^-?(\d+\.\d*|\.\d+)$`)
)

// Coerce converts captured or stored text into a Value:
//   - digits only (optionally signed) become an integer
//   - digits with exactly one decimal point become a float
//   - empty text and the markers "-" and "?" become missing
//   - anything else is a string with hyphens replaced by underscores
//
// Whitespace, commas and colons inside strings are also folded to
// underscores since they delimit columns or mark headers in stored files.
func Coerce(s string) Value {
	s = strings.TrimSpace(s)
	switch s {
	case "", MissingMarker, PlotMissingMarker:
		return Missing()
	}
	if intPattern.MatchString(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
		// Out of int64 range; keep the magnitude as a float.
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
	}
	if floatPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
	}
	return String(Sanitize(s))
}

var separatorReplacer = strings.NewReplacer("-", "_", ",", "_", ":", "_", " ", "_", "\t", "_", "\n", "_", "\r", "_")

// Sanitize replaces characters reserved by the storage layer with
// underscores. ':' is reserved because "N:name" tokens mark header lines.
func Sanitize(s string) string {
	return separatorReplacer.Replace(s)
}
