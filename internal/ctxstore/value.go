package ctxstore

import (
	"fmt"
	"strconv"
)

// ValueKind identifies which variant of a Value is set.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindRef    ValueKind = "ref" // reference to a structured artifact
)

// Value is the tagged union carried by a context entry. Exactly one variant
// is meaningful, selected by Kind. Keeping findings typed (rather than an
// untyped blob) lets conflict detection type-check before comparing values.
type Value struct {
	Kind ValueKind `json:"kind" yaml:"kind"`
	Str  string    `json:"str,omitempty" yaml:"str,omitempty"`
	Num  float64   `json:"num,omitempty" yaml:"num,omitempty"`
	Bool bool      `json:"bool,omitempty" yaml:"bool,omitempty"`
	Ref  string    `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// StringValue creates a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue creates a number-kinded Value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue creates a bool-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// RefValue creates a Value referencing a structured artifact by identifier.
func RefValue(ref string) Value { return Value{Kind: KindRef, Ref: ref} }

// Equal reports whether two values have the same kind and the same content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	case KindRef:
		return v.Ref == other.Ref
	}
	return false
}

// String renders the active variant for logs and conflict rationales.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindRef:
		return "ref:" + v.Ref
	}
	return fmt.Sprintf("unknown(%s)", string(v.Kind))
}
