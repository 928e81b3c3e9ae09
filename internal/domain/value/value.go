// Package value implements the policy engine's closed value model: a
// tagged sum of JSON-like values plus the two sentinel variants
// (Undefined, Error) that expressions may produce but that never appear
// in a JSON document. Every operation over Value is total.
package value

import (
	"fmt"
	"math/big"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindText
	KindArray
	KindObject
	// KindUndefined marks the absence of a value (e.g. a missing field).
	// It is never JSON-representable; object fields holding Undefined are
	// omitted on serialization.
	KindUndefined
	// KindError marks a total-function failure carried as data rather
	// than a Go error. Errors propagate through composition the way NaN
	// propagates through floating point arithmetic.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindUndefined:
		return "undefined"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// SourceLocation pinpoints where an Error originated in policy source.
type SourceLocation struct {
	DocumentName string
	Line         int
	StartChar    int
	EndChar      int
}

// objEntry preserves object field insertion order alongside the value.
type objEntry struct {
	key string
	val Value
}

// Value is the closed tagged sum evaluated by the expression engine.
// The zero Value is Null. Values are immutable once constructed; all
// "mutating" helpers (e.g. object field set) return a new Value.
type Value struct {
	kind    Kind
	boolean bool
	number  *big.Rat
	text    string
	array   []Value
	object  []objEntry // ordered map, order = insertion order

	errMsg string
	errLoc *SourceLocation
}

// Sentinels and convenience constructors.
var (
	Null        = Value{kind: KindNull}
	True        = Value{kind: KindBoolean, boolean: true}
	False       = Value{kind: KindBoolean, boolean: false}
	Undefined   = Value{kind: KindUndefined}
	EmptyArray  = Value{kind: KindArray, array: []Value{}}
	EmptyObject = Value{kind: KindObject, object: []objEntry{}}
)

// One is the Number value 1.
var One = NewNumberInt(1)

// Boolean returns True or False for b.
func Boolean(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewNumberInt constructs a Number from an int64.
func NewNumberInt(n int64) Value {
	return Value{kind: KindNumber, number: new(big.Rat).SetInt64(n)}
}

// NewNumberFloat constructs a Number from a float64. Non-finite floats
// (NaN, +-Inf) produce an Error, since Value's Number must be an exact
// rational.
func NewNumberFloat(f float64) Value {
	r := new(big.Rat)
	if _, ok := r.SetString(fmt.Sprintf("%g", f)); !ok {
		return Error("invalid number", nil)
	}
	return Value{kind: KindNumber, number: r}
}

// NewNumberRat constructs a Number directly from a *big.Rat.
func NewNumberRat(r *big.Rat) Value {
	if r == nil {
		return Error("nil number", nil)
	}
	return Value{kind: KindNumber, number: new(big.Rat).Set(r)}
}

// NewNumberString parses a decimal string into a Number. Returns Error on
// malformed input.
func NewNumberString(s string) Value {
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return Error(fmt.Sprintf("not a number: %q", s), nil)
	}
	return Value{kind: KindNumber, number: r}
}

// Text constructs a Text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Array constructs an Array value from a slice. The slice is copied.
func Array(vs []Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindArray, array: cp}
}

// Object constructs an Object value from an ordered list of (key, value)
// pairs. Later duplicate keys overwrite earlier ones but keep the
// earlier key's position, matching typical JSON-object merge semantics.
func Object(pairs ...[2]any) Value {
	o := EmptyObject
	for _, p := range pairs {
		k, _ := p[0].(string)
		v, _ := p[1].(Value)
		o = o.WithField(k, v)
	}
	return o
}

// NewObject builds an Object from a Go map. Key order is unspecified
// (map iteration order); use Object/WithField when order matters.
func NewObject(m map[string]Value) Value {
	o := EmptyObject
	for k, v := range m {
		o = o.WithField(k, v)
	}
	return o
}

// Error constructs an Error value carrying msg and an optional source
// location.
func Error(msg string, loc *SourceLocation) Value {
	v := Value{kind: KindError, errMsg: msg}
	if loc != nil {
		l := *loc
		v.errLoc = &l
	}
	return v
}

// Errorf constructs an Error with a formatted message.
func Errorf(format string, args ...any) Value {
	return Error(fmt.Sprintf(format, args...), nil)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsError() bool     { return v.kind == KindError }
func (v Value) IsBoolean() bool   { return v.kind == KindBoolean }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsText() bool      { return v.kind == KindText }
func (v Value) IsArray() bool     { return v.kind == KindArray }
func (v Value) IsObject() bool    { return v.kind == KindObject }

// Bool returns the boolean payload; only meaningful when IsBoolean().
func (v Value) Bool() bool { return v.boolean }

// Rat returns the exact rational payload; only meaningful when IsNumber().
func (v Value) Rat() *big.Rat {
	if v.number == nil {
		return new(big.Rat)
	}
	return v.number
}

// Float64 returns an approximate float64 of the number payload.
func (v Value) Float64() float64 {
	f, _ := v.Rat().Float64()
	return f
}

// String returns the text payload; only meaningful when IsText(). Also
// provides a human-readable rendering for debugging/logging of any kind.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return v.Rat().RatString()
	case KindText:
		return v.text
	case KindError:
		if v.errLoc != nil {
			return fmt.Sprintf("error: %s (%s:%d)", v.errMsg, v.errLoc.DocumentName, v.errLoc.Line)
		}
		return "error: " + v.errMsg
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.array))
	case KindObject:
		return fmt.Sprintf("object[%d]", len(v.object))
	default:
		return "?"
	}
}

// ErrorMessage returns the error message; only meaningful when IsError().
func (v Value) ErrorMessage() string { return v.errMsg }

// ErrorLocation returns the error's source location, or nil.
func (v Value) ErrorLocation() *SourceLocation { return v.errLoc }

// Elements returns a copy of the array payload; only meaningful when
// IsArray().
func (v Value) Elements() []Value {
	cp := make([]Value, len(v.array))
	copy(cp, v.array)
	return cp
}

// Len returns the number of elements/fields for Array/Object, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.array)
	case KindObject:
		return len(v.object)
	default:
		return 0
	}
}

// Field looks up a field on an Object. Returns Undefined if absent or if
// v is not an Object.
func (v Value) Field(key string) Value {
	if v.kind != KindObject {
		return Undefined
	}
	for _, e := range v.object {
		if e.key == key {
			return e.val
		}
	}
	return Undefined
}

// WithField returns a copy of v (which must be an Object, or is promoted
// from Null/Undefined to an empty Object) with key set to val.
func (v Value) WithField(key string, val Value) Value {
	var base []objEntry
	if v.kind == KindObject {
		base = v.object
	}
	out := make([]objEntry, 0, len(base)+1)
	replaced := false
	for _, e := range base {
		if e.key == key {
			out = append(out, objEntry{key, val})
			replaced = true
		} else {
			out = append(out, e)
		}
	}
	if !replaced {
		out = append(out, objEntry{key, val})
	}
	return Value{kind: KindObject, object: out}
}

// Keys returns the object's field names in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	ks := make([]string, len(v.object))
	for i, e := range v.object {
		ks[i] = e.key
	}
	return ks
}

// Index returns the i-th array element, or Undefined if out of range or
// v is not an Array.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.array) {
		return Undefined
	}
	return v.array[i]
}

// Append returns a new Array with val appended. v must be an Array
// (or Null/Undefined, treated as an empty Array).
func (v Value) Append(val Value) Value {
	var base []Value
	if v.kind == KindArray {
		base = v.array
	}
	out := make([]Value, len(base)+1)
	copy(out, base)
	out[len(base)] = val
	return Value{kind: KindArray, array: out}
}

// Truthy implements §4.1's truthy(v): True/False pass through; anything
// else is an Error.
func Truthy(v Value) Value {
	if v.kind == KindBoolean {
		return v
	}
	return Errorf("boolean required, got %s", v.kind)
}
