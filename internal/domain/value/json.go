package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// ToJSON renders v as canonical JSON. Undefined is not JSON-representable
// on its own (callers should omit it before reaching the top level, which
// WithField/object marshalling already does for object fields); at the
// top level it renders as JSON null, matching "absence" as closely as
// JSON allows. Error values render as a small diagnostic object rather
// than silently vanishing, so a caller who forgets to check for
// KindError still gets a visible signal instead of bogus data.
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements encoding/json.Marshaler so a Value embedded in
// any other struct (trace.Record, a CLI response envelope, ...) encodes
// correctly via the ordinary encoding/json path instead of falling back
// to Value's unexported fields (which would silently render as "{}").
func (v Value) MarshalJSON() ([]byte, error) {
	return ToJSON(v)
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull, KindUndefined:
		buf.WriteString("null")
		return nil
	case KindBoolean:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case KindNumber:
		// Render as the shortest exact decimal when the denominator is a
		// power of ten (i.e. terminates), otherwise fall back to a
		// floating approximation — JSON numbers have no native rational
		// type.
		if v.Rat().IsInt() {
			buf.WriteString(v.Rat().RatString())
			return nil
		}
		// The decimal terminates after k digits iff the denominator
		// divides 10^k; k never exceeds the denominator's bit length.
		pow, ten := big.NewInt(1), big.NewInt(10)
		for k := 1; k <= v.Rat().Denom().BitLen(); k++ {
			pow.Mul(pow, ten)
			if new(big.Int).Mod(pow, v.Rat().Denom()).Sign() == 0 {
				buf.WriteString(v.Rat().FloatString(k))
				return nil
			}
		}
		f, _ := v.Rat().Float64()
		enc, err := json.Marshal(f)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case KindText:
		enc, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindObject:
		buf.WriteByte('{')
		first := true
		for _, e := range v.object {
			if e.val.kind == KindUndefined {
				continue // omitted on serialization, per §4.1
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, err := json.Marshal(e.key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, e.val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindError:
		buf.WriteByte('{')
		buf.WriteString(`"__error__":`)
		msg, _ := json.Marshal(v.errMsg)
		buf.Write(msg)
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// FromJSON parses JSON-representable data into a Value. JSON null
// becomes Value Null (never Undefined — Undefined only ever arises from
// evaluation, never from a wire document per spec.md §3).
func FromJSON(data []byte) (Value, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return fromAny(raw), nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return Boolean(t)
	case json.Number:
		return NewNumberString(t.String())
	case float64:
		return NewNumberFloat(t)
	case string:
		return Text(t)
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = fromAny(e)
		}
		return Array(elems)
	case map[string]any:
		o := EmptyObject
		for k, v := range t {
			o = o.WithField(k, fromAny(v))
		}
		return o
	default:
		return Errorf("unsupported JSON type %T", raw)
	}
}

// ToGo converts v into a plain Go native value (bool/string/float64/
// []any/map[string]any), the mirror of FromGo, for handing values across
// a boundary that wants native Go types rather than a Value — notably
// the CEL activation bridge in the expression compiler (C4). Number
// renders as float64 (CEL's dyn numeric type); Undefined and Error both
// render as nil, since neither is a value CEL itself needs to reason
// about (the expression compiler leaves top-level Undefined and Error
// bindings out of the CEL activation, so an expression reading one
// falls back to the Go evaluator).
func ToGo(v Value) any {
	switch v.kind {
	case KindNull, KindUndefined, KindError:
		return nil
	case KindBoolean:
		return v.boolean
	case KindNumber:
		f, _ := v.Rat().Float64()
		return f
	case KindText:
		return v.text
	case KindArray:
		out := make([]any, len(v.array))
		for i, e := range v.array {
			out[i] = ToGo(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.object))
		for _, e := range v.object {
			if e.val.kind == KindUndefined {
				continue
			}
			out[e.key] = ToGo(e.val)
		}
		return out
	default:
		return nil
	}
}

// FromGo converts a subset of Go native types (as produced by e.g. a
// function broker implementation or an attribute source adapter) into a
// Value, for host-boundary crossings that aren't already JSON text.
func FromGo(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case nil:
		return Null
	case bool:
		return Boolean(t)
	case string:
		return Text(t)
	case int:
		return NewNumberInt(int64(t))
	case int64:
		return NewNumberInt(t)
	case float64:
		return NewNumberFloat(t)
	case []Value:
		return Array(t)
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromGo(e)
		}
		return Array(elems)
	case map[string]any:
		o := EmptyObject
		for k, e := range t {
			o = o.WithField(k, FromGo(e))
		}
		return o
	default:
		return Errorf("unsupported Go type %T", v)
	}
}
