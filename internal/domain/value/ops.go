package value

import "math/big"

// Add implements "+": numeric addition, text concatenation, or array
// concatenation. Any other combination, or an Error operand, yields
// Error (error-as-value propagation per spec.md §7).
func Add(a, b Value) Value {
	if e, ok := propagateError(a, b); ok {
		return e
	}
	switch {
	case a.IsNumber() && b.IsNumber():
		return NewNumberRat(new(big.Rat).Add(a.Rat(), b.Rat()))
	case a.IsText() && b.IsText():
		return Text(a.text + b.text)
	case a.IsArray() && b.IsArray():
		return Array(append(a.Elements(), b.Elements()...))
	default:
		return Errorf("cannot add %s and %s", a.Kind(), b.Kind())
	}
}

func numericBinary(a, b Value, op func(x, y *big.Rat) (Value, bool)) Value {
	if e, ok := propagateError(a, b); ok {
		return e
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Errorf("arithmetic requires numbers, got %s and %s", a.Kind(), b.Kind())
	}
	v, ok := op(a.Rat(), b.Rat())
	if !ok {
		return v
	}
	return v
}

func Sub(a, b Value) Value {
	return numericBinary(a, b, func(x, y *big.Rat) (Value, bool) {
		return NewNumberRat(new(big.Rat).Sub(x, y)), true
	})
}

func Mul(a, b Value) Value {
	return numericBinary(a, b, func(x, y *big.Rat) (Value, bool) {
		return NewNumberRat(new(big.Rat).Mul(x, y)), true
	})
}

func Div(a, b Value) Value {
	return numericBinary(a, b, func(x, y *big.Rat) (Value, bool) {
		if y.Sign() == 0 {
			return Errorf("division by zero"), true
		}
		return NewNumberRat(new(big.Rat).Quo(x, y)), true
	})
}

// Mod implements integer modulo; non-integer operands yield Error.
func Mod(a, b Value) Value {
	return numericBinary(a, b, func(x, y *big.Rat) (Value, bool) {
		if !x.IsInt() || !y.IsInt() {
			return Errorf("modulo requires integers"), true
		}
		yi := y.Num()
		if yi.Sign() == 0 {
			return Errorf("modulo by zero"), true
		}
		r := new(big.Int).Mod(x.Num(), yi)
		return NewNumberRat(new(big.Rat).SetInt(r)), true
	})
}

func Neg(a Value) Value {
	if a.IsError() {
		return a
	}
	if !a.IsNumber() {
		return Errorf("negation requires a number, got %s", a.Kind())
	}
	return NewNumberRat(new(big.Rat).Neg(a.Rat()))
}

// compareNumeric returns -1/0/1, or an Error value as its second result.
func compareNumeric(a, b Value) (int, Value) {
	if e, ok := propagateError(a, b); ok {
		return 0, e
	}
	if !a.IsNumber() || !b.IsNumber() {
		return 0, Errorf("comparison requires numbers, got %s and %s", a.Kind(), b.Kind())
	}
	return a.Rat().Cmp(b.Rat()), Value{}
}

func Less(a, b Value) Value {
	c, errv := compareNumeric(a, b)
	if errv.IsError() {
		return errv
	}
	return Boolean(c < 0)
}

func LessEq(a, b Value) Value {
	c, errv := compareNumeric(a, b)
	if errv.IsError() {
		return errv
	}
	return Boolean(c <= 0)
}

func Greater(a, b Value) Value {
	c, errv := compareNumeric(a, b)
	if errv.IsError() {
		return errv
	}
	return Boolean(c > 0)
}

func GreaterEq(a, b Value) Value {
	c, errv := compareNumeric(a, b)
	if errv.IsError() {
		return errv
	}
	return Boolean(c >= 0)
}

// Eq implements "==" per §3: error operands still propagate (an Error is
// never "equal" to anything, including another identical-looking Error,
// under the relaxed comparison used by expressions — only EqualsRelaxed's
// strict sibling, value.Equals, treats two matching Errors as equal, and
// that is reserved for engine-internal bookkeeping like
// distinct-until-changed, not policy-visible `==`).
func Eq(a, b Value) Value {
	if a.IsError() || b.IsError() {
		return Errorf("comparison operand is an error")
	}
	return EqualsRelaxed(a, b)
}

func NotEq(a, b Value) Value {
	r := Eq(a, b)
	if r.IsError() {
		return r
	}
	return Boolean(!r.Bool())
}

// Not implements logical negation over Booleans.
func Not(a Value) Value {
	if a.IsError() {
		return a
	}
	t := Truthy(a)
	if t.IsError() {
		return t
	}
	return Boolean(!t.Bool())
}

// propagateError returns (Error, true) if either operand is an Error,
// choosing the first erroring operand so error messages are stable.
func propagateError(a, b Value) (Value, bool) {
	if a.IsError() {
		return a, true
	}
	if b.IsError() {
		return b, true
	}
	return Value{}, false
}

// In implements the "in" membership operator used by policy conditions
// (e.g. `"admin" in user_roles`): array membership via Equals, object key
// membership when the right side is an Object.
func In(needle, haystack Value) Value {
	if e, ok := propagateError(needle, haystack); ok {
		return e
	}
	switch haystack.Kind() {
	case KindArray:
		for _, e := range haystack.Elements() {
			if Equals(needle, e) {
				return True
			}
		}
		return False
	case KindObject:
		if !needle.IsText() {
			return Errorf("object membership requires a text key")
		}
		for _, k := range haystack.Keys() {
			if k == needle.text {
				return True
			}
		}
		return False
	default:
		return Errorf("'in' requires an array or object, got %s", haystack.Kind())
	}
}
