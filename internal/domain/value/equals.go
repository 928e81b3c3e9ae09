package value

// Equals implements deep structural equality per spec.md §3:
//   - numbers compare by mathematical value
//   - two Errors are equal iff messages and locations match
//   - object equality ignores Undefined holes (a field absent entirely
//     and a field present but bound to Undefined compare equal)
//   - undefined == undefined is True elsewhere (see EqualsRelaxed); this
//     function is the strict structural notion used for
//     distinct-until-changed and round-trip tests.
func Equals(a, b Value) bool {
	if a.kind == KindError || b.kind == KindError {
		if a.kind != KindError || b.kind != KindError {
			return false
		}
		return errorsEqual(a, b)
	}
	if a.kind != b.kind {
		// Undefined holes: treat an Object field that is Undefined the
		// same as it being absent only inside object comparison, handled
		// there; at top level, kind mismatch is inequality.
		return false
	}
	switch a.kind {
	case KindNull, KindUndefined:
		return true
	case KindBoolean:
		return a.boolean == b.boolean
	case KindNumber:
		return a.Rat().Cmp(b.Rat()) == 0
	case KindText:
		return a.text == b.text
	case KindArray:
		if len(a.array) != len(b.array) {
			return false
		}
		for i := range a.array {
			if !Equals(a.array[i], b.array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return objectsEqual(a, b)
	default:
		return false
	}
}

func errorsEqual(a, b Value) bool {
	if a.errMsg != b.errMsg {
		return false
	}
	if (a.errLoc == nil) != (b.errLoc == nil) {
		return false
	}
	if a.errLoc == nil {
		return true
	}
	return *a.errLoc == *b.errLoc
}

// objectsEqual compares two Objects ignoring Undefined holes: a key bound
// to Undefined is treated as if it were absent on both sides.
func objectsEqual(a, b Value) bool {
	av := definedFields(a)
	bv := definedFields(b)
	if len(av) != len(bv) {
		return false
	}
	for k, v := range av {
		other, ok := bv[k]
		if !ok {
			return false
		}
		if !Equals(v, other) {
			return false
		}
	}
	return true
}

func definedFields(o Value) map[string]Value {
	out := make(map[string]Value, len(o.object))
	for _, e := range o.object {
		if e.val.kind == KindUndefined {
			continue
		}
		out[e.key] = e.val
	}
	return out
}

// EqualsRelaxed implements the comparison operator `==` used inside
// expressions, per spec.md §3: "Undefined propagates through field
// access but not through comparisons (undefined == undefined is True,
// undefined == 1 is False)". Error operands still propagate as Error per
// the totality contract, handled by the caller before reaching here.
func EqualsRelaxed(a, b Value) Value {
	if a.kind == KindUndefined && b.kind == KindUndefined {
		return True
	}
	if a.kind == KindUndefined || b.kind == KindUndefined {
		return False
	}
	return Boolean(Equals(a, b))
}
