package function

import (
	"path/filepath"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func filepathMatch(pattern, name string) (bool, error) {
	return filepath.Match(pattern, name)
}

func twoInts(a []value.Value) (int64, int64, bool) {
	if len(a) != 2 || !a[0].IsNumber() || !a[1].IsNumber() {
		return 0, 0, false
	}
	if !a[0].Rat().IsInt() || !a[1].Rat().IsInt() {
		return 0, 0, false
	}
	return a[0].Rat().Num().Int64(), a[1].Rat().Num().Int64(), true
}

// RegisterBitwise adds the "bitwise" library: pure integer bit
// operations. There is no ecosystem dependency in the retrieved corpus
// for bit manipulation, so this stays on math/bits/plain integer ops —
// a genuinely stdlib-only concern.
func RegisterBitwise(b *Broker) {
	b.Register(Descriptor{Library: "bitwise", Name: "and", Arity: 2, Impl: func(a []value.Value) value.Value {
		x, y, ok := twoInts(a)
		if !ok {
			return value.Errorf("bitwise.and requires two integers")
		}
		return value.NewNumberInt(x & y)
	}})

	b.Register(Descriptor{Library: "bitwise", Name: "or", Arity: 2, Impl: func(a []value.Value) value.Value {
		x, y, ok := twoInts(a)
		if !ok {
			return value.Errorf("bitwise.or requires two integers")
		}
		return value.NewNumberInt(x | y)
	}})

	b.Register(Descriptor{Library: "bitwise", Name: "xor", Arity: 2, Impl: func(a []value.Value) value.Value {
		x, y, ok := twoInts(a)
		if !ok {
			return value.Errorf("bitwise.xor requires two integers")
		}
		return value.NewNumberInt(x ^ y)
	}})

	b.Register(Descriptor{Library: "bitwise", Name: "not", Arity: 1, Impl: func(a []value.Value) value.Value {
		if len(a) != 1 || !a[0].IsNumber() || !a[0].Rat().IsInt() {
			return value.Errorf("bitwise.not requires an integer")
		}
		return value.NewNumberInt(^a[0].Rat().Num().Int64())
	}})

	b.Register(Descriptor{Library: "bitwise", Name: "shiftLeft", Arity: 2, Impl: func(a []value.Value) value.Value {
		x, n, ok := twoInts(a)
		if !ok || n < 0 {
			return value.Errorf("bitwise.shiftLeft requires two integers, shift >= 0")
		}
		return value.NewNumberInt(x << uint(n))
	}})

	b.Register(Descriptor{Library: "bitwise", Name: "shiftRight", Arity: 2, Impl: func(a []value.Value) value.Value {
		x, n, ok := twoInts(a)
		if !ok || n < 0 {
			return value.Errorf("bitwise.shiftRight requires two integers, shift >= 0")
		}
		return value.NewNumberInt(x >> uint(n))
	}})
}
