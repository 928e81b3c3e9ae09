package function

import (
	"strings"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// RegisterStrings adds the "strings" library: a representative,
// total-and-pure subset of the string functions a policy expression
// might call, in the spirit of the teacher's ext.Strings() CEL
// extension and its own "glob" custom function.
func RegisterStrings(b *Broker) {
	b.Register(Descriptor{Library: "strings", Name: "startsWith", Arity: 2, Impl: func(a []value.Value) value.Value {
		s, p, ok := twoTexts(a)
		if !ok {
			return value.Errorf("strings.startsWith requires two text arguments")
		}
		return value.Boolean(strings.HasPrefix(s, p))
	}})

	b.Register(Descriptor{Library: "strings", Name: "endsWith", Arity: 2, Impl: func(a []value.Value) value.Value {
		s, p, ok := twoTexts(a)
		if !ok {
			return value.Errorf("strings.endsWith requires two text arguments")
		}
		return value.Boolean(strings.HasSuffix(s, p))
	}})

	b.Register(Descriptor{Library: "strings", Name: "contains", Arity: 2, Impl: func(a []value.Value) value.Value {
		s, p, ok := twoTexts(a)
		if !ok {
			return value.Errorf("strings.contains requires two text arguments")
		}
		return value.Boolean(strings.Contains(s, p))
	}})

	b.Register(Descriptor{Library: "strings", Name: "length", Arity: 1, Impl: func(a []value.Value) value.Value {
		if !a[0].IsText() {
			return value.Errorf("strings.length requires a text argument")
		}
		return value.NewNumberInt(int64(len([]rune(a[0].String()))))
	}})

	b.Register(Descriptor{Library: "strings", Name: "toUpperCase", Arity: 1, Impl: func(a []value.Value) value.Value {
		if !a[0].IsText() {
			return value.Errorf("strings.toUpperCase requires a text argument")
		}
		return value.Text(strings.ToUpper(a[0].String()))
	}})

	b.Register(Descriptor{Library: "strings", Name: "toLowerCase", Arity: 1, Impl: func(a []value.Value) value.Value {
		if !a[0].IsText() {
			return value.Errorf("strings.toLowerCase requires a text argument")
		}
		return value.Text(strings.ToLower(a[0].String()))
	}})

	b.Register(Descriptor{Library: "strings", Name: "glob", Arity: 2, Impl: func(a []value.Value) value.Value {
		pattern, name, ok := twoTexts(a)
		if !ok {
			return value.Errorf("strings.glob requires two text arguments")
		}
		matched, err := filepathMatch(pattern, name)
		if err != nil {
			return value.Errorf("strings.glob: %v", err)
		}
		return value.Boolean(matched)
	}})

	b.Register(Descriptor{Library: "strings", Name: "concat", Arity: 0, Variadic: true, Impl: func(a []value.Value) value.Value {
		var sb strings.Builder
		for _, v := range a {
			if !v.IsText() {
				return value.Errorf("strings.concat requires text arguments")
			}
			sb.WriteString(v.String())
		}
		return value.Text(sb.String())
	}})
}

func twoTexts(a []value.Value) (string, string, bool) {
	if len(a) != 2 || !a[0].IsText() || !a[1].IsText() {
		return "", "", false
	}
	return a[0].String(), a[1].String(), true
}
