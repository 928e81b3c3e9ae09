package expr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// The Pure stratum's CEL fast path mirrors the teacher's
// cel.Evaluator.Compile/Evaluate (cost limit, context timeout) but
// against a single dynamic "root" variable and a single generic "call"
// function bridging to the function broker (C2), instead of the
// teacher's fixed universal variable set — our vars map is open-ended
// (subscription fields plus arbitrary policy VarDefs), not a fixed MCP
// request schema.
const (
	celCostLimit   = 100_000
	celEvalTimeout = 2 * time.Second
)

// buildCELEnv constructs the one CEL environment shared by every
// expression compiled against broker, with every registered function
// reachable through the generic "call" bridge.
func buildCELEnv(broker *function.Broker) (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("root", cel.DynType),
		cel.Function("call",
			cel.Overload("call_string_list",
				[]*cel.Type{cel.StringType, cel.ListType(cel.DynType)},
				cel.DynType,
				cel.BinaryBinding(func(nameVal, argsVal ref.Val) ref.Val {
					name, ok := nameVal.Value().(string)
					if !ok {
						return types.NewErr("call: function name must be a string")
					}
					lister, ok := argsVal.(traits.Lister)
					if !ok {
						return types.NewErr("call: arguments must be a list")
					}
					n := int(lister.Size().(types.Int))
					args := make([]value.Value, n)
					for i := 0; i < n; i++ {
						args[i] = celScalarToValue(lister.Get(types.Int(i)))
					}
					result := broker.Invoke(name, args)
					if result.IsError() {
						return types.NewErr(result.ErrorMessage())
					}
					return types.DefaultTypeAdapter.NativeToValue(value.ToGo(result))
				}),
			),
		),
	)
}

func (c *Compiler) compileCELProgram(src string) (cel.Program, bool) {
	ast, issues := c.celEnv.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, false
	}
	prg, err := c.celEnv.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return nil, false
	}
	return prg, true
}

// wrapWithCEL returns a Compiled that prefers prog, falling back to
// base's direct Go evaluator whenever CEL fails to produce a scalar
// result — including on CEL-side errors (e.g. a missing map key) and on
// any composite (array/object) result, which celScalarToValue never
// attempts to reconstruct. Correctness never depends on the CEL path:
// it is a fast path only.
func wrapWithCEL(base *Compiled, prog cel.Program) *Compiled {
	return &Compiled{stratum: Pure, evalPure: func(ec *EvalCtx) value.Value {
		if v, ok := evalViaCEL(prog, ec); ok {
			return v
		}
		return base.evalPure(ec)
	}}
}

func evalViaCEL(prog cel.Program, ec *EvalCtx) (value.Value, bool) {
	root := make(map[string]any, len(ec.Vars))
	for k, v := range ec.Vars {
		if v.IsUndefined() || v.IsError() {
			// Left out, so reading it fails in CEL and falls back.
			continue
		}
		root[k] = value.ToGo(v)
	}
	ctx, cancel := context.WithTimeout(context.Background(), celEvalTimeout)
	defer cancel()
	result, _, err := prog.ContextEval(ctx, map[string]any{"root": root})
	if err != nil {
		return value.Value{}, false
	}
	return celRefToValue(result)
}

func celRefToValue(v ref.Val) (value.Value, bool) {
	switch t := v.(type) {
	case types.Bool:
		return value.Boolean(bool(t)), true
	case types.String:
		return value.Text(string(t)), true
	case types.Double:
		return value.NewNumberFloat(float64(t)), true
	case types.Int:
		return value.NewNumberInt(int64(t)), true
	case types.Uint:
		return value.NewNumberInt(int64(t)), true
	case types.Null:
		return value.Null, true
	default:
		return value.Value{}, false
	}
}

func celScalarToValue(v ref.Val) value.Value {
	if val, ok := celRefToValue(v); ok {
		return val
	}
	return value.Undefined
}

// translateToCEL renders node as CEL source text when it contains only
// constructs CEL can evaluate directly (no Logical, no AttributeAccess —
// those keep their own Go-native short-circuit/streaming evaluators).
// Returning ok=false means "don't bother trying the fast path"; the
// direct Go evaluator remains the correctness source of truth either way.
func translateToCEL(node Node) (string, bool) {
	var b strings.Builder
	if !writeCEL(&b, node) {
		return "", false
	}
	return b.String(), true
}

func writeCEL(b *strings.Builder, node Node) bool {
	switch n := node.(type) {
	case Literal:
		return writeCELLiteral(b, n.Value)

	case VarRef:
		b.WriteString(`root[`)
		b.WriteString(strconv.Quote(n.Name))
		b.WriteString(`]`)
		return true

	case Field:
		b.WriteByte('(')
		if !writeCEL(b, n.Target) {
			return false
		}
		b.WriteString(`)[`)
		b.WriteString(strconv.Quote(n.Key))
		b.WriteString(`]`)
		return true

	case Index:
		b.WriteByte('(')
		if !writeCEL(b, n.Target) {
			return false
		}
		b.WriteString(`)[`)
		if !writeCEL(b, n.Index) {
			return false
		}
		b.WriteString(`]`)
		return true

	case Unary:
		if n.Op != "-" && n.Op != "!" {
			return false
		}
		b.WriteString(n.Op)
		b.WriteByte('(')
		if !writeCEL(b, n.Operand) {
			return false
		}
		b.WriteByte(')')
		return true

	case Binary:
		if _, ok := binaryOps[n.Op]; !ok {
			return false
		}
		// Arithmetic stays on the Go evaluator: CEL computes these numbers
		// as doubles, where division by zero yields ±Inf or NaN instead of
		// an error and decimal results are rounded.
		switch n.Op {
		case "+", "-", "*", "/", "%":
			return false
		}
		b.WriteByte('(')
		if !writeCEL(b, n.Left) {
			return false
		}
		b.WriteString(") ")
		b.WriteString(n.Op)
		b.WriteString(" (")
		if !writeCEL(b, n.Right) {
			return false
		}
		b.WriteByte(')')
		return true

	case Call:
		b.WriteString(`call(`)
		b.WriteString(strconv.Quote(n.FullName))
		b.WriteString(`, [`)
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(`, `)
			}
			if !writeCEL(b, a) {
				return false
			}
		}
		b.WriteString(`])`)
		return true

	case ArrayLit:
		b.WriteByte('[')
		for i, e := range n.Elements {
			if i > 0 {
				b.WriteString(`, `)
			}
			if !writeCEL(b, e) {
				return false
			}
		}
		b.WriteByte(']')
		return true

	case ObjectLit:
		b.WriteByte('{')
		for i, k := range n.Keys {
			if i > 0 {
				b.WriteString(`, `)
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(`: `)
			if !writeCEL(b, n.Values[i]) {
				return false
			}
		}
		b.WriteByte('}')
		return true

	default:
		// Logical and AttributeAccess (and anything else) opt out.
		return false
	}
}

func writeCELLiteral(b *strings.Builder, v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		b.WriteString("null")
	case value.KindBoolean:
		if v.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case value.KindNumber:
		f := v.Float64()
		s := fmt.Sprintf("%g", f)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		b.WriteString(s)
	case value.KindText:
		b.WriteString(strconv.Quote(v.String()))
	default:
		return false
	}
	return true
}
