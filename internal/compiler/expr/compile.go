package expr

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Stratum classifies how a Compiled expression must be evaluated, per
// spec.md §3's lifting lattice Const ≤ Pure ≤ Stream.
type Stratum int

const (
	Const Stratum = iota
	Pure
	Stream
)

func (s Stratum) String() string {
	switch s {
	case Const:
		return "const"
	case Pure:
		return "pure"
	default:
		return "stream"
	}
}

func joinStratum(a, b Stratum) Stratum {
	if a > b {
		return a
	}
	return b
}

// Compiled is a lowered expression in exactly one stratum.
type Compiled struct {
	stratum    Stratum
	constVal   value.Value
	evalPure   func(ec *EvalCtx) value.Value
	evalStream func(ctx context.Context, ec *EvalCtx) *reactive.Flux[TracedValue]
}

// Stratum reports the classification this expression compiled to.
func (c *Compiled) Stratum() Stratum { return c.stratum }

// Eval synchronously evaluates a Const or Pure expression. Calling it on
// a Stream expression is a caller error that still returns total Error
// rather than panicking.
func (c *Compiled) Eval(ec *EvalCtx) value.Value {
	switch c.stratum {
	case Const:
		return c.constVal
	case Pure:
		return c.evalPure(ec)
	default:
		return value.Errorf("cannot synchronously evaluate a streaming expression")
	}
}

// Subscribe returns a live subscription to this expression's values. A
// Const or Pure expression lifts to a single-emission, immediately-replayed
// Flux so every Compiled can be composed uniformly regardless of stratum.
func (c *Compiled) Subscribe(ctx context.Context, ec *EvalCtx) *reactive.Subscription[TracedValue] {
	if c.stratum == Stream {
		return c.evalStream(ctx, ec).Subscribe()
	}
	f := reactive.New[TracedValue](nil)
	f.Emit(TracedValue{Value: c.Eval(ec)})
	return f.Subscribe()
}

func constCompiled(v value.Value) *Compiled {
	return &Compiled{stratum: Const, constVal: v}
}

// ConstCompiled lifts a known Value to a Const Compiled, for compiler
// stages built on top of C4 (C6+) that need to bind a synthetic
// variable to a known value, e.g. the policy compiler binding `#` to
// Undefined outside a recursive transform context.
func ConstCompiled(v value.Value) *Compiled {
	return constCompiled(v)
}

// Compiler lowers Nodes to Compiled expressions, holding the shared,
// built-once function broker, attribute broker, and CEL environment that
// every expression in one PDP configuration is compiled against.
type Compiler struct {
	vars   map[string]*Compiled
	funcs  *function.Broker
	attrs  *attribute.Broker
	celEnv *cel.Env

	// ConfigurationID scopes attribute invocations compiled by this
	// Compiler to one PDP configuration (see EvalCtx.ConfigurationID).
	ConfigurationID string
}

// NewCompiler builds a Compiler with an empty var scope.
func NewCompiler(funcs *function.Broker, attrs *attribute.Broker, configurationID string) (*Compiler, error) {
	env, err := buildCELEnv(funcs)
	if err != nil {
		return nil, fmt.Errorf("expr: building CEL environment: %w", err)
	}
	return &Compiler{
		vars:            make(map[string]*Compiled),
		funcs:           funcs,
		attrs:           attrs,
		celEnv:          env,
		ConfigurationID: configurationID,
	}, nil
}

// WithVar returns a new Compiler whose scope additionally binds name to
// compiled, used by the policy-body compiler (C5) to fold each VarDef
// into scope for the statements that follow it.
func (c *Compiler) WithVar(name string, compiled *Compiled) *Compiler {
	next := make(map[string]*Compiled, len(c.vars)+1)
	for k, v := range c.vars {
		next[k] = v
	}
	next[name] = compiled
	return &Compiler{vars: next, funcs: c.funcs, attrs: c.attrs, celEnv: c.celEnv, ConfigurationID: c.ConfigurationID}
}

// Compile lowers node to a Compiled expression, then opportunistically
// upgrades a Pure result to a CEL-backed fast path when the subtree
// translates cleanly (see celgen.go); any CEL compile or translation
// failure silently keeps the direct Go evaluator, so correctness never
// depends on CEL succeeding.
func (c *Compiler) Compile(node Node) (*Compiled, error) {
	compiled, err := c.compileNode(node)
	if err != nil {
		return nil, err
	}
	if compiled.stratum == Pure {
		if src, ok := translateToCEL(node); ok {
			if prog, ok2 := c.compileCELProgram(src); ok2 {
				compiled = wrapWithCEL(compiled, prog)
			}
		}
	}
	return compiled, nil
}

func (c *Compiler) compileNode(node Node) (*Compiled, error) {
	switch n := node.(type) {
	case Literal:
		return constCompiled(n.Value), nil

	case VarRef:
		if bound, ok := c.vars[n.Name]; ok {
			return bound, nil
		}
		name := n.Name
		return &Compiled{stratum: Pure, evalPure: func(ec *EvalCtx) value.Value {
			if v, ok := ec.Vars[name]; ok {
				return v
			}
			return value.Undefined
		}}, nil

	case Field:
		target, err := c.Compile(n.Target)
		if err != nil {
			return nil, err
		}
		key := n.Key
		return c.liftNAry([]*Compiled{target}, func(args []value.Value) value.Value {
			t := args[0]
			if t.IsError() {
				return t
			}
			return t.Field(key)
		}), nil

	case Index:
		target, err := c.Compile(n.Target)
		if err != nil {
			return nil, err
		}
		idx, err := c.Compile(n.Index)
		if err != nil {
			return nil, err
		}
		return c.liftNAry([]*Compiled{target, idx}, func(args []value.Value) value.Value {
			t, i := args[0], args[1]
			if t.IsError() {
				return t
			}
			if i.IsError() {
				return i
			}
			if !i.IsNumber() {
				return value.Errorf("index must be a number, got %s", i.Kind())
			}
			return t.Index(int(i.Float64()))
		}), nil

	case Unary:
		operand, err := c.Compile(n.Operand)
		if err != nil {
			return nil, err
		}
		fn, ok := unaryOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("expr: unknown unary operator %q", n.Op)
		}
		return c.liftNAry([]*Compiled{operand}, func(args []value.Value) value.Value {
			return fn(args[0])
		}), nil

	case Binary:
		left, err := c.Compile(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.Compile(n.Right)
		if err != nil {
			return nil, err
		}
		fn, ok := binaryOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("expr: unknown binary operator %q", n.Op)
		}
		return c.liftNAry([]*Compiled{left, right}, func(args []value.Value) value.Value {
			return fn(args[0], args[1])
		}), nil

	case Logical:
		return c.compileLogical(n.Op, n.Left, n.Right)

	case Call:
		args := make([]*Compiled, len(n.Args))
		for i, a := range n.Args {
			compiled, err := c.Compile(a)
			if err != nil {
				return nil, err
			}
			args[i] = compiled
		}
		fullName := n.FullName
		return c.liftNAry(args, func(vals []value.Value) value.Value {
			return c.funcs.Invoke(fullName, vals)
		}), nil

	case ArrayLit:
		elems := make([]*Compiled, len(n.Elements))
		for i, e := range n.Elements {
			compiled, err := c.Compile(e)
			if err != nil {
				return nil, err
			}
			elems[i] = compiled
		}
		return c.liftNAry(elems, func(vals []value.Value) value.Value {
			return value.Array(append([]value.Value(nil), vals...))
		}), nil

	case ObjectLit:
		vals := make([]*Compiled, len(n.Values))
		for i, v := range n.Values {
			compiled, err := c.Compile(v)
			if err != nil {
				return nil, err
			}
			vals[i] = compiled
		}
		keys := n.Keys
		return c.liftNAry(vals, func(args []value.Value) value.Value {
			o := value.EmptyObject
			for i, k := range keys {
				o = o.WithField(k, args[i])
			}
			return o
		}), nil

	case AttributeAccess:
		return c.compileAttributeAccess(n)

	case RelativeResource:
		return c.compileNode(VarRef{Name: reservedRelativeResourceVar})

	case RelativeIndex:
		return c.compileNode(VarRef{Name: reservedRelativeIndexVar})

	default:
		return nil, fmt.Errorf("expr: unknown node type %T", node)
	}
}

// liftNAry composes children into one Compiled whose stratum is the join
// of their strata: constant-folded when every child is Const, a plain Go
// closure when Pure, and a combine-latest Flux when any child is Stream.
func (c *Compiler) liftNAry(children []*Compiled, combine func([]value.Value) value.Value) *Compiled {
	stratum := Const
	for _, ch := range children {
		stratum = joinStratum(stratum, ch.stratum)
	}
	switch stratum {
	case Const:
		args := make([]value.Value, len(children))
		for i, ch := range children {
			args[i] = ch.constVal
		}
		return constCompiled(combine(args))
	case Pure:
		return &Compiled{stratum: Pure, evalPure: func(ec *EvalCtx) value.Value {
			args := make([]value.Value, len(children))
			for i, ch := range children {
				args[i] = ch.Eval(ec)
			}
			return combine(args)
		}}
	default:
		return &Compiled{stratum: Stream, evalStream: func(ctx context.Context, ec *EvalCtx) *reactive.Flux[TracedValue] {
			return combineLatest(ctx, ec, children, combine)
		}}
	}
}

var unaryOps = map[string]func(value.Value) value.Value{
	"-": value.Neg,
	"!": value.Not,
}

var binaryOps = map[string]func(a, b value.Value) value.Value{
	"+":  value.Add,
	"-":  value.Sub,
	"*":  value.Mul,
	"/":  value.Div,
	"%":  value.Mod,
	"<":  value.Less,
	"<=": value.LessEq,
	">":  value.Greater,
	">=": value.GreaterEq,
	"==": value.Eq,
	"!=": value.NotEq,
	"in": value.In,
}

// combineLatest subscribes to every child and re-applies combine to the
// vector of latest values each time any child re-emits, once every child
// has emitted at least once. This is the generic Stream composition rule
// behind Field/Index/Unary/Binary/Call/ArrayLit/ObjectLit, per spec.md
// §4.4's "lifted to the maximum stratum of operands".
func combineLatest(ctx context.Context, ec *EvalCtx, children []*Compiled, combine func([]value.Value) value.Value) *reactive.Flux[TracedValue] {
	out := reactive.New[TracedValue](nil)
	n := len(children)
	if n == 0 {
		out.Emit(TracedValue{Value: combine(nil)})
		return out
	}

	type update struct {
		idx int
		tv  TracedValue
	}
	updates := make(chan update, n)
	subs := make([]*reactive.Subscription[TracedValue], n)
	for i, ch := range children {
		subs[i] = ch.Subscribe(ctx, ec)
	}
	for i := range subs {
		go func(i int) {
			sub := subs[i]
			for {
				select {
				case tv, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case updates <- update{i, tv}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	go func() {
		defer out.Close()
		defer func() {
			for _, s := range subs {
				s.Cancel()
			}
		}()
		latest := make([]value.Value, n)
		attrs := make([][]AttributeRecord, n)
		have := make([]bool, n)
		haveAll := false
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				latest[u.idx] = u.tv.Value
				attrs[u.idx] = u.tv.Attributes
				have[u.idx] = true
				if !haveAll {
					haveAll = true
					for _, h := range have {
						if !h {
							haveAll = false
							break
						}
					}
				}
				if haveAll {
					result := combine(append([]value.Value(nil), latest...))
					out.Emit(TracedValue{Value: result, Attributes: mergeAttrs(attrs...)})
				}
			}
		}
	}()
	return out
}
