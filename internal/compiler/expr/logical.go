package expr

import (
	"context"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// compileLogical lowers && / || with short-circuit preserved across every
// stratum: when the left operand determines the result, the right
// operand is never evaluated — and for Stream, never even subscribed to
// (so it never opens an attribute source), per spec.md §4.4.
func (c *Compiler) compileLogical(op string, leftNode, rightNode Node) (*Compiled, error) {
	left, err := c.Compile(leftNode)
	if err != nil {
		return nil, err
	}

	if left.stratum == Const {
		if res, determined := shortCircuitValue(op, left.constVal); determined {
			return constCompiled(res), nil
		}
		right, err := c.Compile(rightNode)
		if err != nil {
			return nil, err
		}
		return truthyWrap(right), nil
	}

	right, err := c.Compile(rightNode)
	if err != nil {
		return nil, err
	}
	return PairwiseLogical(op, left, right), nil
}

// PairwiseLogical applies the same short-circuit && / || combination rule
// to two already-compiled expressions, independent of how they were
// produced. The policy-body compiler (C5) uses this directly to chain a
// statement sequence's conditions without re-running the AST compiler,
// since by the time two statements are both compiled no further laziness
// is needed at the Node level — only at the value/subscription level,
// which this preserves.
func PairwiseLogical(op string, left, right *Compiled) *Compiled {
	if left.stratum == Const {
		if res, determined := shortCircuitValue(op, left.constVal); determined {
			return constCompiled(res)
		}
		return truthyWrap(right)
	}

	if joinStratum(left.stratum, right.stratum) == Stream {
		return &Compiled{stratum: Stream, evalStream: func(ctx context.Context, ec *EvalCtx) *reactive.Flux[TracedValue] {
			return shortCircuitStream(ctx, ec, op, left, right)
		}}
	}

	return &Compiled{stratum: Pure, evalPure: func(ec *EvalCtx) value.Value {
		lv := left.Eval(ec)
		if res, determined := shortCircuitValue(op, lv); determined {
			return res
		}
		return value.Truthy(right.Eval(ec))
	}}
}

// And short-circuit-chains parts left to right, stopping (conceptually)
// at the first False or Error, per spec.md §4.5's "combined by
// short-circuit conjunction: True && s1 && s2 && ...". An empty parts
// list is vacuously true.
func And(parts ...*Compiled) *Compiled {
	acc := constCompiled(value.True)
	for _, p := range parts {
		acc = PairwiseLogical("&&", acc, p)
	}
	return acc
}

// shortCircuitValue returns the determined Boolean/Error result for op
// given the left operand's value, or (_, false) if the right operand
// must still be consulted.
func shortCircuitValue(op string, lv value.Value) (value.Value, bool) {
	if lv.IsError() {
		return lv, true
	}
	lt := value.Truthy(lv)
	if lt.IsError() {
		return lt, true
	}
	if op == "&&" && !lt.Bool() {
		return value.False, true
	}
	if op == "||" && lt.Bool() {
		return value.True, true
	}
	return value.Value{}, false
}

// truthyWrap coerces a Compiled's eventual value through Truthy, used
// when a constant left operand leaves the right operand as the sole
// determinant of an && / || result.
func truthyWrap(c *Compiled) *Compiled {
	switch c.stratum {
	case Const:
		return constCompiled(value.Truthy(c.constVal))
	case Pure:
		inner := c.evalPure
		return &Compiled{stratum: Pure, evalPure: func(ec *EvalCtx) value.Value {
			return value.Truthy(inner(ec))
		}}
	default:
		inner := c.evalStream
		return &Compiled{stratum: Stream, evalStream: func(ctx context.Context, ec *EvalCtx) *reactive.Flux[TracedValue] {
			return reactive.Map(ctx, inner(ctx, ec), func(tv TracedValue) TracedValue {
				return TracedValue{Value: value.Truthy(tv.Value), Attributes: tv.Attributes}
			})
		}}
	}
}

// shortCircuitStream implements the Stream-stratum form of && / ||: it
// subscribes to left eagerly but only subscribes to right lazily, the
// first time left fails to determine the result on its own, and
// unsubscribes from right again whenever left alone determines a later
// emission.
func shortCircuitStream(ctx context.Context, ec *EvalCtx, op string, left, right *Compiled) *reactive.Flux[TracedValue] {
	out := reactive.New[TracedValue](nil)
	go func() {
		defer out.Close()
		leftSub := left.Subscribe(ctx, ec)
		defer leftSub.Cancel()

		var rightSub *reactive.Subscription[TracedValue]
		var rightChan <-chan TracedValue
		closeRight := func() {
			if rightSub != nil {
				rightSub.Cancel()
				rightSub = nil
				rightChan = nil
			}
		}
		defer closeRight()

		var lastLeftAttrs []AttributeRecord

		for {
			select {
			case <-ctx.Done():
				return

			case tv, ok := <-leftSub.C():
				if !ok {
					return
				}
				if res, determined := shortCircuitValue(op, tv.Value); determined {
					closeRight()
					out.Emit(TracedValue{Value: res, Attributes: tv.Attributes})
					continue
				}
				lastLeftAttrs = tv.Attributes
				if rightSub == nil {
					rightSub = right.Subscribe(ctx, ec)
					rightChan = rightSub.C()
				}

			case tv, ok := <-rightChan:
				if !ok {
					rightChan = nil
					continue
				}
				result := value.Truthy(tv.Value)
				if tv.Value.IsError() {
					result = tv.Value
				}
				out.Emit(TracedValue{Value: result, Attributes: mergeAttrs(lastLeftAttrs, tv.Attributes)})
			}
		}
	}()
	return out
}
