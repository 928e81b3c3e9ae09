// Package body implements the policy-body compiler (C5): it splits a
// `where` clause's statement sequence into a pure prefix and a streaming
// suffix per spec.md §4.5, folding VarDefs into an expanding compile-time
// scope as it goes.
package body

import (
	"context"
	"fmt"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Statement is either a VarDef or a Condition, in source order.
type Statement interface{ isStatement() }

// VarDef binds Name to Expr's value for every statement lexically after
// it. Redefining a name already bound earlier in the same body is a
// compile-time error.
type VarDef struct {
	Name string
	Expr expr.Node
}

// Condition is a boolean-valued statement; the body is applicable only
// if every Condition evaluates to True.
type Condition struct {
	Expr expr.Node
}

func (VarDef) isStatement()    {}
func (Condition) isStatement() {}

// ConditionOutcome records one evaluated condition's index (within the
// full statement list) and result, for coverage reporting (C10).
type ConditionOutcome struct {
	StatementIndex int
	Result         value.Value
}

// CompiledBody is the result of compiling one `where` clause.
type CompiledBody struct {
	// IsApplicable is the short-circuit conjunction of the pure-prefix
	// conditions: Const or Pure, per spec.md §4.5 step 3.
	IsApplicable *expr.Compiled

	// StreamingSection is Const(True) when no statement is Stream;
	// otherwise it re-evaluates from the first Stream statement onward
	// each time any stream operand re-emits (spec.md §4.5 step 4).
	StreamingSection *expr.Compiled

	// pureOutcomes are the (already pure-evaluated, order-preserved)
	// compiled conditions of the pure prefix, kept for coverage reporting.
	pureOutcomes []indexedCondition
}

type indexedCondition struct {
	statementIndex int
	compiled       *expr.Compiled
}

// Compile folds VarDefs into compiler's scope and splits the remaining
// Conditions into the pure prefix / streaming suffix.
func Compile(stmts []Statement, compiler *expr.Compiler) (*CompiledBody, error) {
	seen := make(map[string]bool)
	cur := compiler

	var pureConditions []*expr.Compiled
	var pureOutcomes []indexedCondition
	var suffixParts []*expr.Compiled
	inSuffix := false

	for i, stmt := range stmts {
		switch s := stmt.(type) {
		case VarDef:
			if seen[s.Name] {
				return nil, fmt.Errorf("body: %q redefined (statement %d)", s.Name, i)
			}
			seen[s.Name] = true
			compiled, err := cur.Compile(s.Expr)
			if err != nil {
				return nil, fmt.Errorf("body: compiling var %q: %w", s.Name, err)
			}
			cur = cur.WithVar(s.Name, compiled)
			if inSuffix {
				// A VarDef inside the streaming suffix still needs to be part
				// of the nested re-evaluation order, but it contributes no
				// boolean of its own; And() skips non-boolean Const(True)
				// placeholders cleanly since True is the conjunction identity.
				suffixParts = append(suffixParts, expr.And())
			}

		case Condition:
			compiled, err := cur.Compile(s.Expr)
			if err != nil {
				return nil, fmt.Errorf("body: compiling condition %d: %w", i, err)
			}
			if !inSuffix && compiled.Stratum() == expr.Stream {
				inSuffix = true
			}
			if inSuffix {
				suffixParts = append(suffixParts, compiled)
			} else {
				pureConditions = append(pureConditions, compiled)
				pureOutcomes = append(pureOutcomes, indexedCondition{statementIndex: i, compiled: compiled})
			}

		default:
			return nil, fmt.Errorf("body: unknown statement type %T", stmt)
		}
	}

	isApplicable := expr.And(pureConditions...)
	streaming := expr.And(suffixParts...) // Const(True) when suffixParts is empty

	return &CompiledBody{
		IsApplicable:     isApplicable,
		StreamingSection: streaming,
		pureOutcomes:     pureOutcomes,
	}, nil
}

// Subscribe evaluates the whole body (pure prefix, then — only if the
// prefix holds — the streaming suffix) as one Flux, matching spec.md
// §4.6's "body result True/False/Error" contract fed into entitlement
// mapping.
func (cb *CompiledBody) Subscribe(ctx context.Context, ec *expr.EvalCtx) *reactive.Subscription[expr.TracedValue] {
	combined := expr.PairwiseLogical("&&", cb.IsApplicable, cb.StreamingSection)
	return combined.Subscribe(ctx, ec)
}

// CoverageEmission pairs one body emission with the set of pure-prefix
// conditions that were actually evaluated to reach it (the short-circuited
// tail is never reported, per spec.md §4.5's last invariant). Emissions
// of the streaming suffix carry the pure-prefix outcomes unchanged; no
// per-condition outcome is recorded for any statement of the suffix.
type CoverageEmission struct {
	Value    expr.TracedValue
	Outcomes []ConditionOutcome
}

// CoverageSubscribe is like Subscribe but additionally reports, for the
// pure prefix, exactly which conditions were evaluated and their
// individual results — the data the trace/coverage channel (C10) needs
// for "single vs two-branch coverage" per policy.
func (cb *CompiledBody) CoverageSubscribe(ctx context.Context, ec *expr.EvalCtx) *reactive.Flux[CoverageEmission] {
	out := reactive.New[CoverageEmission](nil)
	go func() {
		defer out.Close()

		var outcomes []ConditionOutcome
		applicable := value.True
		for _, ic := range cb.pureOutcomes {
			r := ic.compiled.Eval(ec)
			outcomes = append(outcomes, ConditionOutcome{StatementIndex: ic.statementIndex, Result: r})
			if r.IsError() {
				applicable = r
				break
			}
			t := value.Truthy(r)
			if t.IsError() {
				applicable = t
				break
			}
			if !t.Bool() {
				applicable = value.False
				break
			}
			applicable = value.True
		}

		if !applicable.IsError() && !value.Equals(applicable, value.True) {
			out.Emit(CoverageEmission{Value: expr.TracedValue{Value: applicable}, Outcomes: outcomes})
			return
		}
		if applicable.IsError() {
			out.Emit(CoverageEmission{Value: expr.TracedValue{Value: applicable}, Outcomes: outcomes})
			return
		}

		sub := cb.StreamingSection.Subscribe(ctx, ec)
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case tv, ok := <-sub.C():
				if !ok {
					return
				}
				out.Emit(CoverageEmission{Value: tv, Outcomes: outcomes})
			}
		}
	}()
	return out
}
