package policy

import (
	"context"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// EvaluationContext binds one subscription's evaluation environment:
// the compiled-expression evaluation context (subject/action/resource/
// environment plus brokers), and an optional trace sink every voter
// reports into. Built once per subscription by the PDP orchestrator
// (C9) and threaded, read-only, through the whole voter tree.
type EvaluationContext struct {
	Eval  *expr.EvalCtx
	Trace TraceSink
}

// TraceSink receives one Vote per combined emission; the trace/coverage
// channel (C10) is the concrete implementation. Accepting the interface
// here, rather than importing the trace package, keeps policy free of a
// dependency on how traces are sunk (file, OTel span, in-memory).
type TraceSink interface {
	Record(v Vote)
}

// Vote is the result of evaluating one policy or policy-set voter: a
// decision plus enough identity and lineage to reconstruct a trace
// record (C10) without re-walking the voter tree.
type Vote struct {
	Decision   AuthorizationDecision
	VoterName  string
	DocumentID string
	IsSet      bool // true for a PolicySet voter, false for a Policy voter
	Algorithm  *CombiningAlgorithm // set only when IsSet
	Children   []Vote
	Errors     []value.Value
	Attributes []expr.AttributeRecord
	// RequestID correlates every Vote emitted for one Decide call,
	// stamped once at the root by the orchestrator (C9) rather than
	// threaded through every compiled voter.
	RequestID string
}

// VoterKind classifies how a Voter must be evaluated, mirroring C4's
// Const/Pure/Stream lattice one level up: a voter is polymorphic over
// {static-value, synchronous-closure, reactive-stream}, per spec.md §9's
// explicit instruction to model this as a tagged variant instead of an
// open class hierarchy.
type VoterKind int

const (
	StaticVoter VoterKind = iota
	PureVoterKind
	StreamVoterKind
)

// Voter is a closed sum: StaticVote(AuthorizationDecision) |
// PureVoter(EvaluationContext → Vote) | StreamVoter(EvaluationContext →
// Flux<Vote>), per spec.md §3.
type Voter struct {
	kind     VoterKind
	static   Vote
	pureFn   func(ec *EvaluationContext) Vote
	streamFn func(ctx context.Context, ec *EvaluationContext) *reactive.Flux[Vote]
}

func (v *Voter) Kind() VoterKind { return v.kind }

// NewStaticVoter lifts an already-known Vote (e.g. a compile-time
// INDETERMINATE from a failed policy, or `policy "p" permit` with no
// body) to a Voter.
func NewStaticVoter(v Vote) *Voter {
	return &Voter{kind: StaticVoter, static: v}
}

// NewPureVoter builds a Voter backed by a synchronous, terminating
// closure.
func NewPureVoter(fn func(ec *EvaluationContext) Vote) *Voter {
	return &Voter{kind: PureVoterKind, pureFn: fn}
}

// NewStreamVoter builds a Voter backed by a reactive closure.
func NewStreamVoter(fn func(ctx context.Context, ec *EvaluationContext) *reactive.Flux[Vote]) *Voter {
	return &Voter{kind: StreamVoterKind, streamFn: fn}
}

// Eval synchronously evaluates a Static or Pure voter. Calling it on a
// Stream voter is a caller error that still returns a total
// INDETERMINATE Vote rather than panicking.
func (v *Voter) Eval(ec *EvaluationContext) Vote {
	switch v.kind {
	case StaticVoter:
		return v.static
	case PureVoterKind:
		return v.pureFn(ec)
	default:
		return Vote{Decision: Indeterminate(), Errors: []value.Value{value.Errorf("cannot synchronously evaluate a streaming voter")}}
	}
}

// Subscribe returns a live subscription to this voter's votes. A Static
// or Pure voter lifts to a single-emission, immediately-replayed Flux so
// every Voter composes uniformly regardless of stratum, the same
// pattern expr.Compiled.Subscribe uses one layer down.
func (v *Voter) Subscribe(ctx context.Context, ec *EvaluationContext) *reactive.Subscription[Vote] {
	if v.kind == StreamVoterKind {
		return v.streamFn(ctx, ec).Subscribe()
	}
	f := reactive.New[Vote](nil)
	f.Emit(v.Eval(ec))
	return f.Subscribe()
}
