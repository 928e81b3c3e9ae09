// Package pdp implements the PDP orchestrator (C9): it binds one
// subscription into an evaluation context, drives the root combining
// engine materialised from a PDP configuration's top-level documents,
// and emits the distinct-until-changed decision flux described in
// spec.md §4.9.
package pdp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/compiler/policyset"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
	"github.com/heutelbeck/sapl-go/internal/runtime/combine"
)

// Configuration is the materialised form of spec.md §6's PDP
// configuration object: {pdpId, configurationId, algorithm, policies,
// variables}. Parsing policy source text into policy.Document values is
// the parser's job (internal/compiler/parse); Configuration already
// holds compiled documents so the orchestrator stays decoupled from
// concrete source syntax.
type Configuration struct {
	PDPID           string
	ConfigurationID string
	Algorithm       policy.CombiningAlgorithm
	Documents       []policy.Document
	Variables       map[string]value.Value
}

// Subscription is one authorization request: subject/action/resource/
// environment, each defaulting to value.Undefined when omitted, per
// spec.md §6.
type Subscription struct {
	Subject     value.Value
	Action      value.Value
	Resource    value.Value
	Environment value.Value
}

func (s Subscription) vars() map[string]value.Value {
	return map[string]value.Value{
		"subject":     s.Subject,
		"action":      s.Action,
		"resource":    s.Resource,
		"environment": s.Environment,
	}
}

// SubscriptionFromJSON parses a subscription document per spec.md §6:
// fields `subject`, `action`, `resource`, `environment`, with any field
// absent from the JSON object defaulting to value.Undefined (distinct
// from JSON null, which decodes to value.Null).
func SubscriptionFromJSON(data []byte) (Subscription, error) {
	doc, err := value.FromJSON(data)
	if err != nil {
		return Subscription{}, fmt.Errorf("pdp: parse subscription: %w", err)
	}
	field := func(name string) value.Value {
		v := doc.Field(name)
		if v.Kind() == value.KindUndefined {
			return value.Undefined
		}
		return v
	}
	return Subscription{
		Subject:     field("subject"),
		Action:      field("action"),
		Resource:    field("resource"),
		Environment: field("environment"),
	}, nil
}

// Metrics holds the Prometheus instruments the PDP records against,
// mirroring internal/adapter/inbound/http/metrics.go's
// registry-scoped-constructor pattern one layer down in the stack.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	EvaluationErrors prometheus.Counter
}

// NewMetrics registers the PDP's instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sapl",
				Name:      "pdp_decisions_total",
				Help:      "Total number of distinct decisions emitted by the PDP, by outcome",
			},
			[]string{"decision"},
		),
		EvaluationErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sapl",
				Name:      "pdp_evaluation_errors_total",
				Help:      "Total number of configuration compile/validate failures",
			},
		),
	}
}

// PDP is a compiled, ready-to-evaluate PDP configuration: one root
// Voter combining every top-level document under the configuration's
// algorithm.
type PDP struct {
	id        string
	configID  string
	root      *policy.Voter
	vars      map[string]value.Value
	funcs     *function.Broker
	attrs     *attribute.Broker
	metrics   *Metrics
	traceSink policy.TraceSink
}

// Option configures optional PDP behavior.
type Option func(*PDP)

// WithMetrics attaches a Metrics instance; decisions are counted by
// outcome as they're emitted.
func WithMetrics(m *Metrics) Option {
	return func(p *PDP) { p.metrics = m }
}

// WithTraceSink attaches the trace/coverage channel (C10); every
// combined vote the root voter produces is recorded into it.
func WithTraceSink(sink policy.TraceSink) Option {
	return func(p *PDP) { p.traceSink = sink }
}

// New compiles cfg into a ready PDP. The top-level algorithm must not be
// FIRST (spec.md §6); FIRST is a meaningful ordering rule inside a named
// set, not across independently-authored top-level documents.
func New(cfg Configuration, funcs *function.Broker, attrs *attribute.Broker, opts ...Option) (*PDP, error) {
	if err := cfg.Algorithm.ValidateTopLevel(); err != nil {
		return nil, fmt.Errorf("pdp: %w", err)
	}
	compiler, err := expr.NewCompiler(funcs, attrs, cfg.ConfigurationID)
	if err != nil {
		return nil, fmt.Errorf("pdp: build compiler: %w", err)
	}

	children := make([]*policy.Voter, len(cfg.Documents))
	for i, doc := range cfg.Documents {
		children[i] = policyset.Compile(doc, compiler, fmt.Sprintf("%s/%d", cfg.ConfigurationID, i))
	}
	root := combine.Compile(cfg.PDPID, true, cfg.Algorithm, cfg.ConfigurationID, children)

	p := &PDP{
		id:       cfg.PDPID,
		configID: cfg.ConfigurationID,
		root:     root,
		vars:     cfg.Variables,
		funcs:    funcs,
		attrs:    attrs,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Decide evaluates sub against the compiled configuration and returns
// the distinct-until-changed decision flux described in spec.md §4.9:
// every upstream re-emission yields a new combined decision, but
// consecutive structurally-identical decisions are suppressed.
// Cancelling ctx propagates to every attribute subscription the root
// voter opened (spec.md §5).
func (p *PDP) Decide(ctx context.Context, sub Subscription) *reactive.Flux[policy.AuthorizationDecision] {
	vars := make(map[string]value.Value, len(p.vars)+4)
	for k, v := range p.vars {
		vars[k] = v
	}
	for k, v := range sub.vars() {
		vars[k] = v
	}
	ec := &policy.EvaluationContext{
		Eval:  &expr.EvalCtx{Vars: vars, Funcs: p.funcs, Attributes: p.attrs, ConfigurationID: p.configID},
		Trace: p.traceSink,
	}

	requestID := uuid.New().String()

	out := reactive.New[policy.AuthorizationDecision](nil)
	sub2 := p.root.Subscribe(ctx, ec)
	go func() {
		defer out.Close()
		defer sub2.Cancel()
		var last policy.AuthorizationDecision
		haveLast := false
		for {
			select {
			case <-ctx.Done():
				return
			case vote, ok := <-sub2.C():
				if !ok {
					return
				}
				if p.traceSink != nil {
					vote.RequestID = requestID
					p.traceSink.Record(vote)
				}
				if haveLast && last.Equal(vote.Decision) {
					continue
				}
				last = vote.Decision
				haveLast = true
				if p.metrics != nil {
					p.metrics.DecisionsTotal.WithLabelValues(string(vote.Decision.Decision)).Inc()
				}
				out.Emit(vote.Decision)
			}
		}
	}()
	return out
}
