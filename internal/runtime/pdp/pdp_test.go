package pdp

import (
	"context"
	"testing"
	"time"

	"github.com/heutelbeck/sapl-go/internal/compiler/body"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func newTestBrokers() (*function.Broker, *attribute.Broker) {
	funcs := function.NewBroker()
	function.RegisterAll(funcs)
	attrs := attribute.NewBroker(attribute.NewRegistry())
	return funcs, attrs
}

func expectDecision(t *testing.T, ch <-chan policy.AuthorizationDecision, want policy.Decision) policy.AuthorizationDecision {
	t.Helper()
	select {
	case d := <-ch:
		if d.Decision != want {
			t.Fatalf("got %v, want %v", d.Decision, want)
		}
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decision")
		return policy.AuthorizationDecision{}
	}
}

func TestRejectsFirstAsTopLevelAlgorithm(t *testing.T) {
	funcs, attrs := newTestBrokers()
	_, err := New(Configuration{
		PDPID:     "pdp",
		Algorithm: policy.CombiningAlgorithm{Mode: policy.First, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	}, funcs, attrs)
	if err == nil {
		t.Fatal("expected error for top-level FIRST algorithm")
	}
}

func TestDecidePermitsMatchingSubject(t *testing.T) {
	funcs, attrs := newTestBrokers()
	pol := &policy.Policy{
		Name:        "allow-alice",
		Entitlement: policy.Permit,
		Body: []body.Statement{
			body.Condition{Expr: expr.Binary{Op: "==", Left: expr.VarRef{Name: "subject"}, Right: expr.Literal{Value: value.Text("alice")}}},
		},
	}
	cfg := Configuration{
		PDPID:           "pdp",
		ConfigurationID: "cfg-1",
		Algorithm:       policy.CombiningAlgorithm{Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
		Documents:       []policy.Document{pol},
	}
	p, err := New(cfg, funcs, attrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := p.Decide(ctx, Subscription{Subject: value.Text("alice")})
	sub := out.Subscribe()
	defer sub.Cancel()
	expectDecision(t, sub.C(), policy.DecisionPermit)

	out2 := p.Decide(ctx, Subscription{Subject: value.Text("bob")})
	sub2 := out2.Subscribe()
	defer sub2.Cancel()
	expectDecision(t, sub2.C(), policy.DecisionNotApplicable)
}

func TestDecideStaticRootEmitsSingleDecision(t *testing.T) {
	funcs, attrs := newTestBrokers()
	f := func() *policy.Policy {
		return &policy.Policy{Name: "allow", Entitlement: policy.Permit}
	}
	cfg := Configuration{
		PDPID:           "pdp",
		ConfigurationID: "cfg-1",
		Algorithm:       policy.CombiningAlgorithm{Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
		Documents:       []policy.Document{f()},
	}
	p, err := New(cfg, funcs, attrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.root.Kind() != policy.StaticVoter {
		t.Fatalf("expected static root for an all-static config, got %v", p.root.Kind())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := p.Decide(ctx, Subscription{})
	sub := out.Subscribe()
	defer sub.Cancel()
	expectDecision(t, sub.C(), policy.DecisionPermit)

	select {
	case d := <-sub.C():
		t.Fatalf("expected no further emission for a static root (single decision only), got %v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

type recordingSink struct {
	votes []policy.Vote
}

func (r *recordingSink) Record(v policy.Vote) { r.votes = append(r.votes, v) }

func TestDecideStampsDistinctRequestIDPerCall(t *testing.T) {
	funcs, attrs := newTestBrokers()
	cfg := Configuration{
		PDPID:           "pdp",
		ConfigurationID: "cfg-1",
		Algorithm:       policy.CombiningAlgorithm{Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
		Documents:       []policy.Document{&policy.Policy{Name: "allow", Entitlement: policy.Permit}},
	}
	sink := &recordingSink{}
	p, err := New(cfg, funcs, attrs, WithTraceSink(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 2; i++ {
		out := p.Decide(ctx, Subscription{})
		sub := out.Subscribe()
		expectDecision(t, sub.C(), policy.DecisionPermit)
		sub.Cancel()
	}

	if len(sink.votes) != 2 {
		t.Fatalf("expected 2 recorded votes, got %d", len(sink.votes))
	}
	if sink.votes[0].RequestID == "" || sink.votes[1].RequestID == "" {
		t.Fatalf("expected every recorded vote to carry a request ID, got %+v", sink.votes)
	}
	if sink.votes[0].RequestID == sink.votes[1].RequestID {
		t.Fatalf("expected distinct request IDs across Decide calls, both were %q", sink.votes[0].RequestID)
	}
}

func TestSubscriptionFromJSONDefaultsMissingFieldsToUndefined(t *testing.T) {
	sub, err := SubscriptionFromJSON([]byte(`{"subject":"alice","resource":{"id":1}}`))
	if err != nil {
		t.Fatalf("SubscriptionFromJSON: %v", err)
	}
	if !value.Equals(sub.Subject, value.Text("alice")) {
		t.Fatalf("got subject %v", sub.Subject)
	}
	if sub.Action.Kind() != value.KindUndefined {
		t.Fatalf("expected action to default to Undefined, got %v", sub.Action)
	}
	if sub.Environment.Kind() != value.KindUndefined {
		t.Fatalf("expected environment to default to Undefined, got %v", sub.Environment)
	}
}
