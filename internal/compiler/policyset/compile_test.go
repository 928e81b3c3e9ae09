package policyset

import (
	"testing"

	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

func newTestCompiler(t *testing.T) *expr.Compiler {
	t.Helper()
	funcs := function.NewBroker()
	function.RegisterAll(funcs)
	attrs := attribute.NewBroker(attribute.NewRegistry())
	c, err := expr.NewCompiler(funcs, attrs, "test-config")
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	return c
}

func TestSetCombinesChildPoliciesUnderDenyOverrides(t *testing.T) {
	c := newTestCompiler(t)
	set := &policy.PolicySet{
		Name: "s",
		Algorithm: policy.CombiningAlgorithm{
			Mode:            policy.PriorityDeny,
			DefaultDecision: policy.DefaultAbstain,
			ErrorHandling:   policy.Propagate,
		},
		Policies: []policy.Document{
			&policy.Policy{Name: "a", Entitlement: policy.Permit},
			&policy.Policy{Name: "b", Entitlement: policy.Deny},
		},
	}
	v := Compile(set, c, "set-0")
	if v.Kind() != policy.StaticVoter {
		t.Fatalf("expected StaticVoter (both children static), got %v", v.Kind())
	}
	vote := v.Eval(nil)
	if vote.Decision.Decision != policy.DecisionDeny {
		t.Fatalf("got %v", vote.Decision.Decision)
	}
	if !vote.IsSet || vote.VoterName != "s" {
		t.Fatalf("expected set identity on combined vote, got %+v", vote)
	}
}

func TestNestedSetRecurses(t *testing.T) {
	c := newTestCompiler(t)
	inner := &policy.PolicySet{
		Name:      "inner",
		Algorithm: policy.CombiningAlgorithm{Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
		Policies: []policy.Document{
			&policy.Policy{Name: "a", Entitlement: policy.Permit},
		},
	}
	outer := &policy.PolicySet{
		Name:      "outer",
		Algorithm: policy.CombiningAlgorithm{Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
		Policies:  []policy.Document{inner},
	}
	v := Compile(outer, c, "set-0")
	vote := v.Eval(nil)
	if vote.Decision.Decision != policy.DecisionPermit {
		t.Fatalf("got %v", vote.Decision.Decision)
	}
}
