package combine

import (
	"testing"

	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

func vote(d policy.Decision) policy.Vote {
	return policy.Vote{Decision: policy.AuthorizationDecision{Decision: d}}
}

func algo(mode policy.CombiningMode) policy.CombiningAlgorithm {
	return policy.CombiningAlgorithm{Mode: mode, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate}
}

func TestDenyOverrides(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionPermit), vote(policy.DecisionDeny)}
	got := Votes(algo(policy.PriorityDeny), votes)
	if got.Decision.Decision != policy.DecisionDeny {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestPermitOverrides(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionPermit), vote(policy.DecisionDeny)}
	got := Votes(algo(policy.PriorityPermit), votes)
	if got.Decision.Decision != policy.DecisionPermit {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestDenyOverridesIndeterminateWall(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionPermit), vote(policy.DecisionIndeterminate)}
	got := Votes(algo(policy.PriorityDeny), votes)
	if got.Decision.Decision != policy.DecisionIndeterminate {
		t.Fatalf("expected INDETERMINATE error wall, got %v", got.Decision.Decision)
	}
}

func TestUniqueConflictIsIndeterminate(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionPermit), vote(policy.DecisionDeny)}
	got := Votes(algo(policy.Unique), votes)
	if got.Decision.Decision != policy.DecisionIndeterminate {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestUniqueSingleApplicable(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionNotApplicable), vote(policy.DecisionDeny)}
	got := Votes(algo(policy.Unique), votes)
	if got.Decision.Decision != policy.DecisionDeny {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestFirstApplicableRespectsOrder(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionNotApplicable), vote(policy.DecisionDeny), vote(policy.DecisionPermit)}
	got := Votes(algo(policy.First), votes)
	if got.Decision.Decision != policy.DecisionDeny {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestErrorHandlingPropagateVsAbstain(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionIndeterminate)}

	propagate := algo(policy.PriorityDeny)
	propagate.ErrorHandling = policy.Propagate
	got := Votes(propagate, votes)
	if got.Decision.Decision != policy.DecisionIndeterminate {
		t.Fatalf("got %v", got.Decision.Decision)
	}

	abstain := algo(policy.PriorityDeny)
	abstain.ErrorHandling = policy.Abstain
	got = Votes(abstain, votes)
	if got.Decision.Decision != policy.DecisionNotApplicable {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}

func TestDefaultDecisionAppliesOnlyWhenAllNotApplicable(t *testing.T) {
	votes := []policy.Vote{vote(policy.DecisionNotApplicable), vote(policy.DecisionNotApplicable)}
	a := algo(policy.PriorityDeny)
	a.DefaultDecision = policy.DefaultPermit
	got := Votes(a, votes)
	if got.Decision.Decision != policy.DecisionPermit {
		t.Fatalf("got %v", got.Decision.Decision)
	}
}
