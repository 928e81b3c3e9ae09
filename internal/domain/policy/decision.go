package policy

import "github.com/heutelbeck/sapl-go/internal/domain/value"

// Decision is the four-valued authorization outcome, per spec.md §3.
type Decision string

const (
	DecisionPermit        Decision = "PERMIT"
	DecisionDeny          Decision = "DENY"
	DecisionNotApplicable Decision = "NOT_APPLICABLE"
	DecisionIndeterminate Decision = "INDETERMINATE"
)

// AuthorizationDecision is the unit the PDP streams to a subscriber.
type AuthorizationDecision struct {
	Decision    Decision
	Obligations []value.Value
	Advice      []value.Value
	// Resource is Undefined when the policy carried no transform.
	Resource value.Value
}

// NotApplicable is the canonical NOT_APPLICABLE decision with no
// obligations, advice, or resource.
func NotApplicable() AuthorizationDecision {
	return AuthorizationDecision{Decision: DecisionNotApplicable, Resource: value.Undefined}
}

// Indeterminate is the canonical INDETERMINATE decision.
func Indeterminate() AuthorizationDecision {
	return AuthorizationDecision{Decision: DecisionIndeterminate, Resource: value.Undefined}
}

// Equal reports whether two decisions are structurally identical, the
// comparison the PDP orchestrator's distinct-until-changed filter (C9)
// uses.
func (d AuthorizationDecision) Equal(other AuthorizationDecision) bool {
	if d.Decision != other.Decision {
		return false
	}
	if !equalValueSlice(d.Obligations, other.Obligations) {
		return false
	}
	if !equalValueSlice(d.Advice, other.Advice) {
		return false
	}
	return value.Equals(d.Resource, other.Resource)
}

func equalValueSlice(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !value.Equals(a[i], b[i]) {
			return false
		}
	}
	return true
}
