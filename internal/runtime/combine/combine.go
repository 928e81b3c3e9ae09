// Package combine implements the combining-algorithm engine (C7): it
// merges an ordered list of child Votes into one Vote, pure on the
// vector of latest child votes, per spec.md §4.7.
package combine

import (
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Votes is the pure combination function: given the algorithm and the
// ordered latest vote from every child, produce the combined Vote. Tie-
// breaks use the slice's order, which callers (C8, C9) must populate as
// the lexical order of the source list.
func Votes(algorithm policy.CombiningAlgorithm, votes []policy.Vote) policy.Vote {
	decision, contributing := combineDecision(algorithm.Mode, votes)
	decision = finalize(decision, algorithm)
	return policy.Vote{
		Decision: decision,
		Children: votes,
		Errors:   collectErrors(contributing),
	}
}

// combineDecision applies one of the four modes over votes, returning
// the combined AuthorizationDecision and the subset of votes that
// contributed obligations/advice to it.
func combineDecision(mode policy.CombiningMode, votes []policy.Vote) (policy.AuthorizationDecision, []policy.Vote) {
	switch mode {
	case policy.PriorityDeny:
		return priorityDeny(votes)
	case policy.PriorityPermit:
		return priorityPermit(votes)
	case policy.Unique:
		return unique(votes)
	case policy.First:
		return first(votes)
	default:
		return policy.Indeterminate(), nil
	}
}

func priorityDeny(votes []policy.Vote) (policy.AuthorizationDecision, []policy.Vote) {
	var denies, permits, indeterminates []policy.Vote
	for _, v := range votes {
		switch v.Decision.Decision {
		case policy.DecisionDeny:
			denies = append(denies, v)
		case policy.DecisionPermit:
			permits = append(permits, v)
		case policy.DecisionIndeterminate:
			indeterminates = append(indeterminates, v)
		}
	}
	if len(denies) > 0 {
		return aggregate(policy.DecisionDeny, denies), denies
	}
	if len(indeterminates) > 0 {
		return policy.Indeterminate(), indeterminates
	}
	if len(permits) > 0 {
		return aggregate(policy.DecisionPermit, permits), permits
	}
	return policy.NotApplicable(), nil
}

func priorityPermit(votes []policy.Vote) (policy.AuthorizationDecision, []policy.Vote) {
	var denies, permits, indeterminates []policy.Vote
	for _, v := range votes {
		switch v.Decision.Decision {
		case policy.DecisionDeny:
			denies = append(denies, v)
		case policy.DecisionPermit:
			permits = append(permits, v)
		case policy.DecisionIndeterminate:
			indeterminates = append(indeterminates, v)
		}
	}
	if len(permits) > 0 {
		return aggregate(policy.DecisionPermit, permits), permits
	}
	if len(denies) > 0 {
		return aggregate(policy.DecisionDeny, denies), denies
	}
	if len(indeterminates) > 0 {
		return policy.Indeterminate(), indeterminates
	}
	return policy.NotApplicable(), nil
}

func unique(votes []policy.Vote) (policy.AuthorizationDecision, []policy.Vote) {
	var applicable []policy.Vote
	hasIndeterminate := false
	for _, v := range votes {
		switch v.Decision.Decision {
		case policy.DecisionPermit, policy.DecisionDeny:
			applicable = append(applicable, v)
		case policy.DecisionIndeterminate:
			hasIndeterminate = true
		}
	}
	if len(applicable) > 1 {
		return policy.Indeterminate(), applicable
	}
	if len(applicable) == 1 {
		return applicable[0].Decision, applicable
	}
	if hasIndeterminate {
		return policy.Indeterminate(), nil
	}
	return policy.NotApplicable(), nil
}

func first(votes []policy.Vote) (policy.AuthorizationDecision, []policy.Vote) {
	for _, v := range votes {
		if v.Decision.Decision == policy.DecisionPermit || v.Decision.Decision == policy.DecisionDeny {
			return v.Decision, []policy.Vote{v}
		}
	}
	for _, v := range votes {
		if v.Decision.Decision == policy.DecisionIndeterminate {
			return policy.Indeterminate(), []policy.Vote{v}
		}
	}
	return policy.NotApplicable(), nil
}

// aggregate merges the obligations/advice of every contributing vote
// sharing decision d into one AuthorizationDecision, per spec.md §4.7
// ("PRIORITY_DENY keeps all denying children's obligations; UNIQUE keeps
// the one applicable child's").
func aggregate(d policy.Decision, votes []policy.Vote) policy.AuthorizationDecision {
	out := policy.AuthorizationDecision{Decision: d, Resource: value.Undefined}
	for _, v := range votes {
		out.Obligations = append(out.Obligations, v.Decision.Obligations...)
		out.Advice = append(out.Advice, v.Decision.Advice...)
		if !v.Decision.Resource.IsUndefined() {
			out.Resource = v.Decision.Resource
		}
	}
	return out
}

// finalize applies spec.md §4.7's post-combination rules: default
// decision substitution for NOT_APPLICABLE, and error-hiding for
// INDETERMINATE.
func finalize(d policy.AuthorizationDecision, algorithm policy.CombiningAlgorithm) policy.AuthorizationDecision {
	if d.Decision == policy.DecisionNotApplicable {
		switch algorithm.DefaultDecision {
		case policy.DefaultPermit:
			d.Decision = policy.DecisionPermit
		case policy.DefaultDeny:
			d.Decision = policy.DecisionDeny
		}
		return d
	}
	if d.Decision == policy.DecisionIndeterminate && algorithm.ErrorHandling == policy.Abstain {
		return policy.NotApplicable()
	}
	return d
}

func collectErrors(votes []policy.Vote) []value.Value {
	var errs []value.Value
	for _, v := range votes {
		errs = append(errs, v.Errors...)
	}
	return errs
}
