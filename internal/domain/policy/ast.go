// Package policy holds the ABAC policy/policy-set AST, the combining
// algorithm vocabulary, and the Vote/Voter sum type that every compiler
// stage (C6-C8) produces and the PDP orchestrator (C9) consumes.
package policy

import (
	"github.com/heutelbeck/sapl-go/internal/compiler/body"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Entitlement is the decision a policy's body grants once applicable.
type Entitlement string

const (
	Permit Entitlement = "PERMIT"
	Deny   Entitlement = "DENY"
)

// Constraints holds a policy's optional obligation/advice/transform
// expressions. Obligation and advice may each appear multiple times;
// transform appears at most once. `@`/`#` relative accessors are only
// valid inside Transform (checked at compile time, see C6).
type Constraints struct {
	Obligations []expr.Node
	Advice      []expr.Node
	Transform   expr.Node // nil when absent
}

// Document is either a Policy or a PolicySet; PolicySet.Policies holds a
// sequence of these, and sets may nest.
type Document interface{ isDocument() }

// Policy is one `policy <name> (permit|deny) where ...` document.
type Policy struct {
	Name           string
	Entitlement    Entitlement
	Body           []body.Statement
	Constraints    Constraints
	SourceLocation value.SourceLocation
}

func (*Policy) isDocument() {}

// CombiningMode selects how a PolicySet (or the PDP root) combines its
// children's votes, per spec.md §4.7.
type CombiningMode string

const (
	PriorityDeny   CombiningMode = "PRIORITY_DENY"
	PriorityPermit CombiningMode = "PRIORITY_PERMIT"
	Unique         CombiningMode = "UNIQUE"
	First          CombiningMode = "FIRST"
)

// DefaultDecision is applied when every child voter abstains
// (NOT_APPLICABLE).
type DefaultDecision string

const (
	DefaultPermit  DefaultDecision = "PERMIT"
	DefaultDeny    DefaultDecision = "DENY"
	DefaultAbstain DefaultDecision = "ABSTAIN"
)

// ErrorHandling controls whether INDETERMINATE survives finalisation.
type ErrorHandling string

const (
	Propagate ErrorHandling = "PROPAGATE"
	Abstain   ErrorHandling = "ABSTAIN"
)

// CombiningAlgorithm is the triple named by an algorithm identifier in
// the policy source language (e.g. "deny-overrides").
type CombiningAlgorithm struct {
	Mode            CombiningMode
	DefaultDecision DefaultDecision
	ErrorHandling   ErrorHandling
}

// PolicySet is a named, ordered group of policies or nested sets,
// combined by one CombiningAlgorithm.
type PolicySet struct {
	Name           string
	Algorithm      CombiningAlgorithm
	Policies       []Document
	SourceLocation value.SourceLocation
}

func (*PolicySet) isDocument() {}

// ValidateTopLevel rejects a top-level algorithm of FIRST, which spec.md §3
// forbids outside a nested set.
func (a CombiningAlgorithm) ValidateTopLevel() error {
	if a.Mode == First {
		return errTopLevelFirst
	}
	return nil
}
