// Package policyset implements the policy-set compiler (C8): it
// compiles each child document into a voter, then wraps them in a
// combining-engine instance (C7) scoped to the set's own algorithm.
// Sets may nest, so Compile recurses over PolicySet.Policies.
package policyset

import (
	"fmt"

	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	policycompiler "github.com/heutelbeck/sapl-go/internal/compiler/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
	"github.com/heutelbeck/sapl-go/internal/runtime/combine"
)

// Compile lowers a Document (Policy or PolicySet) to a Voter. A Policy
// compiles through C6 directly; a PolicySet compiles each child then
// combines them (C7) under its own algorithm. documentID is the set's
// trace identity, derived from the document's position in the
// configuration; a Policy does not use it, and attribute invocations
// are scoped by the compiler's ConfigurationID instead.
func Compile(doc policy.Document, compiler *expr.Compiler, documentID string) *policy.Voter {
	switch d := doc.(type) {
	case *policy.Policy:
		return policycompiler.Compile(d, compiler)

	case *policy.PolicySet:
		children := make([]*policy.Voter, len(d.Policies))
		for i, child := range d.Policies {
			children[i] = Compile(child, compiler, fmt.Sprintf("%s/%d", documentID, i))
		}
		return combine.Compile(d.Name, true, d.Algorithm, documentID, children)

	default:
		return policy.NewStaticVoter(policy.Vote{
			Decision: policy.Indeterminate(),
			Errors:   []value.Value{value.Errorf("policyset: unknown document type %T", doc)},
		})
	}
}
