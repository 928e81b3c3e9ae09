// Package expr implements the expression compiler (C4): constant folding
// and stratum inference (Const ≤ Pure ≤ Stream) over a small expression
// AST, with google/cel-go as the execution backend for the Pure stratum
// and the attribute broker (C3) as the backend for Stream, mirroring the
// way the teacher's cel.Evaluator compiles one flat condition — here
// generalized to an arbitrary subtree.
package expr

import "github.com/heutelbeck/sapl-go/internal/domain/value"

// Node is a parsed expression AST node. The policy/policy-set parser
// (internal/compiler/parse) is the only producer of Nodes outside tests.
type Node interface{ isNode() }

// Literal is a compile-time-known value.
type Literal struct{ Value value.Value }

// VarRef resolves a name against the compile-time vars map (built from
// VarDefs), per spec.md §4.4. A name not bound there (a subscription
// field or a PDP variable) is looked up at evaluation time in
// EvalCtx.Vars and yields Undefined when absent.
type VarRef struct{ Name string }

// Field is attribute/member access: Target.Key (or Target["Key"]).
// Undefined propagates through a missing field without erroring.
type Field struct {
	Target Node
	Key    string
}

// Index is computed subscript access: Target[Index].
type Index struct {
	Target Node
	Index  Node
}

// Unary is a prefix operator: "-" or "!".
type Unary struct {
	Op      string
	Operand Node
}

// Binary is an arithmetic, comparison, or "in" operator.
// Op is one of: + - * / % < <= > >= == != in
type Binary struct {
	Op          string
	Left, Right Node
}

// Logical is "&&" or "||", with short-circuit evaluation preserved even
// when an operand is streaming (spec.md §4.4).
type Logical struct {
	Op          string // "&&" | "||"
	Left, Right Node
}

// Call invokes a function-broker entry: library.name(args...).
type Call struct {
	FullName string
	Args     []Node
}

// AttributeAccess is `<name>(args)` (environment attribute, Entity nil)
// or `entity.<name>(args)` (Entity set). Always lowers to Stream.
type AttributeAccess struct {
	Entity                 Node // nil for an environment attribute
	Name                   string
	ConfigurationID        string
	Args                   []Node
	Fresh                  bool
	InitialTimeoutSeconds  float64
	PollIntervalSeconds    float64
	BackoffSeconds         float64
	Retries                int
	CloseGracePeriodSeconds float64
}

// RelativeResource is the `@` accessor: the resource value currently
// being rewritten. Only meaningful — and only permitted — inside a
// policy's `transform` expression (spec.md §4.6); the policy compiler
// (C6) rejects it anywhere else as a compile-time error.
type RelativeResource struct{}

// RelativeIndex is the `#` accessor: the index/key of the current
// position within the resource subtree a transform is rewriting. Same
// transform-only restriction as RelativeResource.
type RelativeIndex struct{}

// ArrayLit is an array literal.
type ArrayLit struct{ Elements []Node }

// ObjectLit is an object literal; keys are static (computed-key objects
// are out of scope, matching the teacher's JSON-schema-like config
// shapes rather than a general dynamic-object DSL).
type ObjectLit struct {
	Keys   []string
	Values []Node
}

func (Literal) isNode()         {}
func (VarRef) isNode()          {}
func (Field) isNode()           {}
func (Index) isNode()           {}
func (Unary) isNode()           {}
func (Binary) isNode()          {}
func (Logical) isNode()         {}
func (Call) isNode()            {}
func (AttributeAccess) isNode() {}
func (ArrayLit) isNode()         {}
func (ObjectLit) isNode()        {}
func (RelativeResource) isNode() {}
func (RelativeIndex) isNode()    {}

// reservedRelativeVar names the compile-time vars-map slots
// RelativeResource/RelativeIndex resolve through; the policy compiler
// (C6) binds them with WithVar only while compiling a transform.
const (
	reservedRelativeResourceVar = "@"
	reservedRelativeIndexVar    = "#"
)
