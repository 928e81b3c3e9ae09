// Package policy implements the policy compiler (C6): it composes a
// compiled body (C5) with obligation/advice/transform compilation into
// a Voter at the minimal stratum the classification matrix allows.
package policy

import (
	"github.com/heutelbeck/sapl-go/internal/compiler/body"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	domainpolicy "github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Compile lowers one Policy AST into a Voter. A policy that fails to
// compile (redefinition, forbidden relative accessor) never returns an
// error — per spec.md §4.4, it lowers to a StaticVote(INDETERMINATE)
// carrying the compile errors, so one broken policy never prevents the
// rest of a configuration from loading. A reference to a name that no
// VarDef binds is not a compile error: it is looked up at evaluation
// time and yields Undefined when the name is absent there too.
func Compile(pol *domainpolicy.Policy, compiler *expr.Compiler) *domainpolicy.Voter {
	if err := checkNoStrayRelativeAccessors(pol); err != nil {
		return staticIndeterminate(pol, err)
	}

	cb, err := body.Compile(pol.Body, compiler)
	if err != nil {
		return staticIndeterminate(pol, err)
	}

	obligations, err := compileAll(compiler, pol.Constraints.Obligations)
	if err != nil {
		return staticIndeterminate(pol, err)
	}
	advice, err := compileAll(compiler, pol.Constraints.Advice)
	if err != nil {
		return staticIndeterminate(pol, err)
	}

	var transform *expr.Compiled
	if pol.Constraints.Transform != nil {
		transformScope := bindRelativeAccessors(compiler)
		transform, err = transformScope.Compile(pol.Constraints.Transform)
		if err != nil {
			return staticIndeterminate(pol, err)
		}
	}

	bodyStratum := joinStratumOf(cb.IsApplicable.Stratum(), cb.StreamingSection.Stratum())
	worst := bodyStratum
	for _, o := range obligations {
		worst = joinStratumOf(worst, o.Stratum())
	}
	for _, a := range advice {
		worst = joinStratumOf(worst, a.Stratum())
	}
	if transform != nil {
		worst = joinStratumOf(worst, transform.Stratum())
	}

	c := &compiledPolicy{pol: pol, cb: cb, obligations: obligations, advice: advice, transform: transform}

	switch worst {
	case expr.Const:
		return domainpolicy.NewStaticVoter(c.evalSync(nil))
	case expr.Pure:
		return domainpolicy.NewPureVoter(func(ec *domainpolicy.EvaluationContext) domainpolicy.Vote {
			return c.evalSync(ec.Eval)
		})
	default:
		return domainpolicy.NewStreamVoter(c.subscribeStream)
	}
}

// bindRelativeAccessors returns a Compiler whose scope additionally
// binds `@` to the resource subscription value and `#` to Undefined —
// the only place these are permitted to resolve, per spec.md §4.6.
func bindRelativeAccessors(compiler *expr.Compiler) *expr.Compiler {
	resource, err := compiler.Compile(expr.VarRef{Name: "resource"})
	if err != nil {
		resource = expr.ConstCompiled(value.Undefined)
	}
	return compiler.WithVar("@", resource).WithVar("#", expr.ConstCompiled(value.Undefined))
}

func joinStratumOf(a, b expr.Stratum) expr.Stratum {
	if a > b {
		return a
	}
	return b
}

func compileAll(compiler *expr.Compiler, nodes []expr.Node) ([]*expr.Compiled, error) {
	out := make([]*expr.Compiled, len(nodes))
	for i, n := range nodes {
		c, err := compiler.Compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func checkNoStrayRelativeAccessors(pol *domainpolicy.Policy) error {
	check := func(n expr.Node) error {
		if expr.ContainsRelativeAccessor(n) {
			return errStrayRelativeAccessor
		}
		return nil
	}
	for _, stmt := range pol.Body {
		switch s := stmt.(type) {
		case body.VarDef:
			if err := check(s.Expr); err != nil {
				return err
			}
		case body.Condition:
			if err := check(s.Expr); err != nil {
				return err
			}
		}
	}
	for _, o := range pol.Constraints.Obligations {
		if err := check(o); err != nil {
			return err
		}
	}
	for _, a := range pol.Constraints.Advice {
		if err := check(a); err != nil {
			return err
		}
	}
	return nil
}

func staticIndeterminate(pol *domainpolicy.Policy, err error) *domainpolicy.Voter {
	v := domainpolicy.Vote{
		Decision:   domainpolicy.Indeterminate(),
		VoterName:  pol.Name,
		Errors:     []value.Value{value.Error(err.Error(), &pol.SourceLocation)},
	}
	return domainpolicy.NewStaticVoter(v)
}

// compiledPolicy holds one policy's compiled pieces, shared by the
// synchronous (Const/Pure) and streaming evaluation paths.
type compiledPolicy struct {
	pol         *domainpolicy.Policy
	cb          *body.CompiledBody
	obligations []*expr.Compiled
	advice      []*expr.Compiled
	transform   *expr.Compiled
}

// evalSync evaluates the whole policy synchronously: applicable only
// when Const/Pure, so cb's streaming section is always Const(True) here.
func (c *compiledPolicy) evalSync(ec *expr.EvalCtx) domainpolicy.Vote {
	bodyResult := c.cb.IsApplicable.Eval(ec)
	if bodyResult.IsError() {
		return c.compose(bodyResult, nil, nil, value.Undefined, nil)
	}
	truthy := value.Truthy(bodyResult)
	if truthy.IsError() {
		return c.compose(truthy, nil, nil, value.Undefined, nil)
	}
	if !truthy.Bool() {
		return c.compose(value.False, nil, nil, value.Undefined, nil)
	}

	obligationVals := evalCompiledList(c.obligations, ec)
	adviceVals := evalCompiledList(c.advice, ec)
	transformVal := value.Undefined
	if c.transform != nil {
		transformVal = c.transform.Eval(ec)
	}
	return c.compose(value.True, obligationVals, adviceVals, transformVal, nil)
}

func evalCompiledList(list []*expr.Compiled, ec *expr.EvalCtx) []value.Value {
	vals := make([]value.Value, len(list))
	for i, c := range list {
		vals[i] = c.Eval(ec)
	}
	return vals
}

// compose applies the entitlement mapping (spec.md §4.6) and the
// obligation/transform error-propagation rules to produce one Vote.
func (c *compiledPolicy) compose(bodyResult value.Value, obligationVals, adviceVals []value.Value, transformVal value.Value, attrs []expr.AttributeRecord) domainpolicy.Vote {
	name := c.pol.Name
	base := domainpolicy.Vote{VoterName: name, Attributes: attrs}

	if bodyResult.IsError() {
		base.Decision = domainpolicy.Indeterminate()
		base.Errors = []value.Value{bodyResult}
		return base
	}
	if !bodyResult.Bool() {
		base.Decision = domainpolicy.NotApplicable()
		return base
	}

	decision := domainpolicy.Decision(c.pol.Entitlement)
	var errs []value.Value
	for _, v := range obligationVals {
		if v.IsError() {
			errs = append(errs, v)
		}
	}
	var resource value.Value = value.Undefined
	if c.transform != nil {
		if transformVal.IsError() {
			errs = append(errs, transformVal)
		} else {
			resource = transformVal
		}
	}
	if len(errs) > 0 {
		base.Decision = domainpolicy.Indeterminate()
		base.Errors = errs
		return base
	}

	base.Decision = domainpolicy.AuthorizationDecision{
		Decision:    decision,
		Obligations: obligationVals,
		Advice:      adviceVals,
		Resource:    resource,
	}
	return base
}

var errStrayRelativeAccessor = errRelativeAccessor{}

type errRelativeAccessor struct{}

func (errRelativeAccessor) Error() string {
	return "relative accessor @/# is only permitted inside a transform expression"
}
