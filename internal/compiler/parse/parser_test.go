package parse

import (
	"testing"

	"github.com/heutelbeck/sapl-go/internal/compiler/body"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

func TestParseSimplePermitPolicy(t *testing.T) {
	doc, err := ParseDocument("t", `policy "allow read" permit where subject.role == "admin";`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol, ok := doc.(*policy.Policy)
	if !ok {
		t.Fatalf("expected *policy.Policy, got %T", doc)
	}
	if pol.Name != "allow read" || pol.Entitlement != policy.Permit {
		t.Fatalf("got %+v", pol)
	}
	if len(pol.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(pol.Body))
	}
	cond, ok := pol.Body[0].(body.Condition)
	if !ok {
		t.Fatalf("expected Condition, got %T", pol.Body[0])
	}
	bin, ok := cond.Expr.(expr.Binary)
	if !ok || bin.Op != "==" {
		t.Fatalf("got %+v", cond.Expr)
	}
}

func TestParsePolicyWithVarAndObligation(t *testing.T) {
	src := `policy p permit where var x = resource.owner; x == subject.id; obligation {"type": "log"}`
	doc, err := ParseDocument("t", src)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	if len(pol.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(pol.Body))
	}
	if _, ok := pol.Body[0].(body.VarDef); !ok {
		t.Fatalf("expected VarDef first, got %T", pol.Body[0])
	}
	if len(pol.Constraints.Obligations) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(pol.Constraints.Obligations))
	}
	if _, ok := pol.Constraints.Obligations[0].(expr.ObjectLit); !ok {
		t.Fatalf("expected ObjectLit obligation, got %T", pol.Constraints.Obligations[0])
	}
}

func TestParseQualifiedFunctionCall(t *testing.T) {
	doc, err := ParseDocument("t", `policy p deny where time.now() > 0;`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	bin := pol.Body[0].(body.Condition).Expr.(expr.Binary)
	call, ok := bin.Left.(expr.Call)
	if !ok || call.FullName != "time.now" {
		t.Fatalf("got %+v", bin.Left)
	}
}

func TestParseEnvironmentAttributeAccess(t *testing.T) {
	doc, err := ParseDocument("t", `policy p permit where <sensor.online>;`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	attr, ok := pol.Body[0].(body.Condition).Expr.(expr.AttributeAccess)
	if !ok || attr.Entity != nil || attr.Name != "sensor.online" {
		t.Fatalf("got %+v", pol.Body[0])
	}
}

func TestParseEntityAttributeAccess(t *testing.T) {
	doc, err := ParseDocument("t", `policy p permit where subject.<risk.score(resource)> > 5;`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	bin := pol.Body[0].(body.Condition).Expr.(expr.Binary)
	attr, ok := bin.Left.(expr.AttributeAccess)
	if !ok || attr.Name != "risk.score" {
		t.Fatalf("got %+v", bin.Left)
	}
	if _, ok := attr.Entity.(expr.VarRef); !ok {
		t.Fatalf("expected Entity VarRef, got %+v", attr.Entity)
	}
	if len(attr.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(attr.Args))
	}
}

func TestParseFieldAndIndexChain(t *testing.T) {
	doc, err := ParseDocument("t", `policy p permit where resource.tags[0] == "public";`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	bin := pol.Body[0].(body.Condition).Expr.(expr.Binary)
	idx, ok := bin.Left.(expr.Index)
	if !ok {
		t.Fatalf("expected Index, got %T", bin.Left)
	}
	field, ok := idx.Target.(expr.Field)
	if !ok || field.Key != "tags" {
		t.Fatalf("got %+v", idx.Target)
	}
}

func TestParsePolicySetCombinesNestedPolicies(t *testing.T) {
	src := `set "root" (deny-overrides)
policy "a" permit where true;
policy "b" deny where false;`
	doc, err := ParseDocument("t", src)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	set, ok := doc.(*policy.PolicySet)
	if !ok {
		t.Fatalf("expected *policy.PolicySet, got %T", doc)
	}
	if set.Algorithm.Mode != policy.PriorityDeny {
		t.Fatalf("got algorithm %+v", set.Algorithm)
	}
	if len(set.Policies) != 2 {
		t.Fatalf("expected 2 nested policies, got %d", len(set.Policies))
	}
}

func TestParseRejectsUnknownAlgorithm(t *testing.T) {
	_, err := ParseDocument("t", `set s (bogus-algorithm) policy p permit;`)
	if err == nil {
		t.Fatal("expected an error for an unknown combining algorithm")
	}
}

func TestParseRelativeAccessorsInTransform(t *testing.T) {
	doc, err := ParseDocument("t", `policy p permit transform {"id": @.id, "n": #}`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	pol := doc.(*policy.Policy)
	obj, ok := pol.Constraints.Transform.(expr.ObjectLit)
	if !ok {
		t.Fatalf("expected ObjectLit transform, got %T", pol.Constraints.Transform)
	}
	if _, ok := obj.Values[0].(expr.Field); !ok {
		t.Fatalf("expected Field over RelativeResource, got %+v", obj.Values[0])
	}
	if _, ok := obj.Values[1].(expr.RelativeIndex); !ok {
		t.Fatalf("expected RelativeIndex, got %+v", obj.Values[1])
	}
}
