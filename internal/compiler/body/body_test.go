package body

import (
	"context"
	"testing"
	"time"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func newTestCompiler(t *testing.T) (*expr.Compiler, *attribute.Registry) {
	t.Helper()
	funcs := function.NewBroker()
	function.RegisterAll(funcs)
	reg := attribute.NewRegistry()
	attrs := attribute.NewBroker(reg)
	c, err := expr.NewCompiler(funcs, attrs, "test-config")
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	return c, reg
}

func TestPureOnlyBodyHasConstTrueStreamingSection(t *testing.T) {
	c, _ := newTestCompiler(t)
	stmts := []Statement{
		Condition{Expr: expr.Binary{Op: ">", Left: expr.VarRef{Name: "age"}, Right: expr.Literal{Value: value.NewNumberInt(18)}}},
	}
	cb, err := Compile(stmts, c)
	if err != nil {
		t.Fatal(err)
	}
	if cb.StreamingSection.Stratum() != expr.Const {
		t.Fatalf("expected Const streaming section for a body with no stream statement, got %v", cb.StreamingSection.Stratum())
	}
	if !value.Equals(cb.StreamingSection.Eval(nil), value.True) {
		t.Fatalf("expected streaming section identity True, got %v", cb.StreamingSection.Eval(nil))
	}

	ec := &expr.EvalCtx{Vars: map[string]value.Value{"age": value.NewNumberInt(21)}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := cb.Subscribe(ctx, ec)
	defer sub.Cancel()
	select {
	case tv := <-sub.C():
		if !value.Equals(tv.Value, value.True) {
			t.Fatalf("got %v", tv.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestVarDefRedefinitionIsCompileError(t *testing.T) {
	c, _ := newTestCompiler(t)
	stmts := []Statement{
		VarDef{Name: "x", Expr: expr.Literal{Value: value.NewNumberInt(1)}},
		VarDef{Name: "x", Expr: expr.Literal{Value: value.NewNumberInt(2)}},
	}
	if _, err := Compile(stmts, c); err == nil {
		t.Fatal("expected redefinition error")
	}
}

func TestVarDefFoldsIntoLaterStatements(t *testing.T) {
	c, _ := newTestCompiler(t)
	stmts := []Statement{
		VarDef{Name: "threshold", Expr: expr.Literal{Value: value.NewNumberInt(18)}},
		Condition{Expr: expr.Binary{Op: ">", Left: expr.VarRef{Name: "age"}, Right: expr.VarRef{Name: "threshold"}}},
	}
	cb, err := Compile(stmts, c)
	if err != nil {
		t.Fatal(err)
	}
	ec := &expr.EvalCtx{Vars: map[string]value.Value{"age": value.NewNumberInt(21)}}
	if got := cb.IsApplicable.Eval(ec); !value.Equals(got, value.True) {
		t.Fatalf("got %v", got)
	}
}

func TestStreamConditionStartsSuffixAndDrawsLaterStatementsIntoIt(t *testing.T) {
	c, reg := newTestCompiler(t)
	reg.Register("sensor.active", func(ctx context.Context, inv attribute.Invocation) *reactive.Flux[value.Value] {
		f := reactive.New[value.Value](nil)
		f.Emit(value.True)
		return f
	})
	stmts := []Statement{
		Condition{Expr: expr.Binary{Op: ">", Left: expr.VarRef{Name: "age"}, Right: expr.Literal{Value: value.NewNumberInt(18)}}},
		Condition{Expr: expr.AttributeAccess{Name: "sensor.active"}},
		Condition{Expr: expr.Literal{Value: value.True}},
	}
	cb, err := Compile(stmts, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(cb.pureOutcomes) != 1 {
		t.Fatalf("expected exactly one pure-prefix condition, got %d", len(cb.pureOutcomes))
	}
	if cb.StreamingSection.Stratum() != expr.Stream {
		t.Fatalf("expected Stream streaming section, got %v", cb.StreamingSection.Stratum())
	}

	ec := &expr.EvalCtx{Vars: map[string]value.Value{"age": value.NewNumberInt(21)}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := cb.Subscribe(ctx, ec)
	defer sub.Cancel()
	select {
	case tv := <-sub.C():
		if !value.Equals(tv.Value, value.True) {
			t.Fatalf("got %v", tv.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestCoverageReportsOnlyEvaluatedConditions(t *testing.T) {
	c, _ := newTestCompiler(t)
	stmts := []Statement{
		Condition{Expr: expr.Literal{Value: value.False}},
		// Would error if evaluated; short-circuit must stop the pure prefix
		// before reaching it.
		Condition{Expr: expr.Binary{Op: "==", Left: expr.Binary{Op: "/", Left: expr.Literal{Value: value.NewNumberInt(1)}, Right: expr.Literal{Value: value.NewNumberInt(0)}}, Right: expr.Literal{Value: value.One}}},
	}
	cb, err := Compile(stmts, c)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ec := &expr.EvalCtx{Vars: map[string]value.Value{}}
	cov := cb.CoverageSubscribe(ctx, ec)
	sub := cov.Subscribe()
	defer sub.Cancel()
	select {
	case emission := <-sub.C():
		if !value.Equals(emission.Value.Value, value.False) {
			t.Fatalf("got %v", emission.Value.Value)
		}
		if len(emission.Outcomes) != 1 {
			t.Fatalf("expected exactly one evaluated condition, got %d", len(emission.Outcomes))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
