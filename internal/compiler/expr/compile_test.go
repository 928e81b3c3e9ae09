package expr

import (
	"context"
	"testing"
	"time"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func newTestCompiler(t *testing.T) (*Compiler, *attribute.Registry) {
	t.Helper()
	funcs := function.NewBroker()
	function.RegisterAll(funcs)
	reg := attribute.NewRegistry()
	attrs := attribute.NewBroker(reg)
	c, err := NewCompiler(funcs, attrs, "test-config")
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	return c, reg
}

func TestConstantFoldsArithmetic(t *testing.T) {
	c, _ := newTestCompiler(t)
	node := Binary{Op: "+", Left: Literal{value.NewNumberInt(2)}, Right: Literal{value.NewNumberInt(3)}}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Const {
		t.Fatalf("expected Const, got %v", compiled.Stratum())
	}
	if !value.Equals(compiled.Eval(nil), value.NewNumberInt(5)) {
		t.Fatalf("got %v", compiled.Eval(nil))
	}
}

func TestVarRefIsPureAndJoinsStratum(t *testing.T) {
	c, _ := newTestCompiler(t)
	node := Binary{Op: ">", Left: VarRef{Name: "age"}, Right: Literal{value.NewNumberInt(18)}}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Pure {
		t.Fatalf("expected Pure, got %v", compiled.Stratum())
	}
	ec := &EvalCtx{Vars: map[string]value.Value{"age": value.NewNumberInt(21)}}
	if got := compiled.Eval(ec); !value.Equals(got, value.True) {
		t.Fatalf("got %v", got)
	}
	ec2 := &EvalCtx{Vars: map[string]value.Value{"age": value.NewNumberInt(10)}}
	if got := compiled.Eval(ec2); !value.Equals(got, value.False) {
		t.Fatalf("got %v", got)
	}
}

func TestFieldAccessPropagatesUndefined(t *testing.T) {
	c, _ := newTestCompiler(t)
	node := Field{Target: VarRef{Name: "subject"}, Key: "missing"}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	ec := &EvalCtx{Vars: map[string]value.Value{"subject": value.Object([2]any{"name", value.Text("alice")})}}
	got := compiled.Eval(ec)
	if !got.IsUndefined() {
		t.Fatalf("expected Undefined, got %v", got)
	}
}

func TestLogicalShortCircuitsConstFalse(t *testing.T) {
	c, _ := newTestCompiler(t)
	// false && (1/0 == 1)  -- the right side would error if evaluated.
	node := Logical{
		Op:   "&&",
		Left: Literal{value.False},
		Right: Binary{Op: "==", Left: Binary{Op: "/", Left: Literal{value.NewNumberInt(1)}, Right: Literal{value.NewNumberInt(0)}}, Right: Literal{value.One}},
	}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Const {
		t.Fatalf("expected Const short-circuit, got %v", compiled.Stratum())
	}
	if !value.Equals(compiled.Eval(nil), value.False) {
		t.Fatalf("got %v", compiled.Eval(nil))
	}
}

func TestLogicalPureShortCircuitAvoidsRightError(t *testing.T) {
	c, _ := newTestCompiler(t)
	node := Logical{
		Op:   "&&",
		Left: VarRef{Name: "allowed"},
		Right: Binary{Op: "/", Left: Literal{value.One}, Right: Literal{value.NewNumberInt(0)}},
	}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	ec := &EvalCtx{Vars: map[string]value.Value{"allowed": value.False}}
	got := compiled.Eval(ec)
	if !value.Equals(got, value.False) {
		t.Fatalf("expected False without evaluating the erroring right operand, got %v", got)
	}
}

func TestCallInvokesFunctionBroker(t *testing.T) {
	c, _ := newTestCompiler(t)
	node := Call{FullName: "strings.startsWith", Args: []Node{Literal{value.Text("hello")}, Literal{value.Text("he")}}}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Const {
		t.Fatalf("expected Const (all-literal call folds), got %v", compiled.Stratum())
	}
	if !value.Equals(compiled.Eval(nil), value.True) {
		t.Fatalf("got %v", compiled.Eval(nil))
	}
}

func TestAttributeAccessIsStreamAndEmits(t *testing.T) {
	c, reg := newTestCompiler(t)
	reg.Register("sensor.temp", func(ctx context.Context, inv attribute.Invocation) *reactive.Flux[value.Value] {
		f := reactive.New[value.Value](nil)
		f.Emit(value.NewNumberInt(72))
		return f
	})
	node := AttributeAccess{Name: "sensor.temp"}
	compiled, err := c.Compile(node)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Stream {
		t.Fatalf("expected Stream, got %v", compiled.Stratum())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ec := &EvalCtx{Vars: map[string]value.Value{}}
	sub := compiled.Subscribe(ctx, ec)
	defer sub.Cancel()
	select {
	case tv := <-sub.C():
		if !value.Equals(tv.Value, value.NewNumberInt(72)) {
			t.Fatalf("got %v", tv.Value)
		}
		if len(tv.Attributes) != 1 || tv.Attributes[0].Name != "sensor.temp" {
			t.Fatalf("expected one attribute trace record, got %v", tv.Attributes)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for attribute emission")
	}
}

func TestArrayAndObjectLiteralsFold(t *testing.T) {
	c, _ := newTestCompiler(t)
	arr := ArrayLit{Elements: []Node{Literal{value.NewNumberInt(1)}, Literal{value.NewNumberInt(2)}}}
	compiled, err := c.Compile(arr)
	if err != nil {
		t.Fatal(err)
	}
	if compiled.Stratum() != Const || compiled.Eval(nil).Len() != 2 {
		t.Fatalf("expected constant 2-element array, got %v", compiled.Eval(nil))
	}

	obj := ObjectLit{Keys: []string{"a"}, Values: []Node{Literal{value.NewNumberInt(1)}}}
	compiledObj, err := c.Compile(obj)
	if err != nil {
		t.Fatal(err)
	}
	if got := compiledObj.Eval(nil).Field("a"); !value.Equals(got, value.NewNumberInt(1)) {
		t.Fatalf("got %v", got)
	}
}
