package function

import (
	"testing"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func newTestBroker() *Broker {
	b := NewBroker()
	RegisterAll(b)
	return b
}

func TestInvokeArityMismatch(t *testing.T) {
	b := newTestBroker()
	result := b.Invoke("strings.startsWith", []value.Value{value.Text("a")})
	if !result.IsError() {
		t.Fatalf("expected arity error, got %v", result)
	}
}

func TestInvokeUnknownFunction(t *testing.T) {
	b := newTestBroker()
	result := b.Invoke("nope.nope", nil)
	if !result.IsError() {
		t.Fatalf("expected error for unknown function")
	}
}

func TestInvokeErrorArgumentShortCircuits(t *testing.T) {
	b := newTestBroker()
	errArg := value.Errorf("boom")
	result := b.Invoke("strings.startsWith", []value.Value{errArg, value.Text("a")})
	if !result.IsError() || result.ErrorMessage() != "boom" {
		t.Fatalf("expected original error to propagate untouched, got %v", result)
	}
}

func TestStringsLibrary(t *testing.T) {
	b := newTestBroker()
	cases := []struct {
		fn   string
		args []value.Value
		want value.Value
	}{
		{"strings.startsWith", []value.Value{value.Text("hello"), value.Text("he")}, value.True},
		{"strings.endsWith", []value.Value{value.Text("hello"), value.Text("lo")}, value.True},
		{"strings.contains", []value.Value{value.Text("hello"), value.Text("ell")}, value.True},
		{"strings.length", []value.Value{value.Text("hello")}, value.NewNumberInt(5)},
		{"strings.toUpperCase", []value.Value{value.Text("hi")}, value.Text("HI")},
	}
	for _, c := range cases {
		got := b.Invoke(c.fn, c.args)
		if !value.Equals(got, c.want) {
			t.Errorf("%s(%v) = %v, want %v", c.fn, c.args, got, c.want)
		}
	}
}

func TestBitwiseLibrary(t *testing.T) {
	b := newTestBroker()
	got := b.Invoke("bitwise.and", []value.Value{value.NewNumberInt(6), value.NewNumberInt(3)})
	if !value.Equals(got, value.NewNumberInt(2)) {
		t.Fatalf("6 & 3 = %v, want 2", got)
	}
}

func TestNetLibrary(t *testing.T) {
	b := newTestBroker()
	got := b.Invoke("net.cidrContains", []value.Value{value.Text("10.0.0.5"), value.Text("10.0.0.0/8")})
	if !got.Bool() {
		t.Fatalf("expected 10.0.0.5 in 10.0.0.0/8")
	}
	got = b.Invoke("net.cidrContains", []value.Value{value.Text("11.0.0.5"), value.Text("10.0.0.0/8")})
	if got.Bool() {
		t.Fatalf("expected 11.0.0.5 not in 10.0.0.0/8")
	}
}

func TestHashLibrary(t *testing.T) {
	b := newTestBroker()
	got := b.Invoke("hash.sha256", []value.Value{value.Text("abc")})
	want := value.Text("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	if !value.Equals(got, want) {
		t.Fatalf("hash.sha256(abc) = %v, want %v", got, want)
	}
}
