package reactive

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReplayLastToLateSubscriber(t *testing.T) {
	f := New[int](nil)
	f.Emit(1)
	f.Emit(2)

	sub := f.Subscribe()
	defer sub.Cancel()

	select {
	case v := <-sub.C():
		if v != 2 {
			t.Fatalf("expected replay of last value 2, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	f := New[int](nil)
	a := f.Subscribe()
	b := f.Subscribe()
	defer a.Cancel()
	defer b.Cancel()

	f.Emit(42)

	for _, sub := range []*Subscription[int]{a, b} {
		select {
		case v := <-sub.C():
			if v != 42 {
				t.Fatalf("expected 42, got %d", v)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for emission")
		}
	}
}

func TestCloseOnLastUnsubscribe(t *testing.T) {
	closed := make(chan struct{})
	f := New[int](func() { close(closed) })
	sub := f.Subscribe()
	sub.Cancel()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("onClosed was not called after last unsubscribe")
	}
}

func TestCloseNotCalledWhileRefsRemain(t *testing.T) {
	called := false
	f := New[int](func() { called = true })
	a := f.Subscribe()
	b := f.Subscribe()
	a.Cancel()
	if called {
		t.Fatal("onClosed called while a subscriber remains")
	}
	b.Cancel()
	if !called {
		t.Fatal("onClosed should fire once refcount reaches zero")
	}
}

func TestMapTransformsAndClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := New[int](nil)
	mapped := Map(ctx, src, func(v int) int { return v * 2 })

	sub := mapped.Subscribe()
	src.Emit(3)

	select {
	case v := <-sub.C():
		if v != 6 {
			t.Fatalf("expected 6, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mapped value")
	}

	cancel()
	sub.Cancel()
	src.Close()
}
