// Package reactive implements the small hot, multicast, replay-1
// reactive core that spec.md §9 calls for in place of a full
// reactive-streams framework: "implement with a small reactive core
// (observable with replay-1 slot and refcount) rather than pulling in a
// heavy framework". It underlies the attribute broker (C3), the policy
// body's streaming suffix (C5), and the combining engine's child-vote
// aggregation (C7).
package reactive

import (
	"context"
	"sync"
)

// Flux[T] is a hot, multicast source: every subscriber sees emissions
// from the moment it subscribes onward, plus (per "replay-1") the most
// recently emitted value if one exists, so a late subscriber is never
// left waiting on a value that already happened. A Flux never
// terminates with an error; source errors are expected to be emitted
// as values (see attribute.Broker), matching spec.md §7's "the stream
// itself does not terminate abnormally".
type Flux[T any] struct {
	mu       sync.Mutex
	subs     map[int]chan T
	nextID   int
	last     T
	hasLast  bool
	closed   bool
	onClosed func()
}

// New creates an empty Flux. onClosed, if non-nil, is invoked exactly
// once when the Flux is closed (refcount reaches zero); it is the hook
// the attribute broker uses to tear down the underlying source.
func New[T any](onClosed func()) *Flux[T] {
	return &Flux[T]{
		subs:     make(map[int]chan T),
		onClosed: onClosed,
	}
}

// Subscription is a live view onto a Flux. Values arrive on C(). Cancel
// must be called exactly once when the subscriber is done; it decrements
// the Flux's refcount.
type Subscription[T any] struct {
	f    *Flux[T]
	id   int
	ch   chan T
	once sync.Once
}

// C returns the channel on which emissions arrive. It is closed when the
// Flux itself is closed.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel unsubscribes. Safe to call more than once or concurrently with
// delivery.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.f.unsubscribe(s.id)
	})
}

// Subscribe registers a new subscriber. If the Flux already has a last
// emitted value, it is replayed immediately (buffered in the channel)
// before any new emissions, implementing "replay last... to late
// subscribers" from spec.md §4.3.
func (f *Flux[T]) Subscribe() *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	// Buffered by 1 so the replayed last value (if any) never blocks
	// delivery even if the subscriber hasn't started reading yet.
	ch := make(chan T, 1)
	if f.hasLast {
		ch <- f.last
	}
	if f.closed {
		close(ch)
		return &Subscription[T]{f: f, id: id, ch: ch}
	}
	f.subs[id] = ch
	return &Subscription[T]{f: f, id: id, ch: ch}
}

func (f *Flux[T]) unsubscribe(id int) {
	f.mu.Lock()
	ch, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	shouldClose := len(f.subs) == 0 && !f.closed
	var onClosed func()
	if shouldClose {
		f.closed = true
		onClosed = f.onClosed
	}
	f.mu.Unlock()
	if ok {
		close(ch)
	}
	if onClosed != nil {
		onClosed()
	}
}

// Emit delivers value to every current subscriber and records it as the
// replay slot. Delivery to a slow subscriber never blocks Emit longer
// than necessary: each subscriber channel is buffered 1 deep and Emit
// drains a stale buffered value before pushing the new one, so a
// subscriber that hasn't drained yet simply loses the superseded
// intermediate value rather than stalling the publisher — the
// "latest wins" discipline spec.md §5 requires of the combining engine
// applies transitively to every Flux in the system.
func (f *Flux[T]) Emit(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = v
	f.hasLast = true
	for _, ch := range f.subs {
		select {
		case ch <- v:
		default:
			// Drain the stale value and push the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// RefCount returns the current number of live subscribers.
func (f *Flux[T]) RefCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close forcibly closes the Flux regardless of refcount, used when a
// parent subscription is cancelled and must tear down every descendant
// Flux it opened (spec.md §8 property 8, cancellation correctness).
func (f *Flux[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	onClosed := f.onClosed
	f.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
	if onClosed != nil {
		onClosed()
	}
}

// Map returns a new Flux that transforms every emission of f through fn.
// The child Flux closes when ctx is cancelled or f closes.
func Map[T, U any](ctx context.Context, f *Flux[T], fn func(T) U) *Flux[U] {
	out := New[U](nil)
	sub := f.Subscribe()
	go func() {
		defer out.Close()
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				out.Emit(fn(v))
			}
		}
	}()
	return out
}
