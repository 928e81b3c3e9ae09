package attribute

import (
	"context"
	"sync"
	"time"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// SourceFactory opens a live attribute source for one Invocation,
// pushing values onto the returned Flux for as long as ctx is not
// cancelled. A factory that fails synchronously should still return a
// Flux and instead emit an Error value into it, keeping the
// "total, error-as-value" discipline consistent between in-expression
// errors and attribute errors (spec.md §7).
type SourceFactory func(ctx context.Context, inv Invocation) *reactive.Flux[value.Value]

// Registry maps attribute names to the factory that serves them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SourceFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SourceFactory)}
}

// Register binds name to factory. Re-registering a name overwrites the
// previous binding.
func (r *Registry) Register(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

func (r *Registry) lookup(name string) (SourceFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// sharedSource is one live, fingerprint-shared attribute subscription.
// keepAlive holds a permanent subscription open on flux so that real
// subscribers coming and going never trip the Flux's own
// close-on-last-unsubscribe behavior; broker-level refCount and
// graceTimer decide independently when the source is actually torn
// down, per spec.md §5's "closes only when its refcount hits zero,
// after a configurable grace period".
type sharedSource struct {
	flux      *reactive.Flux[value.Value]
	keepAlive *reactive.Subscription[value.Value]
	cancel    context.CancelFunc

	refCount    int
	gracePeriod time.Duration
	graceTimer  *time.Timer
}

// Broker caches live sources by fingerprint and multiplexes subscribers
// onto them, per spec.md §4.3/§9 ("per-fingerprint attribute sharing").
type Broker struct {
	registry *Registry

	mu     sync.Mutex
	shared map[uint64]*sharedSource

	defaultGracePeriod time.Duration
}

// BrokerOption configures optional Broker behaviour.
type BrokerOption func(*Broker)

// WithDefaultGracePeriod sets the teardown grace period applied to a
// shared source whose Invocation leaves CloseGracePeriod unset (zero),
// per spec.md §9's "grace-period behaviour... document it as a
// configuration knob": a policy that never sets CloseGracePeriod still
// gets the PDP-wide default instead of always tearing down immediately.
func WithDefaultGracePeriod(d time.Duration) BrokerOption {
	return func(b *Broker) { b.defaultGracePeriod = d }
}

// NewBroker constructs a Broker backed by registry.
func NewBroker(registry *Registry, opts ...BrokerOption) *Broker {
	b := &Broker{
		registry: registry,
		shared:   make(map[uint64]*sharedSource),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// gracePeriodFor resolves the effective grace period for inv, falling
// back to the broker-wide default when inv itself leaves it unset.
func (b *Broker) gracePeriodFor(inv Invocation) time.Duration {
	if inv.CloseGracePeriod > 0 {
		return inv.CloseGracePeriod
	}
	return b.defaultGracePeriod
}

// Handle is a subscriber's view onto an open attribute invocation.
type Handle struct {
	sub     *reactive.Subscription[value.Value]
	release func()
	once    sync.Once
}

// Values returns the channel of emitted Values (including Error values
// emitted in place of a terminal failure; see spec.md §4.3).
func (h *Handle) Values() <-chan value.Value { return h.sub.C() }

// Close releases this subscriber's interest in the underlying source.
// Safe to call more than once.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.sub.Cancel()
		if h.release != nil {
			h.release()
		}
	})
}

// Open returns a Handle for inv, sharing an existing live source when
// inv's fingerprint matches one already open (unless inv.Fresh), or
// opening a new one via the registered factory otherwise. At most one
// concurrent source is opened per fingerprint, guarded by b.mu across
// the check-then-create window.
func (b *Broker) Open(inv Invocation) *Handle {
	factory, ok := b.registry.lookup(inv.AttributeName)
	if !ok {
		// No registered source: emit a single Error value so that policy
		// evaluation over an unregistered attribute degrades to
		// INDETERMINATE the same way any other evaluation error does,
		// rather than the broker failing the whole subscription.
		f := reactive.New[value.Value](nil)
		f.Emit(value.Errorf("unknown attribute %q", inv.AttributeName))
		return &Handle{sub: f.Subscribe()}
	}

	if inv.Fresh {
		return b.openDedicated(inv, factory)
	}

	fp := inv.Fingerprint()

	b.mu.Lock()
	if s, exists := b.shared[fp]; exists {
		s.refCount++
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		b.mu.Unlock()
		return &Handle{sub: s.flux.Subscribe(), release: func() { b.release(fp) }}
	}

	sourceCtx, cancel := context.WithCancel(context.Background())
	flux := factory(sourceCtx, inv)
	entry := &sharedSource{
		flux:        flux,
		keepAlive:   flux.Subscribe(),
		cancel:      cancel,
		refCount:    1,
		gracePeriod: b.gracePeriodFor(inv),
	}
	b.shared[fp] = entry
	b.mu.Unlock()

	watchInitialTimeout(flux, inv)

	return &Handle{sub: flux.Subscribe(), release: func() { b.release(fp) }}
}

func (b *Broker) openDedicated(inv Invocation, factory SourceFactory) *Handle {
	sourceCtx, cancel := context.WithCancel(context.Background())
	flux := factory(sourceCtx, inv)
	watchInitialTimeout(flux, inv)
	sub := flux.Subscribe()
	var once sync.Once
	return &Handle{sub: sub, release: func() { once.Do(func() { flux.Close(); cancel() }) }}
}

// release decrements the shared entry's refcount and, once it reaches
// zero, arms the grace-period timer that eventually tears the source
// down. Arriving subscribers before the timer fires cancel it (see
// Open), matching spec.md §5's teardown contract.
func (b *Broker) release(fp uint64) {
	b.mu.Lock()
	s, exists := b.shared[fp]
	if !exists {
		b.mu.Unlock()
		return
	}
	s.refCount--
	if s.refCount > 0 {
		b.mu.Unlock()
		return
	}
	teardown := func() {
		b.mu.Lock()
		if cur, ok := b.shared[fp]; ok && cur == s && s.refCount <= 0 {
			delete(b.shared, fp)
		}
		b.mu.Unlock()
		s.keepAlive.Cancel()
		s.cancel()
	}
	if s.gracePeriod <= 0 {
		b.mu.Unlock()
		teardown()
		return
	}
	s.graceTimer = time.AfterFunc(s.gracePeriod, teardown)
	b.mu.Unlock()
}

// OpenCount reports the number of distinct fingerprints with a live
// source, for diagnostics and tests.
func (b *Broker) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shared)
}
