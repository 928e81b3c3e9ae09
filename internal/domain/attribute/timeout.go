package attribute

import (
	"time"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// watchInitialTimeout emits a single Error("timeout") value onto flux if
// no value has arrived from the source within inv.InitialTimeout. It
// does not stop watching afterward for any other reason than seeing the
// first real value: the source keeps running, and whatever it emits
// later (success or its own error) simply supersedes the timeout value
// in flux's replay slot, per spec.md §4.3.
func watchInitialTimeout(flux *reactive.Flux[value.Value], inv Invocation) {
	if inv.InitialTimeout <= 0 {
		return
	}

	sub := flux.Subscribe()
	timer := time.NewTimer(inv.InitialTimeout)

	go func() {
		defer sub.Cancel()
		select {
		case _, ok := <-sub.C():
			timer.Stop()
			if !ok {
				return
			}
			// A value (possibly itself the replayed timeout emission from a
			// sibling watcher, or a genuine first value) already arrived;
			// nothing to do.
		case <-timer.C:
			flux.Emit(value.Error("timeout", nil))
		}
	}()
}
