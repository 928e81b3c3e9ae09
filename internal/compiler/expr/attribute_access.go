package expr

import (
	"context"
	"time"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// compileAttributeAccess lowers `<name>(args)` / `entity.<name>(args)` to
// Stream, per spec.md §4.4. entity and args are themselves compiled
// first: if any is Stream, the whole attribute call re-subscribes
// whenever the combined input vector changes.
func (c *Compiler) compileAttributeAccess(n AttributeAccess) (*Compiled, error) {
	entity := constCompiled(value.Undefined)
	if n.Entity != nil {
		compiled, err := c.Compile(n.Entity)
		if err != nil {
			return nil, err
		}
		entity = compiled
	}
	args := make([]*Compiled, len(n.Args))
	for i, a := range n.Args {
		compiled, err := c.Compile(a)
		if err != nil {
			return nil, err
		}
		args[i] = compiled
	}
	broker := c.attrs
	inputs := append([]*Compiled{entity}, args...)
	isEnvironment := n.Entity == nil
	configID := n.ConfigurationID
	if configID == "" {
		configID = c.ConfigurationID
	}

	return &Compiled{stratum: Stream, evalStream: func(ctx context.Context, ec *EvalCtx) *reactive.Flux[TracedValue] {
		return attributeFlux(ctx, ec, broker, n, isEnvironment, configID, inputs)
	}}, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// attributeFlux watches the entity+argument input vector and keeps
// exactly one live attribute subscription open against the broker at a
// time, reopening it (and closing the previous one) whenever the input
// vector changes, per spec.md §4.4's "re-subscribes when arguments
// change".
func attributeFlux(ctx context.Context, ec *EvalCtx, broker *attribute.Broker, n AttributeAccess, isEnvironment bool, configID string, inputs []*Compiled) *reactive.Flux[TracedValue] {
	out := reactive.New[TracedValue](nil)

	go func() {
		defer out.Close()

		numInputs := len(inputs)
		subs := make([]*reactive.Subscription[TracedValue], numInputs)
		for i, in := range inputs {
			subs[i] = in.Subscribe(ctx, ec)
		}
		defer func() {
			for _, s := range subs {
				s.Cancel()
			}
		}()

		type update struct {
			idx int
			tv  TracedValue
		}
		updates := make(chan update, numInputs)
		for i := range subs {
			go func(i int) {
				sub := subs[i]
				for {
					select {
					case tv, ok := <-sub.C():
						if !ok {
							return
						}
						select {
						case updates <- update{i, tv}:
						case <-ctx.Done():
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}(i)
		}

		latest := make([]value.Value, numInputs)
		have := make([]bool, numInputs)
		haveAll := false

		var curHandle *attribute.Handle
		var curCancel context.CancelFunc
		closeCurrent := func() {
			if curCancel != nil {
				curCancel()
				curCancel = nil
			}
			if curHandle != nil {
				curHandle.Close()
				curHandle = nil
			}
		}
		defer closeCurrent()

		reopen := func() {
			closeCurrent()
			entity := latest[0]
			args := append([]value.Value(nil), latest[1:]...)
			inv := attribute.Invocation{
				AttributeName:          n.Name,
				ConfigurationID:        configID,
				IsEnvironmentAttribute: isEnvironment,
				Entity:                 entity,
				Arguments:              args,
				Fresh:                  n.Fresh,
				InitialTimeout:         secondsToDuration(n.InitialTimeoutSeconds),
				PollInterval:           secondsToDuration(n.PollIntervalSeconds),
				Backoff:                secondsToDuration(n.BackoffSeconds),
				Retries:                n.Retries,
				CloseGracePeriod:       secondsToDuration(n.CloseGracePeriodSeconds),
			}
			handle := broker.Open(inv)
			curHandle = handle
			subCtx, cancel := context.WithCancel(ctx)
			curCancel = cancel
			go func() {
				for {
					select {
					case v, ok := <-handle.Values():
						if !ok {
							return
						}
						rec := AttributeRecord{Name: n.Name, Arguments: args, Result: v}
						out.Emit(TracedValue{Value: v, Attributes: []AttributeRecord{rec}})
					case <-subCtx.Done():
						return
					}
				}
			}()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				latest[u.idx] = u.tv.Value
				have[u.idx] = true
				if !haveAll {
					haveAll = true
					for _, h := range have {
						if !h {
							haveAll = false
							break
						}
					}
				}
				if haveAll {
					reopen()
				}
			}
		}
	}()

	return out
}
