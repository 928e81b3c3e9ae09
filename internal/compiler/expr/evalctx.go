package expr

import (
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// EvalCtx is the immutable-after-creation evaluation context threaded
// through one subscription's evaluation, per spec.md §5: one per
// subscription, shared by every compiled expression it evaluates.
type EvalCtx struct {
	Vars       map[string]value.Value
	Funcs      *function.Broker
	Attributes *attribute.Broker
	// ConfigurationID scopes attribute fingerprints to this PDP
	// configuration, so two otherwise-identical PDPs never share a cache.
	ConfigurationID string
}

// WithVar returns a copy of ec with name bound to val, used to extend
// the vars map across a VarDef without mutating the parent context (each
// VarDef's scope is everything lexically after it, per spec.md §4.5).
func (ec EvalCtx) WithVar(name string, val value.Value) EvalCtx {
	next := make(map[string]value.Value, len(ec.Vars)+1)
	for k, v := range ec.Vars {
		next[k] = v
	}
	next[name] = val
	ec.Vars = next
	return ec
}

// AttributeRecord traces one attribute invocation that contributed to a
// TracedValue, for the trace/coverage channel (C10).
type AttributeRecord struct {
	Name      string
	Arguments []value.Value
	Result    value.Value
}

// TracedValue is a Stream-stratum emission: the value plus the attribute
// invocations that produced it, per spec.md §3's Flux<TracedValue>.
type TracedValue struct {
	Value      value.Value
	Attributes []AttributeRecord
}

func mergeAttrs(vs ...[]AttributeRecord) []AttributeRecord {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	if n == 0 {
		return nil
	}
	out := make([]AttributeRecord, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}
