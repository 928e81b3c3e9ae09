// Package function implements the policy engine's function broker (C2):
// a registry of named pure functions invoked from policy expressions.
// Every registered implementation must be total (no panics, no
// goroutines, no I/O) and must treat an Error argument as an immediate
// short-circuit, mirroring the custom CEL functions the teacher wires
// into its policy environment (glob, dest_ip_in_cidr, action_arg, ...).
package function

import (
	"fmt"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Impl is a pure total function from arguments to a result value.
type Impl func(args []value.Value) value.Value

// Descriptor describes one registered function.
type Descriptor struct {
	Library  string
	Name     string
	Arity    int  // minimum number of required arguments
	Variadic bool // if true, Arity is the minimum and extra args are allowed
	Impl     Impl
}

// FullName returns "library.name".
func (d Descriptor) FullName() string {
	if d.Library == "" {
		return d.Name
	}
	return d.Library + "." + d.Name
}

// Broker is a registry mapping (library, name) to a Descriptor.
// A Broker is built once at startup and is read-only thereafter, safe
// for concurrent use by many subscriptions (the same discipline the
// teacher applies to its shared CEL environment).
type Broker struct {
	entries map[string]Descriptor
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{entries: make(map[string]Descriptor)}
}

// Register adds d to the broker. Registering the same (library, name)
// twice is a programming error and panics at startup, the same way a
// duplicate CEL function overload would fail environment construction.
func (b *Broker) Register(d Descriptor) {
	key := d.FullName()
	if _, exists := b.entries[key]; exists {
		panic(fmt.Sprintf("function: duplicate registration for %s", key))
	}
	b.entries[key] = d
}

// Lookup returns the descriptor for "library.name" (or just "name" for
// unqualified environment-level functions), and whether it was found.
func (b *Broker) Lookup(fullName string) (Descriptor, bool) {
	d, ok := b.entries[fullName]
	return d, ok
}

// Names returns all registered full names, for diagnostics and CEL
// environment construction.
func (b *Broker) Names() []string {
	out := make([]string, 0, len(b.entries))
	for k := range b.entries {
		out = append(out, k)
	}
	return out
}

// Invoke checks arity and argument-level errors, then calls the
// implementation. It never panics: an unknown function or arity mismatch
// becomes an Error value, not a Go error, so that invocation stays total
// from the expression compiler's point of view.
func (b *Broker) Invoke(fullName string, args []value.Value) value.Value {
	d, ok := b.entries[fullName]
	if !ok {
		return value.Errorf("unknown function %q", fullName)
	}
	return d.invoke(args)
}

func (d Descriptor) invoke(args []value.Value) value.Value {
	if d.Variadic {
		if len(args) < d.Arity {
			return value.Errorf("%s: expected at least %d arguments, got %d", d.FullName(), d.Arity, len(args))
		}
	} else if len(args) != d.Arity {
		return value.Errorf("%s: expected %d arguments, got %d", d.FullName(), d.Arity, len(args))
	}
	for _, a := range args {
		if a.IsError() {
			return a // short-circuit: error argument propagates untouched
		}
	}
	return d.Impl(args)
}
