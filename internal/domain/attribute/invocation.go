// Package attribute implements the attribute broker (C3): a registry of
// named streaming attribute sources that produce a Flux of Values for
// `<name>(args)` and `subject.<name>(args)` expressions, with
// per-fingerprint multicast sharing as spec.md §4.3 and §5 require.
package attribute

import (
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// Invocation is the canonical identity of an attribute call: two
// invocations with an identical Fingerprint share the same live
// subscription, per spec.md §4.3.
type Invocation struct {
	AttributeName          string
	ConfigurationID        string
	IsEnvironmentAttribute bool
	// Entity is the left-hand receiver (e.g. the subject for
	// subject.<sensor.online>), or value.Undefined for the environment
	// form <name>(args).
	Entity    value.Value
	Arguments []value.Value

	// Fresh, when true, opts this invocation out of fingerprint sharing:
	// every subscriber gets its own dedicated source instance.
	Fresh bool

	InitialTimeout   time.Duration
	PollInterval     time.Duration
	Backoff          time.Duration
	Retries          int
	CloseGracePeriod time.Duration
}

// fingerprintPayload is the JSON-serializable shape hashed to produce
// the invocation's fingerprint. Timeouts/retry knobs are deliberately
// excluded: two invocations that differ only in polling cadence still
// address "the same" external value and should share a source.
type fingerprintPayload struct {
	Name      string          `json:"name"`
	ConfigID  string          `json:"config"`
	Env       bool            `json:"env"`
	Entity    json.RawMessage `json:"entity"`
	Arguments []json.RawMessage `json:"args"`
}

// Fingerprint computes the cache key used for multicast sharing.
// cespare/xxhash/v2 mirrors the teacher's PolicyService.computeCacheKey
// use of xxhash for a fast, good-distribution, non-cryptographic hash.
func (inv Invocation) Fingerprint() uint64 {
	entityJSON, _ := value.ToJSON(inv.Entity)
	argsJSON := make([]json.RawMessage, len(inv.Arguments))
	for i, a := range inv.Arguments {
		j, _ := value.ToJSON(a)
		argsJSON[i] = j
	}
	payload := fingerprintPayload{
		Name:      inv.AttributeName,
		ConfigID:  inv.ConfigurationID,
		Env:       inv.IsEnvironmentAttribute,
		Entity:    entityJSON,
		Arguments: argsJSON,
	}
	data, _ := json.Marshal(payload)
	return xxhash.Sum64(data)
}
