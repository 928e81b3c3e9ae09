package function

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// RegisterHash adds the "hash" library used by policies that need to
// compare tokens or fingerprints without exposing raw secrets in traces.
func RegisterHash(b *Broker) {
	b.Register(Descriptor{Library: "hash", Name: "sha256", Arity: 1, Impl: func(a []value.Value) value.Value {
		if !a[0].IsText() {
			return value.Errorf("hash.sha256 requires a text argument")
		}
		sum := sha256.Sum256([]byte(a[0].String()))
		return value.Text(hex.EncodeToString(sum[:]))
	}})
}

// RegisterAll registers every built-in library into b. Used by
// production wiring (see internal/runtime/pdp) to assemble the default
// function broker.
func RegisterAll(b *Broker) {
	RegisterStrings(b)
	RegisterBitwise(b)
	RegisterNet(b)
	RegisterHash(b)
}
