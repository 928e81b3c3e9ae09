package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/heutelbeck/sapl-go/internal/compiler/parse"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
	"github.com/heutelbeck/sapl-go/internal/runtime/pdp"
)

// algorithmTable mirrors internal/compiler/parse's algorithm table for
// the top-level algorithm name given directly in a PDPConfig (rather
// than appearing inside policy-set source text) — validated separately
// in validateAlgorithm since a config file names its algorithm once at
// the top, not per nested set.
var algorithmTable = map[string]policy.CombiningAlgorithm{
	"deny-overrides":      {Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"permit-overrides":    {Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"only-one-applicable": {Mode: policy.Unique, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"deny-unless-permit":  {Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultDeny, ErrorHandling: policy.Abstain},
	"permit-unless-deny":  {Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultPermit, ErrorHandling: policy.Abstain},
}

// ToPDPConfiguration parses every policy source (inline or file) and
// resolves Variables into value.Value, producing the pdp.Configuration
// the orchestrator (C9) consumes. Call Validate before this — it
// assumes the algorithm name and policy-source exclusivity already
// checked out.
func (c *PDPConfig) ToPDPConfiguration() (pdp.Configuration, error) {
	algo, ok := algorithmTable[c.Algorithm]
	if !ok {
		return pdp.Configuration{}, fmt.Errorf("config: unknown algorithm %q", c.Algorithm)
	}

	docs := make([]policy.Document, len(c.Policies))
	for i, ps := range c.Policies {
		src := ps.Source
		name := fmt.Sprintf("%s/policies[%d]", c.ConfigurationID, i)
		if ps.Path != "" {
			data, err := os.ReadFile(ps.Path)
			if err != nil {
				return pdp.Configuration{}, fmt.Errorf("config: reading %s: %w", ps.Path, err)
			}
			src = string(data)
			name = ps.Path
		}
		doc, err := parse.ParseDocument(name, src)
		if err != nil {
			return pdp.Configuration{}, fmt.Errorf("config: parsing policies[%d]: %w", i, err)
		}
		docs[i] = doc
	}

	vars := make(map[string]value.Value, len(c.Variables))
	for k, v := range c.Variables {
		data, err := json.Marshal(v)
		if err != nil {
			return pdp.Configuration{}, fmt.Errorf("config: marshalling variable %q: %w", k, err)
		}
		val, err := value.FromJSON(data)
		if err != nil {
			return pdp.Configuration{}, fmt.Errorf("config: variable %q: %w", k, err)
		}
		vars[k] = val
	}

	return pdp.Configuration{
		PDPID:           c.PDPID,
		ConfigurationID: c.ConfigurationID,
		Algorithm:       algo,
		Documents:       docs,
		Variables:       vars,
	}, nil
}
