// Package config provides configuration types for the sapl-go PDP.
//
// This is a PDP evaluation harness's configuration schema: what
// algorithm to combine documents with, which policy sources to load,
// and which PDP-level variables to bind into every evaluation. It
// intentionally excludes everything the teacher's gateway config
// carried for the surrounding proxy server — no listener address, no
// auth/identity store, no rate limiting, no upstream process
// supervision — since none of that is a PDP concern.
package config

// PolicySource is one entry of PDPConfig.Policies: either inline policy
// source text or a path to a file holding it. Exactly one of Source or
// Path must be set.
type PolicySource struct {
	// Source is inline policy/policy-set source text.
	Source string `yaml:"source" mapstructure:"source"`
	// Path is a filesystem path to a file holding policy/policy-set
	// source text. Relative paths are resolved against the current
	// working directory, matching the teacher's config-relative-path
	// convention for its own audit/state files.
	Path string `yaml:"path" mapstructure:"path"`
}

// PDPConfig is the top-level configuration for a sapl-go PDP instance,
// the on-disk shape of spec.md §6's PDP configuration object.
type PDPConfig struct {
	// PDPID identifies this PDP instance, carried into every trace
	// record's Voter.Name for the root combination.
	PDPID string `yaml:"pdp_id" mapstructure:"pdp_id" validate:"required"`

	// ConfigurationID identifies this particular document set/variable
	// binding, distinct from PDPID so the same PDP can be reported
	// against multiple configuration generations over its lifetime.
	ConfigurationID string `yaml:"configuration_id" mapstructure:"configuration_id" validate:"required"`

	// Algorithm names the top-level combining algorithm
	// (deny-overrides, permit-overrides, only-one-applicable,
	// deny-unless-permit, permit-unless-deny). "first-applicable" is
	// rejected at validation time: spec.md §3 forbids FIRST as a
	// top-level algorithm.
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm" validate:"required"`

	// Policies lists the policy/policy-set documents this PDP
	// evaluates, each either inline source or a file reference.
	Policies []PolicySource `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// Variables holds PDP-level constant bindings available to every
	// policy's body, merged into the evaluation variables of every
	// Decide call (spec.md §6's "PDP configuration... variables").
	Variables map[string]any `yaml:"variables" mapstructure:"variables"`

	// TraceDir, when non-empty, enables the JSONL trace sink
	// (internal/runtime/trace.FileSink) writing into this directory.
	TraceDir string `yaml:"trace_dir" mapstructure:"trace_dir"`

	// AttributeGracePeriodMS is the default teardown grace period, in
	// milliseconds, for a shared attribute source whose policy-level
	// invocation leaves it unset. Zero means immediate teardown on last
	// unsubscribe. spec.md §9 leaves grace-period behaviour for
	// attribute teardown unspecified beyond "document it as a
	// configuration knob"; this is that knob, consumed via
	// attribute.WithDefaultGracePeriod rather than per-attribute source
	// syntax, since no policy-source syntax for it exists.
	AttributeGracePeriodMS int `yaml:"attribute_grace_period_ms" mapstructure:"attribute_grace_period_ms"`

	// DevMode mirrors the teacher's own DevMode flag. It is parsed and
	// stored, but nothing reads it: it enables no extra logging or other
	// behaviour.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// SetDefaults applies default values for optional fields, mirroring the
// teacher's OSSConfig.SetDefaults.
func (c *PDPConfig) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "deny-overrides"
	}
}
