package config

import "testing"

func validConfig() PDPConfig {
	return PDPConfig{
		PDPID:           "pdp-1",
		ConfigurationID: "cfg-1",
		Algorithm:       "deny-overrides",
	}
}

func TestValidate_AcceptsMinimalValidConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RequiresPDPID(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.PDPID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a missing pdp_id")
	}
}

func TestValidate_RejectsFirstApplicableAtTopLevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Algorithm = "first-applicable"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a top-level first-applicable algorithm")
	}
}

func TestValidate_RejectsUnknownAlgorithm(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Algorithm = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown algorithm")
	}
}

func TestValidate_RejectsPolicySourceWithBothSourceAndPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Policies = []PolicySource{{Source: "x", Path: "y"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a policy source with both source and path set")
	}
}

func TestValidate_RejectsPolicySourceWithNeitherSourceNorPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Policies = []PolicySource{{}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a policy source with neither source nor path set")
	}
}
