package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// topLevelAlgorithmOneOf excludes "first-applicable": spec.md §3 forbids
// FIRST as a top-level combining algorithm (it is only meaningful
// nested inside a policy set, where C7/C8 apply it via combine.Compile
// directly).
const topLevelAlgorithmOneOf = "deny-overrides permit-overrides only-one-applicable deny-unless-permit permit-unless-deny"

// Validate validates the PDPConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with
// actionable error messages.
func (c *PDPConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateAlgorithm(); err != nil {
		return err
	}
	if err := c.validatePolicySourceExclusivity(); err != nil {
		return err
	}

	return nil
}

// validateAlgorithm rejects unknown algorithm names and the
// top-level-only-forbidden "first-applicable".
func (c *PDPConfig) validateAlgorithm() error {
	for _, name := range strings.Fields(topLevelAlgorithmOneOf) {
		if c.Algorithm == name {
			return nil
		}
	}
	if c.Algorithm == "first-applicable" {
		return errors.New("algorithm: \"first-applicable\" is not a valid top-level combining algorithm (nested sets only)")
	}
	return fmt.Errorf("algorithm: %q is not a recognized combining algorithm", c.Algorithm)
}

// validatePolicySourceExclusivity ensures each PolicySource sets exactly
// one of Source or Path, mirroring the teacher's
// validateUpstreamMutualExclusion cross-field check.
func (c *PDPConfig) validatePolicySourceExclusivity() error {
	for i, ps := range c.Policies {
		hasSource := ps.Source != ""
		hasPath := ps.Path != ""
		if hasSource == hasPath {
			return fmt.Errorf("policies[%d]: specify exactly one of source or path", i)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
