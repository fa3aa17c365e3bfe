package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ExpressionValidator checks that a guard condition compiles. Satisfied by
// the CEL evaluator; injected so this package stays free of the CEL
// dependency.
type ExpressionValidator interface {
	ValidateExpression(expr string) error
}

// RegisterCustomValidators registers actiongate-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("cron_schedule", validateCronSchedule); err != nil {
		return fmt.Errorf("failed to register cron_schedule validator: %w", err)
	}
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateDuration accepts any time.ParseDuration string.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// validateCronSchedule accepts standard cron specs and descriptors such as
// "@every 1m" or "@hourly".
func validateCronSchedule(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// validateKeyHash accepts "sha256:<hex>" and Argon2id PHC strings.
func validateKeyHash(fl validator.FieldLevel) bool {
	hash := fl.Field().String()
	return strings.HasPrefix(hash, "sha256:") || strings.HasPrefix(hash, "$argon2id$")
}

// Validate validates the Config using struct tags and cross-field rules.
// Guard conditions need a CEL environment to check; pass them through
// ValidateGuardExpressions separately.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateStoreBackend(); err != nil {
		return err
	}
	if err := c.validateOrganizationIDs(); err != nil {
		return err
	}
	if err := c.validateIdentityReferences(); err != nil {
		return err
	}
	return nil
}

// ValidateGuardExpressions compiles every guard condition so a typo in the
// config fails at boot rather than silently failing closed per request.
func (c *Config) ValidateGuardExpressions(v ExpressionValidator) error {
	for _, org := range c.Organizations {
		for _, g := range org.Guards {
			if err := v.ValidateExpression(g.Condition); err != nil {
				return fmt.Errorf("organizations[%s] guard %q: %w", org.ID, g.Name, err)
			}
		}
	}
	return nil
}

// validateStoreBackend ensures the sqlite backend has a database path.
func (c *Config) validateStoreBackend() error {
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return errors.New("store: path is required when backend is sqlite")
	}
	return nil
}

// validateOrganizationIDs ensures each organization appears once.
func (c *Config) validateOrganizationIDs() error {
	seen := make(map[string]struct{}, len(c.Organizations))
	for i, org := range c.Organizations {
		if _, dup := seen[org.ID]; dup {
			return fmt.Errorf("organizations[%d]: duplicate organization id: %s", i, org.ID)
		}
		seen[org.ID] = struct{}{}
	}
	return nil
}

// validateIdentityReferences ensures every API key references a configured
// identity.
func (c *Config) validateIdentityReferences() error {
	known := make(map[string]struct{}, len(c.Auth.Identities))
	for _, identity := range c.Auth.Identities {
		known[identity.ID] = struct{}{}
	}

	for i, apiKey := range c.Auth.APIKeys {
		if _, exists := known[apiKey.IdentityID]; !exists {
			return fmt.Errorf("api_keys[%d]: references unknown identity_id: %s", i, apiKey.IdentityID)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to actionable
// messages.
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

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"30s\", \"24h\")", field)
	case "cron_schedule":
		return fmt.Sprintf("%s must be a valid cron schedule (e.g. \"@every 1m\")", field)
	case "key_hash":
		return fmt.Sprintf("%s must be \"sha256:<hex>\" or an Argon2id hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
