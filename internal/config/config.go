// Package config provides the file-based configuration for actiongate.
//
// Configuration is intentionally minimal: one YAML file (plus environment
// overrides) describes the server, the persistence backend, the approval
// queue tuning, per-organization permission policy, and the API identities.
// Policy writes at runtime belong to a settings subsystem outside this
// layer; the organizations listed here are the seed state loaded at boot.
package config

import (
	"time"

	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/policy"
)

// Config is the top-level configuration for actiongate.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store selects the persistence backend for the approval queue and the
	// action log.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Approval tunes the approval queue.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Execution tunes direct capability execution.
	Execution ExecutionConfig `yaml:"execution" mapstructure:"execution"`

	// Audit tunes the asynchronous action log writer.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Policy tunes policy reads.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Organizations is the seed permission policy per organization.
	// Optional: organizations without a policy are denied everything.
	Organizations []OrganizationConfig `yaml:"organizations" mapstructure:"organizations" validate:"omitempty,dive"`

	// Auth configures file-based identities and API keys.
	// Optional: when empty the API runs open, for local development only.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Capabilities configures the capability catalog.
	Capabilities CapabilitiesConfig `yaml:"capabilities" mapstructure:"capabilities"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables permissive defaults for local development.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server. TLS is left to a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080"
	// (localhost only).
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	// Defaults to "info". DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// StoreConfig selects where pending actions and action log entries live.
type StoreConfig struct {
	// Backend is "memory" or "sqlite". Memory loses everything on restart
	// and suits tests and development only.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file. Required when backend is "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// ApprovalConfig tunes the approval queue.
type ApprovalConfig struct {
	// Window is how long a queued action may await a decision before the
	// expiry sweep marks it expired (e.g. "24h").
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// SweepSchedule is the cron schedule for the expiry sweep. Accepts
	// standard cron specs and descriptors like "@every 1m".
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule" validate:"omitempty,cron_schedule"`
}

// ExecutionConfig tunes capability execution.
type ExecutionConfig struct {
	// Timeout bounds a single capability handler call (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// AuditConfig tunes the asynchronous action log writer. Entries are queued
// on a channel and flushed in batches; these knobs trade durability latency
// against request-path overhead.
type AuditConfig struct {
	// ChannelSize is the entry buffer size. Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is how many entries to write per flush. Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush a partial batch (e.g. "1s").
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// SendTimeout is how long the request path blocks when the channel is
	// full before dropping the entry. "0" drops immediately.
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty,duration"`

	// WarningThreshold is the channel depth percentage (0-100) at which a
	// rate-limited warning is logged. 0 disables the warning.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`
}

// PolicyConfig tunes policy reads.
type PolicyConfig struct {
	// CacheTTL bounds how stale a cached policy read may be (e.g. "5s").
	// "0" disables caching so every invocation re-reads the store.
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty,duration"`
}

// OrganizationConfig is one organization's seed permission policy.
type OrganizationConfig struct {
	// ID identifies the organization.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Mode is the global operating mode: autonomous, ask_permission,
	// manual_only, or disabled.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"required,oneof=autonomous ask_permission manual_only disabled"`

	// CategoryOverrides maps a capability category to a mode that beats the
	// global mode for capabilities in that category.
	CategoryOverrides map[string]string `yaml:"category_overrides" mapstructure:"category_overrides" validate:"omitempty,dive,oneof=autonomous ask_permission manual_only disabled"`

	// Toggles maps a capability name to an explicit allow/deny that beats
	// both the category override and the global mode.
	Toggles map[string]bool `yaml:"toggles" mapstructure:"toggles"`

	// Guards are optional tightening rules evaluated against arguments.
	Guards []GuardConfig `yaml:"guards" mapstructure:"guards" validate:"omitempty,dive"`
}

// GuardConfig is one guard rule. The condition is a CEL expression over
// args.*, capability.*, and actor.*.
type GuardConfig struct {
	// Name identifies the rule in logs and refusal reasons.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Capability is a glob pattern matching capability names (e.g. "create*").
	Capability string `yaml:"capability" mapstructure:"capability" validate:"required"`

	// Condition is the CEL expression.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is deny or require_approval.
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=deny require_approval"`
}

// AuthConfig configures file-based authentication.
type AuthConfig struct {
	// Identities defines the known callers.
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys defines the API keys that map to identities.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a file-based identity, scoped to one organization.
type IdentityConfig struct {
	// ID is the unique identifier for this identity.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Name is the human-readable name.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// OrganizationID scopes everything this identity does.
	OrganizationID string `yaml:"organization_id" mapstructure:"organization_id" validate:"required"`

	// Roles is one or more of owner, agent, auditor.
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1,dive,oneof=owner agent auditor"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is the hashed key: "sha256:<hex>" or an Argon2id PHC string
	// ("$argon2id$..."). Generate with `actiongate hash-key`.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`

	// IdentityID references the identity this key authenticates as.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`

	// Name is an optional human-readable label for this key.
	Name string `yaml:"name" mapstructure:"name"`
}

// CapabilitiesConfig configures the capability catalog.
type CapabilitiesConfig struct {
	// CatalogPath is an optional YAML file of capability definitions layered
	// on top of the builtin catalog.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Exporter is "stdout" or "none".
	Exporter string `yaml:"exporter" mapstructure:"exporter" validate:"omitempty,oneof=stdout none"`

	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`

	// SampleRate is the trace sampling ratio (0-1]. Defaults to 1.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"omitempty,min=0,max=1"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless told otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}

	if c.Approval.Window == "" {
		c.Approval.Window = "24h"
	}
	if c.Approval.SweepSchedule == "" {
		c.Approval.SweepSchedule = "@every 1m"
	}

	if c.Execution.Timeout == "" {
		c.Execution.Timeout = "30s"
	}

	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}

	if c.Policy.CacheTTL == "" {
		c.Policy.CacheTTL = "5s"
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// SetDevDefaults applies permissive defaults for development mode, applied
// after SetDefaults and before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// A default organization so invocations work with zero config. Dev mode
	// leaves auth empty, so the API runs open.
	if len(c.Organizations) == 0 {
		c.Organizations = []OrganizationConfig{
			{ID: "dev-org", Mode: string(policy.ModeAskPermission)},
		}
	}
}

// Duration parses a string duration field. Call only after Validate; the
// duration tag guarantees parseability, so errors are ignored.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// PermissionPolicy converts the seed configuration into the domain policy.
func (o OrganizationConfig) PermissionPolicy() *policy.PermissionPolicy {
	p := &policy.PermissionPolicy{
		OrganizationID: o.ID,
		Mode:           policy.Mode(o.Mode),
		Toggles:        o.Toggles,
	}
	if len(o.CategoryOverrides) > 0 {
		p.CategoryOverrides = make(map[capability.Category]policy.Mode, len(o.CategoryOverrides))
		for cat, mode := range o.CategoryOverrides {
			p.CategoryOverrides[capability.Category(cat)] = policy.Mode(mode)
		}
	}
	for _, g := range o.Guards {
		p.Guards = append(p.Guards, policy.GuardRule{
			Name:       g.Name,
			Capability: g.Capability,
			Condition:  g.Condition,
			Action:     policy.GuardAction(g.Action),
		})
	}
	return p
}
