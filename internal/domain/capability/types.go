// Package capability contains the static catalog of operations an agent
// may request, plus the handler binding used to execute them.
package capability

import (
	"context"
	"errors"
)

// ErrUnknownCapability is returned when a capability name is not in the registry.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrNoHandler is returned when a capability is catalogued but has no bound handler.
var ErrNoHandler = errors.New("capability has no bound handler")

// Category groups capabilities by the business area they touch.
type Category string

const (
	CategoryMessaging  Category = "messaging"
	CategoryFinancial  Category = "financial"
	CategoryScheduling Category = "scheduling"
	CategoryCRM        Category = "crm"
	CategoryReporting  Category = "reporting"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMessaging, CategoryFinancial, CategoryScheduling, CategoryCRM, CategoryReporting:
		return true
	}
	return false
}

// RiskLevel is the declared risk of a capability's side effects.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Handler executes a capability's side effect with the original arguments.
// Implementations must honor ctx cancellation; the caller applies a bounded
// timeout around every invocation.
type Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Capability describes a single catalogued operation. Entries are defined at
// deploy time and never mutated at runtime.
type Capability struct {
	// Name is the unique key agents use to request this capability.
	Name string `yaml:"name"`
	// Description is the human-readable summary shown to owners when a
	// queued invocation awaits their decision.
	Description string `yaml:"description"`
	// Category groups the capability for per-category policy overrides.
	Category Category `yaml:"category"`
	// RiskLevel is the declared risk of executing this capability.
	RiskLevel RiskLevel `yaml:"risk_level"`
	// Destructive marks effects that are not trivially reversible or that
	// touch money, communications, or records.
	Destructive bool `yaml:"destructive"`
	// AffectedEntityType names the kind of record the capability touches
	// (informational, e.g. "customer", "invoice").
	AffectedEntityType string `yaml:"affected_entity_type"`
}
