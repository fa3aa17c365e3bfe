package policy

import (
	"fmt"

	"github.com/actiongate/actiongate/internal/domain/capability"
)

// Resolve evaluates a permission policy against one capability and returns
// whether the agent may invoke it, and whether a human must approve first.
//
// Precedence: toggle > category override > global mode. Absence of an entry
// at one level inherits from the next level up. Guards are evaluated
// separately by the interceptor because they need the invocation arguments.
func Resolve(p *PermissionPolicy, cap capability.Capability) Resolution {
	if p == nil {
		return Resolution{
			Allowed: false,
			Source:  SourceMode,
			Reason:  "no permission policy configured",
		}
	}

	// Fine-grained toggle beats everything. A toggle grants or denies the
	// capability itself; destructive capabilities still require approval
	// unless the effective mode is autonomous.
	if allowed, ok := p.Toggles[cap.Name]; ok {
		mode := p.effectiveMode(cap.Category)
		if !allowed {
			return Resolution{
				Allowed:       false,
				Source:        SourceToggle,
				EffectiveMode: mode,
				Reason:        fmt.Sprintf("capability %s is switched off for this organization", cap.Name),
			}
		}
		return Resolution{
			Allowed:          true,
			RequiresApproval: cap.Destructive && mode != ModeAutonomous,
			Source:           SourceToggle,
			EffectiveMode:    mode,
			Reason:           fmt.Sprintf("capability %s is explicitly enabled", cap.Name),
		}
	}

	mode := p.effectiveMode(cap.Category)
	source := SourceMode
	if _, ok := p.CategoryOverrides[cap.Category]; ok {
		source = SourceCategory
	}
	return resolveMode(mode, source, cap)
}

// effectiveMode returns the mode that applies to a category after override
// resolution.
func (p *PermissionPolicy) effectiveMode(cat capability.Category) Mode {
	if override, ok := p.CategoryOverrides[cat]; ok {
		return override
	}
	return p.Mode
}

// resolveMode evaluates a single mode against a capability's destructive flag.
func resolveMode(mode Mode, source Source, cap capability.Capability) Resolution {
	switch mode {
	case ModeDisabled:
		return Resolution{
			Allowed:       false,
			Source:        source,
			EffectiveMode: mode,
			Reason:        "agent actions are disabled for this organization",
		}
	case ModeManualOnly:
		return Resolution{
			Allowed:       false,
			Source:        source,
			EffectiveMode: mode,
			Reason:        "organization is in manual-only mode: the agent may not perform actions",
		}
	case ModeAskPermission:
		return Resolution{
			Allowed:          true,
			RequiresApproval: cap.Destructive,
			Source:           source,
			EffectiveMode:    mode,
			Reason:           "allowed by ask-permission mode",
		}
	case ModeAutonomous:
		return Resolution{
			Allowed:       true,
			Source:        source,
			EffectiveMode: mode,
			Reason:        "allowed by autonomous mode",
		}
	default:
		// Unknown mode: fail closed.
		return Resolution{
			Allowed:       false,
			Source:        source,
			EffectiveMode: mode,
			Reason:        fmt.Sprintf("unknown policy mode %q", mode),
		}
	}
}
