package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the static catalog mapping capability names to metadata and
// handler references. Definitions and handlers are registered during startup;
// after Freeze the registry is read-only and safe for concurrent reads from
// any number of callers.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	caps     map[string]Capability
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		caps:     make(map[string]Capability),
		handlers: make(map[string]Handler),
	}
}

// Register adds a capability definition. Returns an error when the name is
// already taken, the metadata is invalid, or the registry is frozen.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot register %q", c.Name)
	}
	if c.Name == "" {
		return fmt.Errorf("capability name is required")
	}
	if !c.Category.Valid() {
		return fmt.Errorf("capability %q: invalid category %q", c.Name, c.Category)
	}
	if !c.RiskLevel.Valid() {
		return fmt.Errorf("capability %q: invalid risk level %q", c.Name, c.RiskLevel)
	}
	if _, exists := r.caps[c.Name]; exists {
		return fmt.Errorf("capability %q already registered", c.Name)
	}
	r.caps[c.Name] = c
	return nil
}

// Bind attaches a handler to an already-registered capability name.
// Handlers are resolved at startup so policy evaluation never touches live
// closures (execution and interception stay decoupled).
func (r *Registry) Bind(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot bind %q", name)
	}
	if _, exists := r.caps[name]; !exists {
		return fmt.Errorf("bind %q: %w", name, ErrUnknownCapability)
	}
	if h == nil {
		return fmt.Errorf("bind %q: nil handler", name)
	}
	r.handlers[name] = h
	return nil
}

// Freeze marks the registry immutable. Called once after startup wiring.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the capability for name.
// Returns ErrUnknownCapability when absent — callers fail closed.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[name]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return c, nil
}

// Handler returns the bound handler for name.
// Returns ErrNoHandler when the capability is catalogued without a binding;
// such capabilities are visible in listings but fail closed at invocation.
func (r *Registry) Handler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.caps[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return h, nil
}

// List returns all capabilities sorted by name.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListByCategory returns all capabilities in the given category, sorted by name.
func (r *Registry) ListByCategory(cat Category) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Capability
	for _, c := range r.caps {
		if c.Category == cat {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
