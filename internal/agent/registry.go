package agent

import (
	"fmt"
	"sync"
)

// Factory is a constructor that creates an Adapter.
type Factory func() Adapter

// Registry maps investigator kinds to their factory constructors. Task specs
// reference adapters by kind; the scheduler spawns them through the registry
// so the set of investigators stays configuration, not code.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates a factory with an investigator kind. Registering the
// same kind twice is an error; adapters are wired once at process start.
func (r *Registry) Register(kind string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("agent: kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Spawn creates a single adapter by kind using the registered factory.
func (r *Registry) Spawn(kind string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("agent: no factory registered for kind %q", kind)
	}
	return factory(), nil
}

// Kinds returns the registered investigator kinds.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}
