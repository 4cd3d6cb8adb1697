package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the registration and creation of processors
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new processor registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a processor factory to the registry
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("processor name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("processor factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("processor %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a processor by name
func (r *Registry) Create(name string) (Processor, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown processor: %s", name)
	}

	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create processor %s: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("factory for processor %s returned nil", name)
	}
	return p, nil
}

// IsRegistered checks if a processor with the given name is registered
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// GetRegisteredNames returns all registered processor names in sorted order
func (r *Registry) GetRegisteredNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Clone returns a registry holding the same factories. Callers can add
// their own processors to the clone without touching the original.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewRegistry()
	for name, factory := range r.factories {
		clone.factories[name] = factory
	}
	return clone
}

// DefaultRegistry is populated by plugin packages from their init functions
var DefaultRegistry = NewRegistry()
