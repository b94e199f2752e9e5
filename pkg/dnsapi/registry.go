package dnsapi

import (
	"fmt"
	"sort"
	"sync"
)

// AdapterConfig carries provider settings from configuration.
type AdapterConfig struct {
	BaseURL string
	Sandbox bool
}

// Factory creates an adapter from configuration.
type Factory func(cfg AdapterConfig) (Adapter, error)

// Registry maps provider type names to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for typeName, replacing any previous one.
func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Create builds the adapter registered under typeName.
func (r *Registry) Create(typeName string, cfg AdapterConfig) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (known: %v)", typeName, r.Types())
	}
	a, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter: %w", typeName, err)
	}
	return a, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
