package provider

import "sync"

// Registry maps provider ids to adapter instances. Providers without an
// explicit mapping fall back to the default adapter, which speaks the
// OpenAI-compatible protocol shared by most vendors.
type Registry struct {
	mu             sync.RWMutex
	adapters       map[string]Adapter
	defaultAdapter Adapter
}

func NewRegistry(defaultAdapter Adapter) *Registry {
	return &Registry{
		adapters:       make(map[string]Adapter),
		defaultAdapter: defaultAdapter,
	}
}

// Register binds a provider id to an adapter, replacing any previous binding.
func (r *Registry) Register(providerId string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[providerId] = adapter
}

// Lookup returns the adapter for a provider id, or the default adapter when
// no specific mapping exists.
func (r *Registry) Lookup(providerId string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[providerId]; ok {
		return adapter
	}
	return r.defaultAdapter
}
