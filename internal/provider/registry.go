package provider

import "sync"

// Registry holds all registered provider adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Name]Adapter
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Name]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not registered.
func (r *Registry) Get(name Name) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// All returns all registered adapters in a stable order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Adapter
	for _, name := range AllNames() {
		if a, ok := r.adapters[name]; ok {
			result = append(result, a)
		}
	}
	return result
}

// ImageSources returns the registered adapters that can serve images, in
// the order given by names. Adapters that are not registered, do not
// declare the images capability, or do not implement ImageSource are
// skipped.
func (r *Registry) ImageSources(names []Name) []ImageSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []ImageSource
	for _, name := range names {
		a, ok := r.adapters[name]
		if !ok || !a.Capabilities().Images {
			continue
		}
		if src, ok := a.(ImageSource); ok {
			result = append(result, src)
		}
	}
	return result
}
