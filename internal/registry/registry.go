// Package registry holds per-name backing instances owned by one engine.
package registry

import "sync"

// Registry maps names to lazily created values. Concurrent callers asking for
// the same new name converge on a single instance.
type Registry[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func New[V any]() *Registry[V] {
	return &Registry[V]{m: make(map[string]V)}
}

// GetOrCreate returns the value registered under name, calling create under
// the registry lock if none exists yet. create must not call back into r.
func (r *Registry[V]) GetOrCreate(name string, create func() V) (v V, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.m[name]; ok {
		return v, false
	}
	v = create()
	r.m[name] = v
	return v, true
}

// Range calls fn for a snapshot of registered values.
func (r *Registry[V]) Range(fn func(name string, v V)) {
	r.mu.Lock()
	snap := make(map[string]V, len(r.m))
	for k, v := range r.m {
		snap[k] = v
	}
	r.mu.Unlock()
	for k, v := range snap {
		fn(k, v)
	}
}

func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
