package ratelimit

import "sync"

// Registry holds one limiter per key (typically a source id), creating each
// lazily and reusing it across calls. A Registry is owned by a harvesting
// session, not by the process.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	defaults Config
}

// NewRegistry builds a Registry whose lazily-created limiters use defaults.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

// Get returns the limiter for key, creating it with the registry defaults on
// first use.
func (r *Registry) Get(key string) *Limiter {
	return r.GetWith(key, r.defaults)
}

// GetWith returns the limiter for key, creating it with cfg on first use.
// An existing limiter keeps its original configuration.
func (r *Registry) GetWith(key string, cfg Config) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := New(cfg)
	r.limiters[key] = l
	return l
}

// Reset clears the recorded requests for one key, if present.
func (r *Registry) Reset(key string) {
	r.mu.Lock()
	l := r.limiters[key]
	r.mu.Unlock()
	if l != nil {
		l.Reset()
	}
}

// ResetAll clears every limiter's recorded requests.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.limiters {
		l.Reset()
	}
}
