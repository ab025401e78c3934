package circuitbreaker

import (
	"sync"
)

// Registry hands out one Breaker per logical transport target,
// creating them on first use from a shared base configuration.
type Registry struct {
	mu       sync.RWMutex
	base     Config
	breakers map[string]*Breaker
}

func NewRegistry(base Config) *Registry {
	return &Registry{
		base:     base,
		breakers: make(map[string]*Breaker),
	}
}

func (r *Registry) Get(target string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[target]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[target]; ok {
		return b
	}

	cfg := r.base
	cfg.Name = target
	b = New(cfg)
	r.breakers[target] = b
	return b
}

// States snapshots the current state of every known breaker, keyed by
// target name.
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for target, b := range r.breakers {
		states[target] = b.State().String()
	}
	return states
}
