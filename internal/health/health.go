// Package health aggregates named subsystem probes for the health endpoint.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of probing one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem. Implementations should bound their own
// timeout; CheckAll runs them sequentially.
type Checker func(ctx context.Context) Status

// Registry collects checkers at startup and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]Checker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Checker)}
}

// Register adds a checker under the given name. Registering the same
// name again replaces the previous checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		r.names = append(r.names, name)
	}
	r.byName[name] = check
}

// CheckAll probes every registered subsystem in registration order.
// The aggregate is healthy only when every subsystem is.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	checks := make([]Checker, len(names))
	for i, name := range names {
		checks[i] = r.byName[name]
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, len(checks))
	for i, check := range checks {
		statuses[i] = check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
