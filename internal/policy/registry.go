package policy

import (
	"fmt"
	"sort"
)

// Registry holds the known settings surface policies.
type Registry struct {
	policies map[string]SurfacePolicy
}

// NewRegistry creates a registry with all built-in policies.
func NewRegistry() *Registry {
	return NewRegistryWithPolicies(
		NewAndroidPolicy(),
		NewGnomePolicy(),
		NewKDEPolicy(),
	)
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...SurfacePolicy) *Registry {
	r := &Registry{
		policies: make(map[string]SurfacePolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds a policy to the registry, replacing one with the same ID.
func (r *Registry) Register(p SurfacePolicy) {
	r.policies[p.ID()] = p
}

// Get returns a policy by ID.
func (r *Registry) Get(id string) (SurfacePolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// Resolve returns the policy for id or an error naming the known ones.
func (r *Registry) Resolve(id string) (SurfacePolicy, error) {
	p, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("unknown settings surface %q (known: %v)", id, r.List())
	}
	return p, nil
}

// List returns all policy IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
