package apply

import (
	"fmt"
	"strings"
	"sync"

	"branchwarden/internal/policy"
)

// Registry maps logical policy type names to appliers. Unknown names fall
// back to a delete-only applier when one is set.
type Registry struct {
	mu       sync.RWMutex
	appliers map[string]Applier
	fallback Applier
}

func NewRegistry() *Registry {
	return &Registry{appliers: make(map[string]Applier)}
}

// NewRemoteRegistry registers one applier per registered policy kind, all
// writing through remote.
func NewRemoteRegistry(remote Writer) *Registry {
	r := NewRegistry()
	for _, k := range policy.Kinds() {
		r.Register(k.Name(), &kindApplier{kind: k, remote: remote})
	}
	r.SetFallback(&deleteOnly{remote: remote})
	return r
}

func (r *Registry) Register(typeName string, a Applier) {
	key := strings.ToLower(strings.TrimSpace(typeName))
	if key == "" || a == nil {
		panic("apply: empty type name or nil applier")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.appliers[key]; exists {
		panic(fmt.Sprintf("applier for %s already registered", typeName))
	}
	r.appliers[key] = a
}

func (r *Registry) SetFallback(a Applier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = a
}

// Lookup resolves typeName, which may be a kind name or a server display
// name, to its applier.
func (r *Registry) Lookup(typeName string) (Applier, bool) {
	key := strings.ToLower(strings.TrimSpace(typeName))
	if k, ok := policy.LookupKind(key); ok {
		key = strings.ToLower(k.Name())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.appliers[key]; ok {
		return a, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
