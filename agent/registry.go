// Package agent implements the per-credential refresh actor and the
// registry of live tokens it publishes to. One Agent owns one named
// credential; the Manager supervises the set of agents for a process.
package agent

import (
	"sync"
	"sync/atomic"

	"github.com/nimbus-oss/azurecreds/token"
)

// Registry holds the current token for every registered credential name.
// Writes are single-producer: only the owning agent ever stores into its
// slot, so readers always observe a well-formed token or nothing, per the
// concurrency contract in spec.md §4.4.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*atomic.Value
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*atomic.Value)}
}

// Lookup returns the cached token for name, if any.
func (r *Registry) Lookup(name string) (*token.Token, bool) {
	r.mu.RLock()
	slot, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	tok, ok := slot.Load().(*token.Token)
	return tok, ok
}

// slotFor returns the atomic.Value backing name, creating it if absent.
// Intended for the owning agent only.
func (r *Registry) slotFor(name string) *atomic.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.entries[name]
	if !ok {
		slot = &atomic.Value{}
		r.entries[name] = slot
	}
	return slot
}

// forget removes name's slot, called when an agent is closed.
func (r *Registry) forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}
