// Package registry tracks the known peers of a replica and the quorum math
// that depends on their count. It holds no network connections itself; the
// wire layer opens a connection per outbound message.
package registry

import "sync"

// Endpoint is where a peer's listener can be reached.
type Endpoint struct {
	Host string
	Port int
}

// Registry maps peer id to endpoint. The owner's own id is never a key;
// TotalPeers counts the owner as the "+1".
type Registry struct {
	mu    sync.RWMutex
	peers map[int]Endpoint
}

// New returns an empty registry (owner counted alone, TotalPeers() == 1).
func New() *Registry {
	return &Registry{peers: make(map[int]Endpoint)}
}

// Add records peer id at endpoint if not already present. It reports
// whether the peer was newly added.
func (r *Registry) Add(id int, ep Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return false
	}
	r.peers[id] = ep
	return true
}

// Has reports whether id is already a known peer.
func (r *Registry) Has(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

// Get returns the endpoint for id.
func (r *Registry) Get(id int) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.peers[id]
	return ep, ok
}

// All returns a snapshot of id -> endpoint, safe to range over without
// holding the registry's lock.
func (r *Registry) All() map[int]Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]Endpoint, len(r.peers))
	for id, ep := range r.peers {
		out[id] = ep
	}
	return out
}

// TotalPeers returns |registry| + 1 (the owner replica counts itself).
func (r *Registry) TotalPeers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers) + 1
}

// Len returns the number of known peers, excluding the owner.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
