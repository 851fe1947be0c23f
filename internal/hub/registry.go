package hub

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Peer is a registered connection as seen by the registry and the router.
// *session.Session implements it.
type Peer interface {
	ID() string
	Addr() string
	Deliver(frame []byte) error
	Close() error
}

type entry struct {
	peer   Peer
	issuer string
	seq    uint64
}

// Registry maps connection identity to live peers. It is safe for
// concurrent use; snapshots are copies taken under a read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds peer. Registering a peer twice keeps the first entry.
func (r *Registry) Register(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[peer.ID()]; ok {
		return
	}
	r.nextSeq++
	r.entries[peer.ID()] = &entry{peer: peer, seq: r.nextSeq}
}

// Unregister removes peer and returns the issuer last recorded for it.
// Removing an absent peer is a no-op and reports removed == false.
func (r *Registry) Unregister(peer Peer) (issuer string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[peer.ID()]
	if !ok {
		return "", false
	}
	delete(r.entries, peer.ID())
	return e.issuer, true
}

// UpdateIssuer records the display name announced on peer's connection.
func (r *Registry) UpdateIssuer(peer Peer, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[peer.ID()]
	if !ok {
		return false
	}
	e.issuer = name
	return true
}

// Issuer returns the name recorded for peer.
func (r *Registry) Issuer(peer Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[peer.ID()]
	if !ok {
		return "", false
	}
	return e.issuer, true
}

// Contains reports whether peer is registered.
func (r *Registry) Contains(peer Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[peer.ID()]
	return ok
}

// Snapshot returns the registered peers in registration order.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	entries := lo.Values(r.entries)
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(entries, func(e *entry, _ int) Peer { return e.peer })
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
