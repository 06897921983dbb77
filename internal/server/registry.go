// Package server tracks which user identities currently hold a live
// connection through the Registry type. The registry is the authoritative
// routing table for message delivery: exactly one connection per identity is
// routable at a time.
package server

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps user identities to their current live session. All operations
// are safe under unbounded concurrent callers; a later Register for the same
// identity overwrites the prior entry (last writer wins).
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]session
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]session)}
}

// Register upserts the session as the routable connection for its identity.
// It returns the displaced session when a prior connection for the same
// identity existed, nil otherwise.
func (r *Registry) Register(s session) session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.userID()]
	r.sessions[s.userID()] = s
	if prev != nil && prev.handle() == s.handle() {
		return nil
	}
	return prev
}

// Unregister removes the session's identity from the registry, but only while
// the given session is still the current entry. A stale unregister from an
// overwritten connection leaves the newer entry intact and returns false.
func (r *Registry) Unregister(s session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.userID()]
	if !ok || current.handle() != s.handle() {
		return false
	}
	delete(r.sessions, s.userID())
	return true
}

// Lookup returns the current routable session for an identity, if any.
func (r *Registry) Lookup(id int64) (session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns the set of currently connected identities, sorted
// ascending. The snapshot is transient and recomputed on every call.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.sessions)
	slices.Sort(ids)
	return ids
}

// Len returns the number of connected identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// connections returns a point-in-time slice of every registered session.
func (r *Registry) connections() []session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}
