// Package rportfwd implements connection.RemoteForwardManager: the
// in-memory registry of "tcpip-forward" bindings a connection has asked the
// server to listen on, keyed by (shost, sport) per spec.md §3 (SPEC_FULL
// §4.7). It is grounded on the teacher's internal/tunnel.PortPool — a
// mutex-guarded map keyed by a similar (server, port) pair — adapted from a
// pool that hands out ports to a table that just records what the peer
// asked to bind.
package rportfwd

import (
	"fmt"
	"sync"

	"github.com/websoft9/sshcore/internal/connection"
)

type key struct {
	shost string
	sport int
}

// Registry is the concrete connection.RemoteForwardManager backing one
// connection's remote port-forwarding state.
type Registry struct {
	mu   sync.Mutex
	byKey map[key]connection.RemoteForwardTarget
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[key]connection.RemoteForwardTarget)}
}

// Lookup implements connection.RemoteForwardManager.
func (r *Registry) Lookup(shost string, sport int) (connection.RemoteForwardTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byKey[key{shost, sport}]
	return t, ok
}

// Add implements connection.RemoteForwardManager: registers a new binding,
// or rejects it if (shost, sport) is already taken (spec.md §4.3
// "tcpip-forward" handling — a duplicate bind request fails rather than
// silently overwriting the previous target).
func (r *Registry) Add(shost string, sport int, target connection.RemoteForwardTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{shost, sport}
	if _, exists := r.byKey[k]; exists {
		return fmt.Errorf("rportfwd: %s:%d already bound", shost, sport)
	}
	r.byKey[k] = target
	return nil
}

// Remove implements connection.RemoteForwardManager: drops a binding on
// "cancel-tcpip-forward", reporting whether one existed.
func (r *Registry) Remove(shost string, sport int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{shost, sport}
	if _, ok := r.byKey[k]; !ok {
		return false
	}
	delete(r.byKey, k)
	return true
}
