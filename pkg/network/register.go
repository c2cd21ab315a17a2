// Package network implements the remote connection manager: the
// connections register, dialer loop, acceptor loop, and read
// multiplexer that together maintain a persistent connection to every
// peer in a static-topology overlay.
package network

import (
	"sync"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// Register is the connections register: an in-memory map from peer key
// to the single live connection for that peer, with atomic
// register-if-absent / deregister.
type Register struct {
	mu    sync.Mutex
	conns map[peers.PeerKey]*transport.Connection
}

// NewRegister returns an empty Register.
func NewRegister() *Register {
	return &Register{conns: make(map[peers.PeerKey]*transport.Connection)}
}

// RegisterIfAbsent atomically inserts conn keyed by its remote key. If an
// entry already exists for that key, it is returned unchanged and conn is
// NOT inserted; the caller must close conn.
func (r *Register) RegisterIfAbsent(conn *transport.Connection) (existing *transport.Connection, inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[conn.RemoteKey]; ok {
		return cur, false
	}
	r.conns[conn.RemoteKey] = conn
	return nil, true
}

// Deregister removes conn only if it is still the currently registered
// entry for its key (identity comparison).
func (r *Register) Deregister(conn *transport.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[conn.RemoteKey]; ok && cur == conn {
		delete(r.conns, conn.RemoteKey)
	}
}

// Get returns the live connection for key, if any.
func (r *Register) Get(key peers.PeerKey) (*transport.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[key]
	return c, ok
}

// Keys returns the set of peers currently registered.
func (r *Register) Keys() []peers.PeerKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]peers.PeerKey, 0, len(r.conns))
	for k := range r.conns {
		out = append(out, k)
	}
	return out
}

// Len reports the number of live connections.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
