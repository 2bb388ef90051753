// Package devbot is a small stand-in for the remote chat bot used during
// development and integration tests.
package devbot

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the live connection of every widget session. A newer
// connection for the same session replaces and closes the older one.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*websocket.Conn)}
}

// Get returns the active connection for a session.
func (r *Registry) Get(sessionID string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[sessionID]
}

// Register adds conn for sessionID and closes any connection it replaces.
// The close handshake runs after the lock is released.
func (r *Registry) Register(sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	existing, ok := r.active[sessionID]
	r.active[sessionID] = conn
	r.mu.Unlock()
	slog.Info("Bot session registered", "session_id", sessionID)

	if ok && existing != conn {
		slog.Info("Bot session replaced", "session_id", sessionID)
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
}

// Unregister removes conn if it is still the session's current connection.
func (r *Registry) Unregister(sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[sessionID]; ok && current == conn {
		delete(r.active, sessionID)
		slog.Info("Bot session unregistered", "session_id", sessionID)
	}
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	active := r.active
	r.active = make(map[string]*websocket.Conn)
	r.mu.Unlock()

	for sid, conn := range active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		slog.Info("Bot session closed", "session_id", sid)
	}
}
