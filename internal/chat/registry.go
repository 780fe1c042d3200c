package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks open chat sockets so the server can report an
// active-connection count and close everything on shutdown. Sockets are not
// bound to a session: the session id rides on frames, and one socket may
// carry several conversations over its lifetime.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*websocket.Conn),
	}
}

// Register adds a socket under its connection id.
func (r *Registry) Register(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[connID] = conn
	slog.Info("Chat connection registered", "conn_id", connID)
}

// Unregister removes a socket. Stale unregisters (a different conn now holds
// the id) are ignored.
func (r *Registry) Unregister(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.active[connID]; exists && current == conn {
		delete(r.active, connID)
		slog.Info("Chat connection unregistered", "conn_id", connID)
	}
}

// Count returns the number of open sockets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every registered socket with a normal closure so clients
// do not attempt to reconnect to a server that is going away on purpose.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID, conn := range r.active {
		_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
		delete(r.active, connID)
		slog.Info("Chat connection closed", "conn_id", connID)
	}
}
