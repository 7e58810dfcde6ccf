// Package chatws carries the live chat over a WebSocket.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks open chat connections by connection ID.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]*websocket.Conn)}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// Register adds conn under connID, closing any connection it replaces.
func (h *Hub) Register(connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.active[connID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	h.active[connID] = conn
	slog.Info("Chat connection registered", "conn_id", connID)
}

// Unregister removes conn if it is still the one registered under connID.
func (h *Hub) Unregister(connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[connID]; ok && current == conn {
		delete(h.active, connID)
		slog.Info("Chat connection unregistered", "conn_id", connID)
	}
}

// CloseAll closes every open connection. It runs on logout and shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.active {
		_ = conn.Close(websocket.StatusGoingAway, reason)
		slog.Info("Chat connection closed", "conn_id", id)
	}
	h.active = make(map[string]*websocket.Conn)
}
