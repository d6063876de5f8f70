// Package live streams challenge ticks over a WebSocket.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the live connection of each user. A user holds at
// most one connection; registering a new one closes the previous.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user.
func (m *SessionManager) GetActive(userID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID]
}

// Register adds conn for userID, closing any connection it replaces.
func (m *SessionManager) Register(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	existing, exists := m.active[userID]
	m.active[userID] = conn
	m.mu.Unlock()

	if exists && existing != conn {
		// Close waits for the peer's close frame; do not block the new session on it.
		go func() {
			_ = existing.Close(websocket.StatusPolicyViolation, "session replaced")
		}()
		slog.Info("Live session replaced", "user_id", userID)
	}
	slog.Info("Live session registered", "user_id", userID)
}

// Unregister removes conn if it is still the user's active connection.
func (m *SessionManager) Unregister(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; ok && current == conn {
		delete(m.active, userID)
		slog.Info("Live session unregistered", "user_id", userID)
	}
}

// Count returns the number of connected users.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll terminates every connection, e.g. on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	conns := m.active
	m.active = make(map[string]*websocket.Conn)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for userID, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Live session closed", "user_id", userID)
		}()
	}
	wg.Wait()
}
