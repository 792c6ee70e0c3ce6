package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// envelope is the frame pushed to dashboards.
type envelope struct {
	Type  string       `json:"type"`
	Alert models.Alert `json:"alert"`
}

// Manager tracks dashboard connections per user and delivers local alerts.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]map[*Connection]struct{}
	pingInterval time.Duration
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]map[*Connection]struct{}),
		pingInterval: pingInterval,
	}
}

// Add registers new connection.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.connections[conn.UserID()]
	if !ok {
		set = make(map[*Connection]struct{})
		m.connections[conn.UserID()] = set
	}
	set[conn] = struct{}{}
}

// Remove removes connection.
func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.connections[conn.UserID()]
	delete(set, conn)
	if len(set) == 0 {
		delete(m.connections, conn.UserID())
	}
}

// Connected returns how many dashboards a user has open and how many of them
// granted notification permission.
func (m *Manager) Connected(userID string) (total, permitted int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for conn := range m.connections[userID] {
		total++
		if conn.Permitted() {
			permitted++
		}
	}
	return total, permitted
}

// SendAlert pushes the alert to every permitted dashboard of the user. It is
// fire-and-forget: success means at least one connection accepted the frame.
func (m *Manager) SendAlert(_ context.Context, userID string, alert models.Alert) error {
	data, err := json.Marshal(envelope{Type: "alert", Alert: alert})
	if err != nil {
		return fmt.Errorf("encode alert: %w", errs.ErrNotification)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.connections[userID]
	if len(set) == 0 {
		return fmt.Errorf("alert for %s: %w", userID, errs.ErrAlertUnavailable)
	}

	var permitted, delivered int
	for conn := range set {
		if !conn.Permitted() {
			continue
		}
		permitted++
		if conn.Send(data) {
			delivered++
		}
	}
	switch {
	case permitted == 0:
		return fmt.Errorf("alert for %s: %w", userID, errs.ErrAlertDenied)
	case delivered == 0:
		return fmt.Errorf("alert for %s: buffers full: %w", userID, errs.ErrAlertUnavailable)
	}
	return nil
}

// PingInterval is the keepalive period of new connections.
func (m *Manager) PingInterval() time.Duration {
	return m.pingInterval
}
