package gateway

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single source of truth for which channels exist and who
// owns them. A connection id is registered at most once and removed the
// instant the underlying channel closes; there are no tombstones.
//
// The connection table is guarded by one mutex held only around each
// mutation, never across an I/O wait.
type Registry struct {
	logger    *slog.Logger
	idleAfter time.Duration

	mu    sync.Mutex
	conns map[string]*Connection
	order []string // connection ids in admission order
}

// NewRegistry creates an empty registry. Connections quieter than
// idleAfter are reported as idle in snapshots; zero disables the check.
func NewRegistry(idleAfter time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:    logger.With("component", "registry"),
		idleAfter: idleAfter,
		conns:     make(map[string]*Connection),
	}
}

// Admit registers a newly opened channel. The only admission check is a
// non-empty owner identity; one owner may hold multiple simultaneous
// connections (multiple devices). On ErrMissingOwner the caller must
// close the channel.
func (r *Registry) Admit(ch Channel, ownerID string) (Connection, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Connection{}, fmt.Errorf("admit: %w", ErrMissingOwner)
	}

	now := time.Now()
	conn := &Connection{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Channel:      ch,
		ConnectedAt:  now,
		LastActiveAt: now,
		Status:       StatusActive,
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.order = append(r.order, conn.ID)
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection admitted",
		"conn_id", conn.ID,
		"owner", ownerID,
		"total", total,
	)

	return *conn, nil
}

// Touch updates liveness for an inbound message and forces the connection
// back to active. Returns a snapshot and false if the id is unknown.
func (r *Registry) Touch(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}

	conn.LastActiveAt = time.Now()
	conn.Status = StatusActive
	return *conn, true
}

// Get returns a snapshot of one connection.
func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return r.snapshot(conn), true
}

// Remove evicts a connection. Idempotent: the removed record is returned
// exactly once so the caller can run cleanup exactly once.
func (r *Registry) Remove(connID string) (Connection, bool) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return Connection{}, false
	}

	delete(r.conns, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	total := len(r.conns)
	r.mu.Unlock()

	removed := *conn
	removed.Status = StatusDisconnected

	r.logger.Info("connection removed",
		"conn_id", connID,
		"owner", removed.OwnerID,
		"total", total,
	)

	return removed, true
}

// ListByOwner returns the owner's connections in admission order.
func (r *Registry) ListByOwner(ownerID string) []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Connection
	for _, id := range r.order {
		conn := r.conns[id]
		if conn.OwnerID == ownerID {
			out = append(out, r.snapshot(conn))
		}
	}
	return out
}

// ListAll returns every registered connection in admission order.
func (r *Registry) ListAll() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Connection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.snapshot(r.conns[id]))
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// snapshot copies a connection, computing idle status. Callers hold r.mu.
func (r *Registry) snapshot(conn *Connection) Connection {
	out := *conn
	if r.idleAfter > 0 && time.Since(conn.LastActiveAt) > r.idleAfter {
		out.Status = StatusIdle
	}
	return out
}
