// Package registry tracks which users currently hold live connections.
// It is fully in-memory and rebuilt empty on process restart, so every
// user appears offline after a restart until they reconnect.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// Conn is a live transport connection bound to a user. The hub's
// websocket client implements it; tests use fakes.
type Conn interface {
	Push(ctx context.Context, msg *models.Message) error
}

// Registry maps user identities to their live connections. One user may
// hold multiple concurrent connections (multi-tab, multi-device); all of
// them receive pushed messages.
type Registry struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]map[Conn]struct{}
	lastSeen map[uuid.UUID]time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[uuid.UUID]map[Conn]struct{}),
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

// Register binds a connection to a user and updates presence.
func (r *Registry) Register(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
	r.lastSeen[userID] = time.Now()
}

// Unregister removes a connection. Unregistering a connection that is
// not registered is a no-op, not an error.
func (r *Registry) Unregister(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
	r.lastSeen[userID] = time.Now()
}

// ConnectionsFor returns the live connections for a user. The slice is a
// snapshot; an empty result means the user is offline.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Touch updates the presence timestamp for a user.
func (r *Registry) Touch(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen[userID] = time.Now()
}

// LastSeen returns the last presence timestamp for a user, or the zero
// time if the user was never seen since process start.
func (r *Registry) LastSeen(userID uuid.UUID) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen[userID]
}

// OnlineCount returns the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
