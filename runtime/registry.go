package runtime

import (
	"helpdesk-chat/contract"
	"sort"
	"sync"
)

// Registry is the in-memory presence directory: identity -> live connection.
// It is owned by main and shared by reference; every check-and-act runs under
// the single write lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Connection // map user -> connection
	owners   map[string]string              // map connection ID -> user
}

var _ contract.IRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.Connection),
		owners:   make(map[string]string),
	}
}

// Register binds userID to conn, replacing any previous connection of that user.
// The replaced connection is not closed. A connection announcing another identity
// gives up the identity it was bound to.
func (r *Registry) Register(userID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.sessions[userID]; ok {
		delete(r.owners, previous.ID())
	}
	if formerUser, ok := r.owners[conn.ID()]; ok && formerUser != userID {
		delete(r.sessions, formerUser)
	}
	r.sessions[userID] = conn
	r.owners[conn.ID()] = userID
}

// Unregister removes the user whatever connection it is bound to.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbind(userID)
}

// UnregisterIfStillBound removes the user only if it is still bound to conn.
// A reconnection in between rebinds the user and makes this a no-op.
func (r *Registry) UnregisterIfStillBound(userID string, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	return r.unbind(userID)
}

func (r *Registry) unbind(userID string) bool {
	conn, ok := r.sessions[userID]
	if !ok {
		return false
	}
	delete(r.sessions, userID)
	delete(r.owners, conn.ID())
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

func (r *Registry) Lookup(userID string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[userID]
	return conn, ok
}

// BoundUser is the reverse lookup used when a transport closes.
func (r *Registry) BoundUser(conn contract.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[conn.ID()]
	return userID, ok
}

// Snapshot returns the online identities, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
