package runtime

import (
	"relay-lab/domain"
	"relay-lab/errors"
	"sync"
	"time"
)

type Set map[domain.ConnID]struct{}

// Registry is the authoritative in-memory map of live connections, plus the
// two indexes derived from it: user -> connections and group -> connections.
// All three live under one mutex so that removing a connection clears them
// simultaneously. No transport I/O ever happens while the lock is held.
type Registry struct {
	mu        sync.RWMutex
	timeout   time.Duration
	conns     map[domain.ConnID]*domain.Connection
	userConns map[domain.UserID]Set
	groups    map[string]Set
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout:   timeout,
		conns:     make(map[domain.ConnID]*domain.Connection),
		userConns: make(map[domain.UserID]Set),
		groups:    make(map[string]Set),
	}
}

// Add registers a connection and indexes it under its owner. The id must be
// unused.
func (r *Registry) Add(c *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; ok {
		return errors.ErrConnectionExists
	}
	r.conns[c.ID] = c

	if _, ok := r.userConns[c.UserID]; !ok {
		r.userConns[c.UserID] = make(Set)
	}
	r.userConns[c.UserID][c.ID] = struct{}{}
	return nil
}

// Remove deletes the connection from the primary map, from its owner's set
// and from every group it joined, pruning empty sets so nothing leaks.
// Removing an unknown id is a no-op.
func (r *Registry) Remove(id domain.ConnID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	delete(r.conns, id)
	c.State = domain.StateDisconnected

	if members, ok := r.userConns[c.UserID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.userConns, c.UserID)
		}
	}
	for name, members := range r.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(r.groups, name)
		}
	}
	return *c, true
}

// Get returns a copy; callers never see the registry's own pointer.
func (r *Registry) Get(id domain.ConnID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return *c, true
}

// Touch refreshes the connection's last-activity timestamp. Successful
// activity also ends a delivery-failure streak and clears the error state.
func (r *Registry) Touch(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.LastActivity = time.Now().UTC()
	c.DeliveryFailures = 0
	if c.State == domain.StateError {
		c.State = domain.StateConnected
	}
	return true
}

// errorThreshold is how many consecutive failed writes flag a connection as
// errored. A single failure can be a transient hiccup.
const errorThreshold = 3

// RecordFailure counts a failed write against the connection and flags it as
// errored once the streak reaches the threshold. The state is informational
// only: the connection stays registered until it is disconnected or reaped.
func (r *Registry) RecordFailure(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return
	}
	c.DeliveryFailures++
	if c.DeliveryFailures >= errorThreshold {
		c.State = domain.StateError
	}
}

// IsOnline reports whether the user has at least one connection with
// activity inside the timeout window.
func (r *Registry) IsOnline(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	for id := range r.userConns[user] {
		if c, ok := r.conns[id]; ok && c.ActiveWithin(r.timeout, now) {
			return true
		}
	}
	return false
}

func (r *Registry) ConnectionCount(user domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[user])
}

// UserConnections returns the ids of all of the user's connections.
func (r *Registry) UserConnections(user domain.UserID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.userConns[user]
	if !ok {
		return nil
	}
	ids := make([]domain.ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Users returns every user with at least one registered connection.
func (r *Registry) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserID, 0, len(r.userConns))
	for u := range r.userConns {
		users = append(users, u)
	}
	return users
}

// OnlineUsers counts users with at least one active connection.
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	count := 0
	for _, members := range r.userConns {
		for id := range members {
			if c, ok := r.conns[id]; ok && c.ActiveWithin(r.timeout, now) {
				count++
				break
			}
		}
	}
	return count
}

// ListActive returns a snapshot of connections with activity inside the
// timeout window. It is a lazy copy, not a live view.
func (r *Registry) ListActive() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	var active []domain.Connection
	for _, c := range r.conns {
		if c.ActiveWithin(r.timeout, now) {
			active = append(active, *c)
		}
	}
	return active
}

// Stale returns the ids of connections whose last activity predates the
// timeout window, for the reaper to evict.
func (r *Registry) Stale(now time.Time) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []domain.ConnID
	for id, c := range r.conns {
		if !c.ActiveWithin(r.timeout, now) {
			stale = append(stale, id)
		}
	}
	return stale
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
