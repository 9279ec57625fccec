package runtime

import (
	"relay-lab/domain"
	"relay-lab/errors"
	"time"
)

// Group membership is connection-scoped, not user-scoped: a user with three
// connections can have one of them in a group and two outside it. The group
// index shares the registry's mutex, so Remove clears memberships atomically.

// JoinGroup adds the connection to a named group, creating the group on the
// fly. The connection must currently exist.
func (r *Registry) JoinGroup(id domain.ConnID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return errors.ErrConnectionNotFound
	}
	if _, ok := r.groups[group]; !ok {
		r.groups[group] = make(Set)
	}
	r.groups[group][id] = struct{}{}
	return nil
}

// LeaveGroup removes the membership and prunes the group when it empties.
// Leaving an unknown connection/group pair is a no-op.
func (r *Registry) LeaveGroup(id domain.ConnID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

func (r *Registry) ListGroupConnections(group string) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[group]
	if !ok {
		return nil
	}
	ids := make([]domain.ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// ListUserGroups derives the user's groups by intersecting their connection
// set with every group set.
func (r *Registry) ListUserGroups(user domain.UserID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned, ok := r.userConns[user]
	if !ok {
		return nil
	}
	var groups []string
	for name, members := range r.groups {
		for id := range owned {
			if _, in := members[id]; in {
				groups = append(groups, name)
				break
			}
		}
	}
	return groups
}

func (r *Registry) ListGroups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}

func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// GroupStats aggregates connection count, distinct owning users and the most
// recent activity across the group's members.
func (r *Registry) GroupStats(group string) (domain.GroupStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[group]
	if !ok {
		return domain.GroupStats{}, false
	}
	stats := domain.GroupStats{Name: group, Connections: len(members)}
	users := make(map[domain.UserID]struct{})
	var latest time.Time
	for id := range members {
		c, ok := r.conns[id]
		if !ok {
			continue
		}
		users[c.UserID] = struct{}{}
		if c.LastActivity.After(latest) {
			latest = c.LastActivity
		}
	}
	stats.Users = len(users)
	stats.LastActivity = latest
	return stats, true
}
