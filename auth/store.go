package auth

import (
	"context"
	"relay-lab/domain"
	"sync"
)

// Store is the in-process authorization service: capabilities extracted from
// a validated token are granted here at connect time and looked up by the
// hub on every permission check. It implements contract.Authorizer.
type Store struct {
	mu     sync.RWMutex
	grants map[domain.UserID]map[string]struct{}
}

func NewStore() *Store {
	return &Store{grants: make(map[domain.UserID]map[string]struct{})}
}

// Grant records the user's capabilities, replacing any previous grant.
func (s *Store) Grant(user domain.UserID, capabilities ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	s.grants[user] = caps
}

// Revoke drops every capability of the user.
func (s *Store) Revoke(user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, user)
}

func (s *Store) HasPermission(_ context.Context, user domain.UserID, capability string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps, ok := s.grants[user]
	if !ok {
		return false
	}
	_, ok = caps[capability]
	return ok
}
