package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"edms/internal/identity"
	"edms/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]identity.User
}

func New() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]identity.User)}
}

func (s *InMemoryStore) Create(_ context.Context, u identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrAlreadyUsed)
	}
	u.Roles = slices.Clone(u.Roles)
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return identity.User{}, sentinel.ErrNotFound
	}
	u.Roles = slices.Clone(u.Roles)
	return u, nil
}
