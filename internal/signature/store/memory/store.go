package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"edms/internal/signature"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]signature.Event
	ids    map[string]struct{}
}

func New() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[string][]signature.Event),
		ids:    make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, ev signature.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[ev.ID]; exists {
		return fmt.Errorf("signature %s: %w", ev.ID, sentinel.ErrAlreadyUsed)
	}
	s.events[ev.DocumentID] = append(s.events[ev.DocumentID], ev)
	s.ids[ev.ID] = struct{}{}

	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.events[ev.DocumentID]
		if n := len(list); n > 0 && list[n-1].ID == ev.ID {
			s.events[ev.DocumentID] = list[:n-1]
		}
		delete(s.ids, ev.ID)
	})
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]signature.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[documentID]), nil
}
