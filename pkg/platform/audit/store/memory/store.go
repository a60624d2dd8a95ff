package memory

import (
	"context"
	"fmt"
	"sync"

	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

// InMemoryStore keeps per-document audit chains. Entries are copied on the way
// in and out so nothing outside the store can alter a recorded entry.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]audit.Entry
	ids     map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string][]audit.Entry),
		ids:     make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[entry.ID]; exists {
		return fmt.Errorf("audit entry %s: %w", entry.ID, sentinel.ErrImmutable)
	}
	chain := s.entries[entry.DocumentID]
	if want := int64(len(chain) + 1); entry.Sequence != want {
		return fmt.Errorf("audit sequence %d for %s, next is %d: %w",
			entry.Sequence, entry.DocumentID, want, sentinel.ErrAlreadyUsed)
	}

	s.entries[entry.DocumentID] = append(chain, entry.Clone())
	s.ids[entry.ID] = struct{}{}

	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		chain := s.entries[entry.DocumentID]
		if n := len(chain); n > 0 && chain[n-1].ID == entry.ID {
			s.entries[entry.DocumentID] = chain[:n-1]
			if len(s.entries[entry.DocumentID]) == 0 {
				delete(s.entries, entry.DocumentID)
			}
		}
		delete(s.ids, entry.ID)
	})
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.entries[documentID]
	out := make([]audit.Entry, len(chain))
	for i, e := range chain {
		out[i] = e.Clone()
	}
	return out, nil
}

func (s *InMemoryStore) Last(_ context.Context, documentID string) (audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.entries[documentID]
	if len(chain) == 0 {
		return audit.Entry{}, sentinel.ErrNotFound
	}
	return chain[len(chain)-1].Clone(), nil
}

// DocumentIDs lists every document that has at least one entry.
func (s *InMemoryStore) DocumentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids, nil
}
