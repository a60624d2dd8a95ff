package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"edms/internal/printing"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

type copyKey struct {
	documentID string
	versionID  string
	number     int
}

// InMemoryStore keeps print events and the copy registry in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	events  map[string]printing.Event
	order   []string
	copies  map[copyKey]printing.Copy
	maxCopy map[[2]string]int
}

func New() *InMemoryStore {
	return &InMemoryStore{
		events:  make(map[string]printing.Event),
		copies:  make(map[copyKey]printing.Copy),
		maxCopy: make(map[[2]string]int),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, ev printing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return fmt.Errorf("print event %s: %w", ev.ID, sentinel.ErrAlreadyUsed)
	}
	s.events[ev.ID] = ev.Clone()
	s.order = append(s.order, ev.ID)
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.events, ev.ID)
		if i := slices.Index(s.order, ev.ID); i >= 0 {
			s.order = slices.Delete(s.order, i, i+1)
		}
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (printing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return printing.Event{}, sentinel.ErrNotFound
	}
	return ev.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, ev printing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.events[ev.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Reconciled {
		return fmt.Errorf("print event %s: %w", ev.ID, sentinel.ErrImmutable)
	}
	s.events[ev.ID] = ev.Clone()
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events[prev.ID] = prev
	})
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]printing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []printing.Event
	for _, id := range s.order {
		if ev := s.events[id]; ev.DocumentID == documentID {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) RegisterCopy(ctx context.Context, c printing.Copy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := copyKey{c.DocumentID, c.VersionID, c.CopyNumber}
	if _, exists := s.copies[key]; exists {
		return fmt.Errorf("copy %d of %s/%s: %w", c.CopyNumber, c.DocumentID, c.VersionID, sentinel.ErrAlreadyUsed)
	}
	version := [2]string{c.DocumentID, c.VersionID}
	prevMax := s.maxCopy[version]
	s.copies[key] = c
	if c.CopyNumber > prevMax {
		s.maxCopy[version] = c.CopyNumber
	}
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.copies, key)
		s.maxCopy[version] = prevMax
	})
	return nil
}

func (s *InMemoryStore) MaxCopyNumber(_ context.Context, documentID, versionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCopy[[2]string{documentID, versionID}], nil
}
