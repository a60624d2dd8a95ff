package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"edms/internal/document"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

// InMemoryStore keeps documents and their versions in process memory. Writes
// made inside a unit of work are undone if that unit fails.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[string]document.Document
	versions  map[string][]document.Version // by document id, in number order
	byID      map[string]versionRef
}

type versionRef struct {
	documentID string
	index      int
}

func New() *InMemoryStore {
	return &InMemoryStore{
		documents: make(map[string]document.Document),
		versions:  make(map[string][]document.Version),
		byID:      make(map[string]versionRef),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrAlreadyUsed)
	}
	s.documents[doc.ID] = doc
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.documents, doc.ID)
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return document.Document{}, sentinel.ErrNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) Update(ctx context.Context, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.documents[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.documents[doc.ID] = doc
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.documents[doc.ID] = prev
	})
	return nil
}

func (s *InMemoryStore) ListByState(_ context.Context, state document.State) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []document.Document
	for _, doc := range s.documents {
		if doc.State == state {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddVersion(ctx context.Context, v document.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[v.DocumentID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, exists := s.byID[v.ID]; exists {
		return fmt.Errorf("version %s: %w", v.ID, sentinel.ErrAlreadyUsed)
	}
	list := s.versions[v.DocumentID]
	if v.Number != len(list)+1 {
		return fmt.Errorf("version number %d of %s: %w", v.Number, v.DocumentID, sentinel.ErrAlreadyUsed)
	}
	s.versions[v.DocumentID] = append(list, v)
	s.byID[v.ID] = versionRef{documentID: v.DocumentID, index: len(list)}

	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.versions[v.DocumentID]
		if n := len(list); n > 0 && list[n-1].ID == v.ID {
			s.versions[v.DocumentID] = list[:n-1]
		}
		delete(s.byID, v.ID)
	})
	return nil
}

func (s *InMemoryStore) ListVersions(_ context.Context, documentID string) ([]document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.versions[documentID]), nil
}

func (s *InMemoryStore) CurrentVersion(_ context.Context, documentID string) (document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.versions[documentID]
	if len(list) == 0 {
		return document.Version{}, sentinel.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (s *InMemoryStore) FindVersion(_ context.Context, versionID string) (document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byID[versionID]
	if !ok {
		return document.Version{}, sentinel.ErrNotFound
	}
	return s.versions[ref.documentID][ref.index], nil
}

func (s *InMemoryStore) MarkSuperseded(ctx context.Context, versionID, supersededBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.byID[versionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	v := &s.versions[ref.documentID][ref.index]
	if v.SupersededBy != "" {
		return fmt.Errorf("version %s already superseded: %w", versionID, sentinel.ErrImmutable)
	}
	v.SupersededBy = supersededBy
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ref, ok := s.byID[versionID]; ok {
			s.versions[ref.documentID][ref.index].SupersededBy = ""
		}
	})
	return nil
}
