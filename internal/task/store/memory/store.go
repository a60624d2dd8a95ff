package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"edms/internal/task"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]task.Task
}

func New() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]task.Task)}
}

func (s *InMemoryStore) Create(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, sentinel.ErrAlreadyUsed)
	}
	s.tasks[t.ID] = t
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tasks, t.ID)
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, sentinel.ErrNotFound
	}
	return t, nil
}

func (s *InMemoryStore) Update(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[t.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.tasks[t.ID] = t
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tasks[prev.ID] = prev
	})
	return nil
}

// ListPending returns pending tasks ordered by due date.
func (s *InMemoryStore) ListPending(_ context.Context) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.Status == task.StatusPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out, nil
}
