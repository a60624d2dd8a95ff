// Package lockout stores re-authentication failure counters.
package lockout

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	failures  int
	expiresAt time.Time
}

// InMemoryStore keeps counters in process memory. The window starts at the
// first failure, matching the Redis store's INCR + EXPIRE NX behaviour.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
	now      func() time.Time
}

func NewInMemory(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{counters: make(map[string]counter), now: now}
}

func (s *InMemoryStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.failures++
	s.counters[key] = c
	return c.failures, nil
}

func (s *InMemoryStore) Failures(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !s.now().Before(c.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return c.failures, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
