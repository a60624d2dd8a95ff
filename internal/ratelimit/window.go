// Package ratelimit throttles unauthenticated endpoints per client.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set on rejection.
	RetryAfter time.Duration
}

// Window is an in-memory sliding-window limiter. It is per process; a
// multi-replica deployment multiplies the effective limit by the replica count.
type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string][]time.Time
}

func NewWindow(limit int, window time.Duration, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{
		limit:   limit,
		window:  window,
		now:     now,
		buckets: make(map[string][]time.Time),
	}
}

// Allow admits one request for key if fewer than limit were admitted within
// the trailing window.
func (w *Window) Allow(key string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	stamps := prune(w.buckets[key], now.Add(-w.window))

	if len(stamps) >= w.limit {
		w.buckets[key] = stamps
		reset := stamps[0].Add(w.window)
		return Result{Allowed: false, Limit: w.limit, ResetAt: reset, RetryAfter: reset.Sub(now)}
	}
	stamps = append(stamps, now)
	w.buckets[key] = stamps
	return Result{
		Allowed:   true,
		Limit:     w.limit,
		Remaining: w.limit - len(stamps),
		ResetAt:   stamps[0].Add(w.window),
	}
}

// Sweep drops keys with no admissions inside the window.
func (w *Window) Sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.window)
	for key, stamps := range w.buckets {
		if stamps = prune(stamps, cutoff); len(stamps) == 0 {
			delete(w.buckets, key)
		} else {
			w.buckets[key] = stamps
		}
	}
}

func (w *Window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buckets)
}

// prune drops timestamps at or before cutoff. stamps is in ascending order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
