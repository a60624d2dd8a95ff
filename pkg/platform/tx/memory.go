package tx

import (
	"context"
	"time"

	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/keylock"
)

// Memory serializes units of work per key with an in-process lock and rolls
// back in-memory writes through a Journal when fn fails.
type Memory struct {
	locks   *keylock.Locker
	timeout time.Duration
}

// MemoryOption configures a Memory runner.
type MemoryOption func(*Memory)

// WithLockTimeout bounds critical-section acquisition when the caller set no deadline.
func WithLockTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.timeout = d
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{locks: keylock.New(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if held, ok := Held(ctx); ok && held == key {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	lockCtx, cancel := withDefaultDeadline(ctx, m.timeout)
	defer cancel()
	unlock, err := m.locks.Lock(lockCtx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for document lock")
	}
	defer unlock()

	// Once the critical section is entered it runs to completion; only the
	// acquisition above honours cancellation.
	journal := &Journal{}
	runCtx := withHeld(WithJournal(context.WithoutCancel(ctx), journal), key)
	if err := fn(runCtx); err != nil {
		journal.rollback()
		return err
	}
	return nil
}
