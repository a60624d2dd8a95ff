// Package tx carries the unit of work for one engine operation.
//
// Every mutating operation runs inside Runner.RunInTx, keyed by the document
// it touches. The runner owns the per-document critical section and makes the
// state change and its audit entries commit or roll back together. Stores
// discover the active unit of work from the context: Postgres stores use the
// *sql.Tx, in-memory stores register undo steps on the Journal.
package tx

import (
	"context"
	"database/sql"
	"time"
)

// Runner executes fn as one atomic, per-key serialized unit of work.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// DefaultTimeout bounds how long a caller waits for a critical section when
// its context has no deadline of its own.
const DefaultTimeout = 5 * time.Second

type (
	sqlTxKey   struct{}
	journalKey struct{}
	heldKey    struct{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlTxKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx, ok
}

// Journal collects undo steps for in-memory stores.
type Journal struct {
	undo []func()
}

// OnRollback registers a step that reverses a write already applied.
func (j *Journal) OnRollback(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *Journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// WithJournal attaches an undo journal to the context.
func WithJournal(ctx context.Context, j *Journal) context.Context {
	return context.WithValue(ctx, journalKey{}, j)
}

// JournalFrom extracts the undo journal if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok
}

// RecordUndo registers fn on the context's journal. Outside a unit of work
// writes are final and fn is dropped.
func RecordUndo(ctx context.Context, fn func()) {
	if j, ok := JournalFrom(ctx); ok {
		j.OnRollback(fn)
	}
}

func withHeld(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, heldKey{}, key)
}

// Held returns the key of the critical section the context is running in.
func Held(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(heldKey{}).(string)
	return key, ok
}

func withDefaultDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
