package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "edms/pkg/domain-errors"
)

// Postgres runs units of work in a database transaction that first takes a
// transaction-scoped advisory lock on the key. The lock works for keys with
// no row yet (create_draft) and is released by COMMIT or ROLLBACK.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB, timeout time.Duration) *Postgres {
	return &Postgres{db: db, timeout: timeout}
}

func (p *Postgres) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if sqlTx, ok := From(ctx); ok {
		if held, _ := Held(ctx); held == key {
			return fn(ctx)
		}
		if err := advisoryLock(ctx, sqlTx, key); err != nil {
			return err
		}
		return fn(withHeld(ctx, key))
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	lockCtx, cancel := withDefaultDeadline(ctx, p.timeout)
	defer cancel()

	// The transaction outlives the lock deadline: only the lock wait is bounded.
	baseCtx := context.WithoutCancel(ctx)
	sqlTx, err := p.db.BeginTx(baseCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := advisoryLock(lockCtx, sqlTx, key); err != nil {
		return err
	}

	runCtx := withHeld(WithTx(baseCtx, sqlTx), key)
	if err := fn(runCtx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}

func advisoryLock(ctx context.Context, sqlTx *sql.Tx, key string) error {
	_, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for document lock")
	}
	return dErrors.Wrap(fmt.Errorf("advisory lock %q: %w", key, err), dErrors.CodeInternal, "failed to lock document")
}
