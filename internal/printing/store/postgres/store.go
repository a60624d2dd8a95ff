package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"edms/internal/printing"
	"edms/pkg/platform/sentinel"
	txcontext "edms/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists print events in print_events and the copy registry
// in print_copies, whose primary key is (document_id, version_id, copy_number).
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, ev printing.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO print_events (id, document_id, version_id, requested_by, quantity, issued_quantity,
			copy_numbers, reconciled, returned_copies, created_at, reconciled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ev.ID, ev.DocumentID, ev.VersionID, ev.RequestedBy, ev.Quantity, ev.IssuedQuantity,
		pq.Array(toInt64(ev.CopyNumbers)), ev.Reconciled, pq.Array(toInt64(ev.ReturnedCopies)), ev.CreatedAt, ev.ReconciledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("print event %s: %w", ev.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert print event: %w", err)
	}
	return nil
}

const selectEvent = `
	SELECT id, document_id, version_id, requested_by, quantity, issued_quantity,
		copy_numbers, reconciled, returned_copies, created_at, reconciled_at
	FROM print_events`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (printing.Event, error) {
	ev, err := scanEvent(s.execer(ctx).QueryRowContext(ctx, selectEvent+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return printing.Event{}, sentinel.ErrNotFound
	}
	return ev, err
}

// Update rewrites the mutable counters. Reconciled rows are frozen.
func (s *PostgresStore) Update(ctx context.Context, ev printing.Event) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE print_events
		SET issued_quantity = $2, copy_numbers = $3, reconciled = $4, returned_copies = $5, reconciled_at = $6
		WHERE id = $1 AND NOT reconciled
	`, ev.ID, ev.IssuedQuantity, pq.Array(toInt64(ev.CopyNumbers)), ev.Reconciled,
		pq.Array(toInt64(ev.ReturnedCopies)), ev.ReconciledAt)
	if err != nil {
		return fmt.Errorf("update print event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update print event: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, ev.ID); err != nil {
			return err
		}
		return fmt.Errorf("print event %s: %w", ev.ID, sentinel.ErrImmutable)
	}
	return nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID string) ([]printing.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectEvent+` WHERE document_id = $1 ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list print events: %w", err)
	}
	defer rows.Close()

	var out []printing.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RegisterCopy(ctx context.Context, c printing.Copy) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO print_copies (document_id, version_id, copy_number, event_id, issued_by, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.DocumentID, c.VersionID, c.CopyNumber, c.EventID, c.IssuedBy, c.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("copy %d of %s/%s: %w", c.CopyNumber, c.DocumentID, c.VersionID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("register copy: %w", err)
	}
	return nil
}

func (s *PostgresStore) MaxCopyNumber(ctx context.Context, documentID, versionID string) (int, error) {
	var max int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(copy_number), 0) FROM print_copies WHERE document_id = $1 AND version_id = $2
	`, documentID, versionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max copy number: %w", err)
	}
	return max, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (printing.Event, error) {
	var (
		ev           printing.Event
		copies       []int64
		returned     []int64
		reconciledAt sql.NullTime
	)
	err := row.Scan(&ev.ID, &ev.DocumentID, &ev.VersionID, &ev.RequestedBy, &ev.Quantity, &ev.IssuedQuantity,
		pq.Array(&copies), &ev.Reconciled, pq.Array(&returned), &ev.CreatedAt, &reconciledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return printing.Event{}, err
		}
		return printing.Event{}, fmt.Errorf("scan print event: %w", err)
	}
	ev.CopyNumbers = toInt(copies)
	ev.ReturnedCopies = toInt(returned)
	ev.CreatedAt = ev.CreatedAt.UTC()
	if reconciledAt.Valid {
		at := reconciledAt.Time.UTC()
		ev.ReconciledAt = &at
	}
	return ev, nil
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, n := range in {
		out[i] = int64(n)
	}
	return out
}

func toInt(in []int64) []int {
	if len(in) == 0 {
		return nil
	}
	out := make([]int, len(in))
	for i, n := range in {
		out[i] = int(n)
	}
	return out
}

