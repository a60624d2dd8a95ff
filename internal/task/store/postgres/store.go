package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"edms/internal/task"
	"edms/pkg/platform/sentinel"
	txcontext "edms/pkg/platform/tx"
)

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

func (s *PostgresStore) Create(ctx context.Context, t task.Task) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO review_tasks (id, document_id, assignee_id, assigned_by, status, due_at, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.DocumentID, t.AssigneeID, t.AssignedBy, string(t.Status), t.DueAt, t.CreatedAt, t.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("task %s: %w", t.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const selectTask = `SELECT id, document_id, assignee_id, assigned_by, status, due_at, created_at, completed_at FROM review_tasks`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (task.Task, error) {
	t, err := scanTask(s.execer(ctx).QueryRowContext(ctx, selectTask+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, sentinel.ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) Update(ctx context.Context, t task.Task) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE review_tasks SET status = $2, completed_at = $3 WHERE id = $1
	`, t.ID, string(t.Status), t.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update task: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]task.Task, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectTask+` WHERE status = $1 ORDER BY due_at, id`, string(task.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (task.Task, error) {
	var (
		t           task.Task
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.DocumentID, &t.AssigneeID, &t.AssignedBy, &status, &t.DueAt, &t.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Task{}, err
		}
		return task.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = task.Status(status)
	t.DueAt = t.DueAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	return t, nil
}
