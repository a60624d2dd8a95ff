package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"edms/internal/signature"
	"edms/pkg/platform/sentinel"
	txcontext "edms/pkg/platform/tx"
)

// PostgresStore persists signature events. The signatures table rejects
// UPDATE and DELETE through a trigger.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, ev signature.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO signatures (
			id, document_id, version_id, signer_id, outcome, meaning, signature_hash, signed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.ID, ev.DocumentID, ev.VersionID, ev.SignerID, ev.Outcome, ev.Meaning, ev.SignatureHash, ev.SignedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("signature %s: %w", ev.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID string) ([]signature.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, document_id, version_id, signer_id, outcome, meaning, signature_hash, signed_at
		FROM signatures
		WHERE document_id = $1
		ORDER BY signed_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var events []signature.Event
	for rows.Next() {
		var ev signature.Event
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &ev.VersionID, &ev.SignerID, &ev.Outcome, &ev.Meaning, &ev.SignatureHash, &ev.SignedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		ev.SignedAt = ev.SignedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return events, nil
}
