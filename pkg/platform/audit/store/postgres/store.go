package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	txcontext "edms/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Store implements audit.Store on the audit_entries table and feeds the
// transactional outbox in the same statement batch. UPDATE and DELETE on
// audit_entries are rejected by a database trigger.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON document published to Kafka.
type outboxPayload struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Sequence   int64             `json:"sequence"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata"`
	OccurredAt string            `json:"occurred_at"`
	PrevHash   string            `json:"prev_hash"`
	EntryHash  string            `json:"entry_hash"`
	RequestID  string            `json:"request_id,omitempty"`
}

// Append inserts the entry and its outbox row.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	payload, err := json.Marshal(outboxPayload{
		ID:         entry.ID,
		DocumentID: entry.DocumentID,
		Sequence:   entry.Sequence,
		ActorID:    entry.ActorID,
		Action:     string(entry.Action),
		Metadata:   entry.Metadata,
		OccurredAt: entry.OccurredAt.UTC().Format(time.RFC3339Nano),
		PrevHash:   entry.PrevHash,
		EntryHash:  entry.EntryHash,
		RequestID:  entry.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, document_id, sequence, actor_id, action, metadata,
			occurred_at, prev_hash, entry_hash, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.DocumentID, entry.Sequence, entry.ActorID, string(entry.Action), metadata,
		entry.OccurredAt, entry.PrevHash, entry.EntryHash, entry.RequestID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "audit_entries_pkey" {
				return fmt.Errorf("audit entry %s: %w", entry.ID, sentinel.ErrImmutable)
			}
			return fmt.Errorf("audit sequence %d for %s: %w", entry.Sequence, entry.DocumentID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (entry_id, document_id, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.DocumentID, string(entry.Action), payload, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

const selectEntries = `
	SELECT id, document_id, sequence, actor_id, action, metadata,
		   occurred_at, prev_hash, entry_hash, request_id
	FROM audit_entries
`

// ListByDocument returns a document's entries ordered by sequence.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectEntries+` WHERE document_id = $1 ORDER BY sequence`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Last returns the highest-sequence entry of a document.
func (s *Store) Last(ctx context.Context, documentID string) (audit.Entry, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectEntries+` WHERE document_id = $1 ORDER BY sequence DESC LIMIT 1`, documentID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Entry{}, sentinel.ErrNotFound
	}
	return entry, err
}

// DocumentIDs lists every document that has at least one entry.
func (s *Store) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT DISTINCT document_id FROM audit_entries ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("query audited documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan audited document: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (audit.Entry, error) {
	var (
		entry    audit.Entry
		action   string
		metadata []byte
	)
	err := row.Scan(
		&entry.ID, &entry.DocumentID, &entry.Sequence, &entry.ActorID, &action, &metadata,
		&entry.OccurredAt, &entry.PrevHash, &entry.EntryHash, &entry.RequestID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return audit.Entry{}, err
		}
		return audit.Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	entry.Action = audit.Action(action)
	entry.OccurredAt = entry.OccurredAt.UTC()
	entry.Metadata = map[string]string{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return audit.Entry{}, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return entry, nil
}

// -----------------------------------------------------------------------------
// Outbox
// -----------------------------------------------------------------------------

// FetchUnpublished returns up to limit outbox rows in insertion order.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, document_id, action, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var records []audit.OutboxRecord
	for rows.Next() {
		var (
			rec    audit.OutboxRecord
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.EntryID, &rec.DocumentID, &action, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit outbox: %w", err)
		}
		rec.Action = audit.Action(action)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outbox: %w", err)
	}
	return records, nil
}

// MarkPublished stamps the given outbox rows as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_outbox SET published_at = $2
		WHERE id = ANY($1::bigint[]) AND published_at IS NULL
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
