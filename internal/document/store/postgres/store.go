package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"edms/internal/document"
	"edms/pkg/platform/sentinel"
	txcontext "edms/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists documents and versions in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, doc document.Document) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (id, title, owner_id, state, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.Title, doc.OwnerID, string(doc.State), doc.Locked, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const selectDocument = `SELECT id, title, owner_id, state, locked, created_at, updated_at FROM documents`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (document.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectDocument+` WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, sentinel.ErrNotFound
	}
	return doc, err
}

func (s *PostgresStore) Update(ctx context.Context, doc document.Document) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE documents SET title = $2, state = $3, locked = $4, updated_at = $5
		WHERE id = $1
	`, doc.ID, doc.Title, string(doc.State), doc.Locked, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByState(ctx context.Context, state document.State) ([]document.Document, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectDocument+` WHERE state = $1 ORDER BY id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) AddVersion(ctx context.Context, v document.Version) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO document_versions (
			id, document_id, version_number, content_ref, checksum, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.DocumentID, v.Number, v.ContentRef, v.Checksum, v.CreatedBy, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("version %d of %s: %w", v.Number, v.DocumentID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

const selectVersion = `
	SELECT id, document_id, version_number, content_ref, checksum, created_by, created_at,
		   COALESCE(superseded_by, '')
	FROM document_versions
`

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]document.Version, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectVersion+` WHERE document_id = $1 ORDER BY version_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var versions []document.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func (s *PostgresStore) CurrentVersion(ctx context.Context, documentID string) (document.Version, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectVersion+` WHERE document_id = $1 ORDER BY version_number DESC LIMIT 1`, documentID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Version{}, sentinel.ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) FindVersion(ctx context.Context, versionID string) (document.Version, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectVersion+` WHERE id = $1`, versionID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Version{}, sentinel.ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) MarkSuperseded(ctx context.Context, versionID, supersededBy string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE document_versions SET superseded_by = $2
		WHERE id = $1 AND superseded_by IS NULL
	`, versionID, supersededBy)
	if err != nil {
		return fmt.Errorf("mark version superseded: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, findErr := s.FindVersion(ctx, versionID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("version %s already superseded: %w", versionID, sentinel.ErrImmutable)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (document.Document, error) {
	var (
		doc   document.Document
		state string
	)
	if err := row.Scan(&doc.ID, &doc.Title, &doc.OwnerID, &state, &doc.Locked, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Document{}, err
		}
		return document.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.State = document.State(state)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func scanVersion(row scanner) (document.Version, error) {
	var v document.Version
	err := row.Scan(&v.ID, &v.DocumentID, &v.Number, &v.ContentRef, &v.Checksum, &v.CreatedBy, &v.CreatedAt, &v.SupersededBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Version{}, err
		}
		return document.Version{}, fmt.Errorf("scan version: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}
