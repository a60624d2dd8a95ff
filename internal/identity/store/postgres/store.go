package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"edms/internal/identity"
	"edms/internal/rbac"
	"edms/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, u identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, roles, secret_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, pq.Array(rbac.Names(u.Roles)), u.SecretHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (identity.User, error) {
	var (
		u     identity.User
		roles pq.StringArray
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, roles, secret_hash, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &roles, &u.SecretHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, sentinel.ErrNotFound
		}
		return identity.User{}, fmt.Errorf("find user: %w", err)
	}
	parsed, err := rbac.ParseRoles(roles)
	if err != nil {
		return identity.User{}, fmt.Errorf("stored roles of %s: %w", id, err)
	}
	u.Roles = parsed
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
