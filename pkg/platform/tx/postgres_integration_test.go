//go:build integration

package tx_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/tx"
	"edms/pkg/testutil/containers"
)

type PostgresRunnerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	runner   *tx.Postgres
}

func TestPostgresRunnerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRunnerSuite))
}

func (s *PostgresRunnerSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.runner = tx.NewPostgres(s.postgres.DB, 2*time.Second)
}

func (s *PostgresRunnerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), containers.AllTables...))
}

func (s *PostgresRunnerSuite) insertUser(ctx context.Context, id string) error {
	sqlTx, ok := tx.From(ctx)
	s.Require().True(ok, "runner must expose its transaction")
	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO users (id, roles, secret_hash, created_at) VALUES ($1, '{author}', 'x', now())
	`, id)
	return err
}

func (s *PostgresRunnerSuite) countUsers() int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT count(*) FROM users`).Scan(&n))
	return n
}

func (s *PostgresRunnerSuite) TestCommitsOnSuccess() {
	err := s.runner.RunInTx(context.Background(), "SOP-001", func(ctx context.Context) error {
		return s.insertUser(ctx, "alice")
	})
	s.Require().NoError(err)
	s.Equal(1, s.countUsers())
}

func (s *PostgresRunnerSuite) TestRollsBackOnError() {
	boom := errors.New("boom")
	err := s.runner.RunInTx(context.Background(), "SOP-001", func(ctx context.Context) error {
		s.Require().NoError(s.insertUser(ctx, "alice"))
		return boom
	})
	s.ErrorIs(err, boom)
	s.Zero(s.countUsers())
}

func (s *PostgresRunnerSuite) TestSameKeyIsSerialized() {
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.RunInTx(context.Background(), "SOP-001", func(ctx context.Context) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(20 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()
	s.Equal(int32(1), maxInside.Load())
}

func (s *PostgresRunnerSuite) TestNestedSameKeyReenters() {
	err := s.runner.RunInTx(context.Background(), "SOP-001", func(ctx context.Context) error {
		return s.runner.RunInTx(ctx, "SOP-001", func(ctx context.Context) error {
			return s.insertUser(ctx, "alice")
		})
	})
	s.Require().NoError(err)
	s.Equal(1, s.countUsers())
}

func (s *PostgresRunnerSuite) TestLockWaitTimesOut() {
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.runner.RunInTx(context.Background(), "SOP-001", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.runner.RunInTx(ctx, "SOP-001", func(context.Context) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout), "got %v", err)
}
