package audit_test

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/audit/mocks"
	"edms/pkg/platform/audit/store/memory"
	"edms/pkg/platform/sentinel"
	"edms/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.InMemoryStore
	ledger *audit.Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.store = memory.NewInMemoryStore()
	s.ledger = audit.NewLedger(s.store, audit.WithMetrics(audit.NewMetrics(prometheus.NewRegistry())))
}

func (s *LedgerSuite) TestAppendChainsEntries() {
	first, err := s.ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionDraftCreated})
	s.Require().NoError(err)
	second, err := s.ledger.Append(s.ctx, audit.Event{
		DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionVersionCreated,
		Metadata: map[string]string{"version_number": "2"},
	})
	s.Require().NoError(err)

	s.Equal(int64(1), first.Sequence)
	s.Equal(audit.GenesisHash, first.PrevHash)
	s.Equal(int64(2), second.Sequence)
	s.Equal(first.EntryHash, second.PrevHash)
	s.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), second.OccurredAt)
	s.NoError(s.ledger.Verify(s.ctx, "SOP-1"))
}

func (s *LedgerSuite) TestAppendRejectsUnknownAction() {
	_, err := s.ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: "document_deleted"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	entries, err := s.ledger.ListByDocument(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *LedgerSuite) TestAppendRequiresActorAndDocument() {
	_, err := s.ledger.Append(s.ctx, audit.Event{ActorID: "alice", Action: audit.ActionDraftCreated})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", Action: audit.ActionDraftCreated})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerSuite) TestEntriesCannotBeMutatedThroughReturnedValues() {
	meta := map[string]string{"reason": "typo"}
	entry, err := s.ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionDraftCreated, Metadata: meta})
	s.Require().NoError(err)

	meta["reason"] = "changed"
	entry.Metadata["reason"] = "changed"

	entries, err := s.ledger.ListByDocument(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Equal("typo", entries[0].Metadata["reason"])
	entries[0].Metadata["reason"] = "changed"

	again, err := s.ledger.ListByDocument(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Equal("typo", again[0].Metadata["reason"])
}

func (s *LedgerSuite) TestDuplicateEntryIDIsRejected() {
	ledger := audit.NewLedger(s.store, audit.WithIDGenerator(func() string { return "fixed" }))
	_, err := ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionDraftCreated})
	s.Require().NoError(err)

	_, err = ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-2", ActorID: "alice", Action: audit.ActionDraftCreated})
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *LedgerSuite) TestFailedPersistenceIsReported() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Last(gomock.Any(), "SOP-1").Return(audit.Entry{}, sentinel.ErrNotFound)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	ledger := audit.NewLedger(store)
	_, err := ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionDraftCreated})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *LedgerSuite) TestAppendLogsOnlyAtDebug() {
	var buf bytes.Buffer
	ledger := audit.NewLedger(s.store, audit.WithLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))))

	_, err := ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionDraftCreated})
	s.Require().NoError(err)
	s.Empty(buf.String(), "staged entries are not announced before commit")

	buf.Reset()
	ledger = audit.NewLedger(s.store, audit.WithLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	_, err = ledger.Append(s.ctx, audit.Event{DocumentID: "SOP-1", ActorID: "alice", Action: audit.ActionVersionCreated})
	s.Require().NoError(err)
	s.Contains(buf.String(), "audit entry staged")
	s.NotContains(buf.String(), `"log_type":"audit"`)
}
