package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"edms/internal/document"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
	s.now = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	doc, err := document.NewDraft("SOP-1", "Gowning", "alice", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, doc))
}

func (s *StoreSuite) version(n int) document.Version {
	return document.Version{ID: "v" + string(rune('0'+n)), DocumentID: "SOP-1", Number: n, CreatedBy: "alice", CreatedAt: s.now}
}

func (s *StoreSuite) TestCreateRejectsDuplicateID() {
	doc, _ := document.NewDraft("SOP-1", "Other", "bob", s.now)
	s.ErrorIs(s.store.Create(s.ctx, doc), sentinel.ErrAlreadyUsed)
}

func (s *StoreSuite) TestVersionsAreGapless() {
	s.Require().NoError(s.store.AddVersion(s.ctx, s.version(1)))
	s.ErrorIs(s.store.AddVersion(s.ctx, s.version(3)), sentinel.ErrAlreadyUsed)
	s.ErrorIs(s.store.AddVersion(s.ctx, s.version(1)), sentinel.ErrAlreadyUsed)
	s.Require().NoError(s.store.AddVersion(s.ctx, s.version(2)))

	current, err := s.store.CurrentVersion(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Equal(2, current.Number)
}

func (s *StoreSuite) TestCurrentVersionOfEmptyDocument() {
	_, err := s.store.CurrentVersion(s.ctx, "SOP-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestMarkSupersededOnce() {
	s.Require().NoError(s.store.AddVersion(s.ctx, s.version(1)))
	s.Require().NoError(s.store.MarkSuperseded(s.ctx, "v1", "v2"))
	s.ErrorIs(s.store.MarkSuperseded(s.ctx, "v1", "v3"), sentinel.ErrImmutable)

	v, err := s.store.FindVersion(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("v2", v.SupersededBy)
}

func (s *StoreSuite) TestFailedUnitOfWorkLeavesNoTrace() {
	runner := tx.NewMemory()
	err := runner.RunInTx(s.ctx, "SOP-1", func(ctx context.Context) error {
		doc, err := s.store.FindByID(ctx, "SOP-1")
		s.Require().NoError(err)
		doc.ApplyTransition(document.StateReview, s.now)
		s.Require().NoError(s.store.Update(ctx, doc))
		s.Require().NoError(s.store.AddVersion(ctx, s.version(1)))
		return errors.New("audit failed")
	})
	s.Require().Error(err)

	doc, err := s.store.FindByID(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Equal(document.StateDraft, doc.State)
	versions, err := s.store.ListVersions(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Empty(versions)
	_, err = s.store.FindVersion(s.ctx, "v1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestListByState() {
	other, _ := document.NewDraft("SOP-2", "Labels", "bob", s.now)
	other.ApplyTransition(document.StateReview, s.now)
	s.Require().NoError(s.store.Create(s.ctx, other))

	inReview, err := s.store.ListByState(s.ctx, document.StateReview)
	s.Require().NoError(err)
	s.Require().Len(inReview, 1)
	s.Equal("SOP-2", inReview[0].ID)
}
