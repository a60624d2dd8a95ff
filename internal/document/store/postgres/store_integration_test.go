//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"edms/internal/document"
	docpg "edms/internal/document/store/postgres"
	"edms/pkg/platform/sentinel"
	"edms/pkg/testutil/containers"
)

type DocumentStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *docpg.PostgresStore
	now      time.Time
}

func TestDocumentStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(DocumentStoreSuite))
}

func (s *DocumentStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = docpg.New(s.postgres.DB)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *DocumentStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), containers.AllTables...))
}

func (s *DocumentStoreSuite) createDoc(id string) document.Document {
	doc, err := document.NewDraft(id, "Cleaning procedure", "alice", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), doc))
	return doc
}

func (s *DocumentStoreSuite) version(docID, id string, n int) document.Version {
	return document.Version{
		ID:         id,
		DocumentID: docID,
		Number:     n,
		ContentRef: "s3://docs/" + id,
		Checksum:   "sha256:" + id,
		CreatedBy:  "alice",
		CreatedAt:  s.now,
	}
}

func (s *DocumentStoreSuite) TestCreateFindUpdate() {
	ctx := context.Background()
	doc := s.createDoc("SOP-001")

	s.ErrorIs(s.store.Create(ctx, doc), sentinel.ErrAlreadyUsed)

	doc.ApplyTransition(document.StateReview, s.now.Add(time.Hour))
	s.Require().NoError(s.store.Update(ctx, doc))

	got, err := s.store.FindByID(ctx, "SOP-001")
	s.Require().NoError(err)
	s.Equal(document.StateReview, got.State)
	s.False(got.Locked)

	inReview, err := s.store.ListByState(ctx, document.StateReview)
	s.Require().NoError(err)
	s.Len(inReview, 1)

	_, err = s.store.FindByID(ctx, "SOP-404")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *DocumentStoreSuite) TestVersionsAndSupersession() {
	ctx := context.Background()
	s.createDoc("SOP-001")

	_, err := s.store.CurrentVersion(ctx, "SOP-001")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.AddVersion(ctx, s.version("SOP-001", "v1", 1)))
	s.Require().NoError(s.store.AddVersion(ctx, s.version("SOP-001", "v2", 2)))
	s.ErrorIs(s.store.AddVersion(ctx, s.version("SOP-001", "v2b", 2)), sentinel.ErrAlreadyUsed)

	s.Require().NoError(s.store.MarkSuperseded(ctx, "v1", "v2"))

	current, err := s.store.CurrentVersion(ctx, "SOP-001")
	s.Require().NoError(err)
	s.Equal("v2", current.ID)

	v1, err := s.store.FindVersion(ctx, "v1")
	s.Require().NoError(err)
	s.Equal("v2", v1.SupersededBy)

	versions, err := s.store.ListVersions(ctx, "SOP-001")
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.Equal(1, versions[0].Number)
}
