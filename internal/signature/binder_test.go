package signature_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"edms/internal/document"
	docmemory "edms/internal/document/store/memory"
	"edms/internal/identity"
	"edms/internal/identity/lockout"
	usermemory "edms/internal/identity/store/memory"
	"edms/internal/lifecycle"
	"edms/internal/rbac"
	"edms/internal/signature"
	sigmemory "edms/internal/signature/store/memory"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	auditmemory "edms/pkg/platform/audit/store/memory"
	"edms/pkg/platform/tx"
	"edms/pkg/requestcontext"
)

const approverSecret = "approver-secret-1"

var (
	author   = rbac.Actor{ID: "alice", Roles: []rbac.Role{rbac.RoleAuthor}}
	approver = rbac.Actor{ID: "carol", Roles: []rbac.Role{rbac.RoleApprover}}
	reviewer = rbac.Actor{ID: "rita", Roles: []rbac.Role{rbac.RoleReviewer}}
)

type BinderSuite struct {
	suite.Suite
	ctx    context.Context
	docs   *docmemory.InMemoryStore
	audits *auditmemory.InMemoryStore
	sigs   *sigmemory.InMemoryStore
	engine *lifecycle.Engine
	binder *signature.Binder
}

func TestBinderSuite(t *testing.T) {
	suite.Run(t, new(BinderSuite))
}

func (s *BinderSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	s.docs = docmemory.New()
	s.audits = auditmemory.NewInMemoryStore()
	s.sigs = sigmemory.New()
	guard := rbac.NewGuard(nil)

	s.engine = lifecycle.New(s.docs, audit.NewLedger(s.audits), guard, tx.NewMemory())
	users := identity.New(usermemory.New(), lockout.NewInMemory(nil), guard)
	_, err := users.Seed(s.ctx, identity.RegisterRequest{UserID: approver.ID, Roles: []string{"approver"}, Secret: approverSecret})
	s.Require().NoError(err)

	s.binder = signature.NewBinder(s.sigs, s.engine, s.docs, users, guard,
		signature.WithRegisterer(prometheus.NewRegistry()))
}

// inReview creates a document with one version and submits it.
func (s *BinderSuite) inReview(id string) document.Version {
	_, err := s.engine.CreateDraft(s.ctx, author, lifecycle.CreateDraftRequest{DocumentID: id, Title: "Batch record"})
	s.Require().NoError(err)
	v, err := s.engine.AddVersion(s.ctx, author, lifecycle.AddVersionRequest{DocumentID: id, ContentRef: "blob://" + id, Checksum: "sha256:01"})
	s.Require().NoError(err)
	_, err = s.engine.SubmitReview(s.ctx, author, id)
	s.Require().NoError(err)
	return v
}

func (s *BinderSuite) approve(id string) (signature.Event, document.Document, error) {
	return s.binder.ApproveWithSignature(s.ctx, approver, signature.ApproveRequest{
		DocumentID: id,
		Meaning:    "Approved for release",
		Credential: approverSecret,
	})
}

func (s *BinderSuite) TestApproveBindsCurrentVersion() {
	s.inReview("SOP-1")
	_, err := s.engine.Reject(s.ctx, reviewer, "SOP-1", "wrong batch size")
	s.Require().NoError(err)
	doc, err := s.engine.ReturnToDraft(s.ctx, author, "SOP-1")
	s.Require().NoError(err)
	s.Equal(document.StateDraft, doc.State)
	latest, err := s.engine.AddVersion(s.ctx, author, lifecycle.AddVersionRequest{DocumentID: "SOP-1", ContentRef: "blob://SOP-1/2", Checksum: "sha256:02"})
	s.Require().NoError(err)
	_, err = s.engine.SubmitReview(s.ctx, author, "SOP-1")
	s.Require().NoError(err)

	ev, doc, err := s.approve("SOP-1")
	s.Require().NoError(err)
	s.Equal(document.StateApproved, doc.State)
	s.True(doc.Locked)
	s.Equal(latest.ID, ev.VersionID)
	s.Equal(signature.OutcomeApproved, ev.Outcome)
	s.Equal(approver.ID, ev.SignerID)
	s.True(ev.Verify())

	stored, err := s.binder.Signatures(s.ctx, "SOP-1")
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(ev, stored[0])
}

func (s *BinderSuite) TestSignatureBindsVersionCurrentInsideCriticalSection() {
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("SOP-R%02d", i)
		s.inReview(id)

		var (
			ev       signature.Event
			added    document.Version
			addedErr error
		)
		var g errgroup.Group
		g.Go(func() error {
			var err error
			ev, _, err = s.approve(id)
			return err
		})
		g.Go(func() error {
			added, addedErr = s.engine.AddVersion(s.ctx, author, lifecycle.AddVersionRequest{
				DocumentID: id, ContentRef: "blob://" + id + "/2", Checksum: "sha256:02",
			})
			return nil
		})
		s.Require().NoError(g.Wait())

		current, err := s.docs.CurrentVersion(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(current.ID, ev.VersionID, "%s: signature names the version current at signing", id)
		if addedErr == nil {
			s.Equal(added.ID, ev.VersionID, "%s: a version added first is the one signed", id)
		} else {
			s.True(dErrors.HasCode(addedErr, dErrors.CodeValidation), "%s: approved document is locked", id)
			s.Equal(1, current.Number)
		}
		s.True(ev.Verify())
	}
}

func (s *BinderSuite) TestApprovalWritesOneAuditEntry() {
	s.inReview("SOP-2")
	ev, _, err := s.approve("SOP-2")
	s.Require().NoError(err)

	entries, err := s.audits.ListByDocument(s.ctx, "SOP-2")
	s.Require().NoError(err)
	var approvals []audit.Entry
	for _, e := range entries {
		if e.Action == audit.ActionDocumentApproved {
			approvals = append(approvals, e)
		}
	}
	s.Require().Len(approvals, 1)
	s.Equal(map[string]string{
		"from":              "review",
		"to":                "approved",
		"signature_id":      ev.ID,
		"signature_meaning": ev.Meaning,
		"signature_hash":    ev.SignatureHash,
		"version_id":        ev.VersionID,
	}, approvals[0].Metadata)
	s.NoError(audit.VerifyChain(entries))
}

func (s *BinderSuite) TestEmptyMeaningLeavesDocumentInReview() {
	s.inReview("SOP-3")
	_, _, err := s.binder.ApproveWithSignature(s.ctx, approver, signature.ApproveRequest{
		DocumentID: "SOP-3", Meaning: "   ", Credential: approverSecret,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	doc, err := s.engine.Get(s.ctx, "SOP-3")
	s.Require().NoError(err)
	s.Equal(document.StateReview, doc.State)
	s.assertNoSignatures("SOP-3")
}

func (s *BinderSuite) TestWrongCredentialIsRejected() {
	s.inReview("SOP-4")
	_, _, err := s.binder.ApproveWithSignature(s.ctx, approver, signature.ApproveRequest{
		DocumentID: "SOP-4", Meaning: "Approved", Credential: "not-the-secret",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeReauthFailed))

	doc, err := s.engine.Get(s.ctx, "SOP-4")
	s.Require().NoError(err)
	s.Equal(document.StateReview, doc.State)
	s.assertNoSignatures("SOP-4")
}

func (s *BinderSuite) TestRoleIsCheckedFirst() {
	_, _, err := s.binder.ApproveWithSignature(s.ctx, reviewer, signature.ApproveRequest{
		DocumentID: "missing", Meaning: "Approved", Credential: approverSecret,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *BinderSuite) TestMissingDocument() {
	_, _, err := s.approve("missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *BinderSuite) TestDocumentWithoutVersionIsNotReady() {
	_, err := s.engine.CreateDraft(s.ctx, author, lifecycle.CreateDraftRequest{DocumentID: "SOP-5", Title: "Empty"})
	s.Require().NoError(err)
	_, err = s.engine.SubmitReview(s.ctx, author, "SOP-5")
	s.Require().NoError(err)

	_, _, err = s.approve("SOP-5")
	s.True(dErrors.HasCode(err, dErrors.CodeNotReady))
	s.assertNoSignatures("SOP-5")
}

func (s *BinderSuite) TestApprovingOutsideReviewRollsBackSignature() {
	_, err := s.engine.CreateDraft(s.ctx, author, lifecycle.CreateDraftRequest{DocumentID: "SOP-6", Title: "Draft"})
	s.Require().NoError(err)
	_, err = s.engine.AddVersion(s.ctx, author, lifecycle.AddVersionRequest{DocumentID: "SOP-6", ContentRef: "blob://6", Checksum: "sha256:06"})
	s.Require().NoError(err)

	_, _, err = s.approve("SOP-6")
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflow))
	s.assertNoSignatures("SOP-6")
}

func (s *BinderSuite) TestApprovedDocumentCannotBeSignedAgain() {
	s.inReview("SOP-7")
	_, _, err := s.approve("SOP-7")
	s.Require().NoError(err)

	_, _, err = s.approve("SOP-7")
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflow))

	stored, err := s.binder.Signatures(s.ctx, "SOP-7")
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *BinderSuite) assertNoSignatures(documentID string) {
	stored, err := s.binder.Signatures(s.ctx, documentID)
	s.Require().NoError(err)
	s.Empty(stored)
}
