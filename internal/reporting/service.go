// Package reporting answers read-only compliance questions over the
// document, task and audit stores.
package reporting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"edms/internal/document"
	"edms/internal/rbac"
	"edms/internal/task"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
)

type Documents interface {
	FindByID(ctx context.Context, id string) (document.Document, error)
	ListByState(ctx context.Context, state document.State) ([]document.Document, error)
}

type Tasks interface {
	Overdue(ctx context.Context, asOf time.Time) ([]task.Task, error)
}

type AuditReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]audit.Entry, error)
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

type Service struct {
	docs   Documents
	tasks  Tasks
	audit  AuditReader
	guard  Authorizer
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(docs Documents, tasks Tasks, auditReader AuditReader, guard Authorizer, opts ...Option) *Service {
	s := &Service{
		docs:   docs,
		tasks:  tasks,
		audit:  auditReader,
		guard:  guard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PendingApprovals lists documents waiting in review.
func (s *Service) PendingApprovals(ctx context.Context, actor rbac.Actor) ([]document.Document, error) {
	if err := s.guard.Check(actor, rbac.OpViewReports); err != nil {
		return nil, err
	}
	return s.byState(ctx, document.StateReview)
}

// EffectiveDocuments lists documents currently in force.
func (s *Service) EffectiveDocuments(ctx context.Context, actor rbac.Actor) ([]document.Document, error) {
	if err := s.guard.Check(actor, rbac.OpViewReports); err != nil {
		return nil, err
	}
	return s.byState(ctx, document.StateEffective)
}

// OverdueTasks lists pending review tasks due before asOf.
func (s *Service) OverdueTasks(ctx context.Context, actor rbac.Actor, asOf time.Time) ([]task.Task, error) {
	if err := s.guard.Check(actor, rbac.OpViewReports); err != nil {
		return nil, err
	}
	return s.tasks.Overdue(ctx, asOf)
}

// ExportAudit returns every entry of a document verbatim, in sequence order.
// A chain that no longer verifies is reported instead of exported.
func (s *Service) ExportAudit(ctx context.Context, actor rbac.Actor, documentID string) ([]audit.Entry, error) {
	if err := s.guard.Check(actor, rbac.OpExportAudit); err != nil {
		return nil, err
	}
	if _, err := s.docs.FindByID(ctx, documentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "document %s not found", documentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}

	entries, err := s.audit.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	if err := audit.VerifyChain(entries); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: audit chain verification failed",
			"document_id", documentID,
			"error", err,
		)
		return nil, err
	}
	s.logger.InfoContext(ctx, "audit exported",
		"log_type", "audit",
		"document_id", documentID,
		"actor_id", actor.ID,
		"entries", len(entries),
	)
	return entries, nil
}

// Dashboard aggregates the three standing reports.
type Dashboard struct {
	PendingApprovals   []document.Document `json:"pending_approvals"`
	EffectiveDocuments []document.Document `json:"effective_documents"`
	OverdueTasks       []task.Task         `json:"overdue_tasks"`
	AsOf               time.Time           `json:"as_of"`
}

// Dashboard builds all standing reports concurrently.
func (s *Service) Dashboard(ctx context.Context, actor rbac.Actor, asOf time.Time) (Dashboard, error) {
	if err := s.guard.Check(actor, rbac.OpViewReports); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{AsOf: asOf}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.byState(gctx, document.StateReview)
		d.PendingApprovals = docs
		return err
	})
	g.Go(func() error {
		docs, err := s.byState(gctx, document.StateEffective)
		d.EffectiveDocuments = docs
		return err
	})
	g.Go(func() error {
		tasks, err := s.tasks.Overdue(gctx, asOf)
		d.OverdueTasks = tasks
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *Service) byState(ctx context.Context, state document.State) ([]document.Document, error) {
	docs, err := s.docs.ListByState(ctx, state)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}
