package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"edms/internal/document"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
	"edms/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, t Task) error
	FindByID(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, t Task) error
	ListPending(ctx context.Context) ([]Task, error)
}

type Documents interface {
	FindByID(ctx context.Context, id string) (document.Document, error)
}

type AuditLedger interface {
	Append(ctx context.Context, event audit.Event) (audit.Entry, error)
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

// Service assigns and completes review tasks. Both are recorded on the
// document's audit chain inside its unit of work.
type Service struct {
	store  Store
	docs   Documents
	audit  AuditLedger
	guard  Authorizer
	runner tx.Runner
	logger *slog.Logger
	newID  func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store Store, docs Documents, auditLedger AuditLedger, guard Authorizer, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		docs:   docs,
		audit:  auditLedger,
		guard:  guard,
		runner: runner,
		logger: slog.Default(),
		newID:  func() string { return "tsk-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AssignRequest struct {
	DocumentID string
	AssigneeID string
	DueAt      time.Time
}

// Assign creates a pending review task for a live document.
func (s *Service) Assign(ctx context.Context, actor rbac.Actor, req AssignRequest) (Task, error) {
	if err := s.guard.Check(actor, rbac.OpAssignTask); err != nil {
		return Task{}, err
	}
	req.AssigneeID = strings.TrimSpace(req.AssigneeID)
	if req.AssigneeID == "" {
		return Task{}, dErrors.New(dErrors.CodeValidation, "assignee is required")
	}
	if req.DueAt.IsZero() {
		return Task{}, dErrors.New(dErrors.CodeValidation, "due date is required")
	}

	var t Task
	err := s.runner.RunInTx(ctx, req.DocumentID, func(txCtx context.Context) error {
		doc, err := s.docs.FindByID(txCtx, req.DocumentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "document %s not found", req.DocumentID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
		}
		if doc.State == document.StateArchived {
			return dErrors.Newf(dErrors.CodeWorkflow, "document %s is archived", doc.ID).
				With("state", string(doc.State))
		}

		t = Task{
			ID:         s.newID(),
			DocumentID: doc.ID,
			AssigneeID: req.AssigneeID,
			AssignedBy: actor.ID,
			Status:     StatusPending,
			DueAt:      req.DueAt.UTC(),
			CreatedAt:  requestcontext.Now(txCtx),
		}
		if err := s.store.Create(txCtx, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create task")
		}
		_, err = s.audit.Append(txCtx, audit.Event{
			DocumentID: doc.ID,
			ActorID:    actor.ID,
			Action:     audit.ActionReviewTaskAssigned,
			Metadata: map[string]string{
				"task_id":     t.ID,
				"assignee_id": t.AssigneeID,
				"due_at":      t.DueAt.Format(time.RFC3339),
			},
		})
		return err
	})
	if err != nil {
		return Task{}, err
	}

	s.logger.InfoContext(ctx, "review task assigned",
		"log_type", "audit",
		"event", string(audit.ActionReviewTaskAssigned),
		"document_id", t.DocumentID,
		"task_id", t.ID,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return t, nil
}

// Complete closes a pending task. Only the assignee or an admin may do so.
func (s *Service) Complete(ctx context.Context, actor rbac.Actor, taskID string) (Task, error) {
	if err := s.guard.Check(actor, rbac.OpCompleteTask); err != nil {
		return Task{}, err
	}
	current, err := s.load(ctx, taskID)
	if err != nil {
		return Task{}, err
	}

	var done Task
	err = s.runner.RunInTx(ctx, current.DocumentID, func(txCtx context.Context) error {
		t, err := s.load(txCtx, taskID)
		if err != nil {
			return err
		}
		if t.AssigneeID != actor.ID && !actor.Has(rbac.RoleAdmin) {
			return dErrors.Newf(dErrors.CodeForbidden, "task %s is assigned to another user", t.ID)
		}
		if err := t.CanComplete(); err != nil {
			return err
		}
		done = t.Complete(requestcontext.Now(txCtx))
		if err := s.store.Update(txCtx, done); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update task")
		}
		_, err = s.audit.Append(txCtx, audit.Event{
			DocumentID: t.DocumentID,
			ActorID:    actor.ID,
			Action:     audit.ActionReviewTaskCompleted,
			Metadata:   map[string]string{"task_id": t.ID},
		})
		return err
	})
	if err != nil {
		return Task{}, err
	}

	s.logger.InfoContext(ctx, "review task completed",
		"log_type", "audit",
		"event", string(audit.ActionReviewTaskCompleted),
		"document_id", done.DocumentID,
		"task_id", done.ID,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return done, nil
}

// Overdue lists pending tasks whose due date is before asOf, earliest first.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]Task, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tasks")
	}
	var out []Task
	for _, t := range pending {
		if t.IsOverdue(asOf) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, taskID string) (Task, error) {
	t, err := s.store.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Task{}, dErrors.Newf(dErrors.CodeNotFound, "task %s not found", taskID)
		}
		return Task{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load task")
	}
	return t, nil
}
