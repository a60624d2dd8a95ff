// Package lifecycle validates and applies document state transitions.
//
// Every mutating operation authorizes the actor first, then runs its
// read-validate-write-audit sequence inside the document's unit of work, so
// concurrent callers on one document observe as-if-sequential execution and
// no state change is ever visible without its audit entry.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edms/internal/document"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
	"edms/pkg/requestcontext"
)

type DocumentStore interface {
	Create(ctx context.Context, doc document.Document) error
	FindByID(ctx context.Context, id string) (document.Document, error)
	Update(ctx context.Context, doc document.Document) error
	AddVersion(ctx context.Context, v document.Version) error
	CurrentVersion(ctx context.Context, documentID string) (document.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]document.Version, error)
	MarkSuperseded(ctx context.Context, versionID, supersededBy string) error
}

type AuditLedger interface {
	Append(ctx context.Context, event audit.Event) (audit.Entry, error)
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

// Engine is the lifecycle state machine service.
type Engine struct {
	docs    DocumentStore
	ledger  AuditLedger
	guard   Authorizer
	runner  tx.Runner
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	newID   func() string
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator overrides version id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func New(docs DocumentStore, ledger AuditLedger, guard Authorizer, runner tx.Runner, opts ...Option) *Engine {
	e := &Engine{
		docs:   docs,
		ledger: ledger,
		guard:  guard,
		runner: runner,
		logger: slog.Default(),
		tracer: otel.Tracer("edms/lifecycle"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDraftRequest carries the inputs of CreateDraft. OwnerID defaults to
// the acting user.
type CreateDraftRequest struct {
	DocumentID string
	Title      string
	OwnerID    string
}

// CreateDraft registers a new document in Draft.
func (e *Engine) CreateDraft(ctx context.Context, actor rbac.Actor, req CreateDraftRequest) (doc document.Document, err error) {
	ctx, span := e.startSpan(ctx, "lifecycle.CreateDraft", req.DocumentID)
	defer func() { endSpan(span, err) }()

	if err := e.guard.Check(actor, rbac.OpCreateDraft); err != nil {
		return document.Document{}, err
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Title = strings.TrimSpace(req.Title)
	if req.OwnerID == "" {
		req.OwnerID = actor.ID
	}

	err = e.runner.RunInTx(ctx, req.DocumentID, func(txCtx context.Context) error {
		d, err := document.NewDraft(req.DocumentID, req.Title, req.OwnerID, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := e.docs.Create(txCtx, d); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Newf(dErrors.CodeConflict, "document %s already exists", d.ID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
		}
		if _, err := e.ledger.Append(txCtx, audit.Event{
			DocumentID: d.ID,
			ActorID:    actor.ID,
			Action:     audit.ActionDraftCreated,
			Metadata:   map[string]string{"title": d.Title, "owner_id": d.OwnerID},
		}); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return document.Document{}, err
	}
	e.metrics.incDraftsCreated()
	e.logAccepted(ctx, audit.ActionDraftCreated, actor, doc.ID, "title", doc.Title)
	return doc, nil
}

// AddVersionRequest carries the inputs of AddVersion.
type AddVersionRequest struct {
	DocumentID string
	ContentRef string
	Checksum   string
}

// AddVersion appends the next content version. The previous current version
// is marked superseded by the new one.
func (e *Engine) AddVersion(ctx context.Context, actor rbac.Actor, req AddVersionRequest) (v document.Version, err error) {
	ctx, span := e.startSpan(ctx, "lifecycle.AddVersion", req.DocumentID)
	defer func() { endSpan(span, err) }()

	if err := e.guard.Check(actor, rbac.OpAddVersion); err != nil {
		return document.Version{}, err
	}
	if strings.TrimSpace(req.ContentRef) == "" {
		return document.Version{}, dErrors.New(dErrors.CodeValidation, "content reference is required")
	}
	if strings.TrimSpace(req.Checksum) == "" {
		return document.Version{}, dErrors.New(dErrors.CodeValidation, "checksum is required")
	}

	err = e.runner.RunInTx(ctx, req.DocumentID, func(txCtx context.Context) error {
		doc, err := e.docs.FindByID(txCtx, req.DocumentID)
		if err != nil {
			return wrapDocumentErr(err, req.DocumentID)
		}
		if err := doc.CanAddVersion(); err != nil {
			return err
		}

		next := document.Version{
			ID:         e.newID(),
			DocumentID: doc.ID,
			Number:     1,
			ContentRef: req.ContentRef,
			Checksum:   req.Checksum,
			CreatedBy:  actor.ID,
			CreatedAt:  requestcontext.Now(txCtx),
		}
		prev, err := e.docs.CurrentVersion(txCtx, doc.ID)
		switch {
		case err == nil:
			next.Number = prev.Number + 1
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read current version")
		}

		if err := e.docs.AddVersion(txCtx, next); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Wrap(err, dErrors.CodeIntegrity, "version number already taken")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add version")
		}
		if next.Number > 1 {
			if err := e.docs.MarkSuperseded(txCtx, prev.ID, next.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeIntegrity, "failed to supersede previous version")
			}
		}
		if _, err := e.ledger.Append(txCtx, audit.Event{
			DocumentID: doc.ID,
			ActorID:    actor.ID,
			Action:     audit.ActionVersionCreated,
			Metadata: map[string]string{
				"version_id":     next.ID,
				"version_number": strconv.Itoa(next.Number),
				"checksum":       next.Checksum,
			},
		}); err != nil {
			return err
		}
		v = next
		return nil
	})
	if err != nil {
		return document.Version{}, err
	}
	e.metrics.incVersionsAdded()
	e.logAccepted(ctx, audit.ActionVersionCreated, actor, v.DocumentID,
		"version_id", v.ID,
		"version_number", v.Number,
	)
	return v, nil
}

// logAccepted writes the one audit log line of a committed operation.
func (e *Engine) logAccepted(ctx context.Context, action audit.Action, actor rbac.Actor, documentID string, attrs ...any) {
	args := append([]any{
		"log_type", "audit",
		"event", string(action),
		"document_id", documentID,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	e.logger.InfoContext(ctx, "document "+string(action), args...)
}

// Get returns a document by id.
func (e *Engine) Get(ctx context.Context, documentID string) (document.Document, error) {
	doc, err := e.docs.FindByID(ctx, documentID)
	if err != nil {
		return document.Document{}, wrapDocumentErr(err, documentID)
	}
	return doc, nil
}

// Versions returns a document's versions in number order.
func (e *Engine) Versions(ctx context.Context, documentID string) ([]document.Version, error) {
	if _, err := e.Get(ctx, documentID); err != nil {
		return nil, err
	}
	versions, err := e.docs.ListVersions(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	return versions, nil
}

func wrapDocumentErr(err error, documentID string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "document %s not found", documentID).
			With("document_id", documentID)
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
}

func (e *Engine) startSpan(ctx context.Context, name, documentID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("document.id", documentID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
