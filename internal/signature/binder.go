package signature

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"edms/internal/document"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	"edms/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, ev Event) error
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)
}

// Lifecycle is the part of the lifecycle engine the binder drives.
type Lifecycle interface {
	RunLocked(ctx context.Context, documentID string, fn func(ctx context.Context) error) error
	ApplyTransition(ctx context.Context, actor rbac.Actor, documentID string, target document.State, metadata map[string]string) (document.Document, error)
}

// Documents resolves the document and its current version inside the
// document's unit of work.
type Documents interface {
	FindByID(ctx context.Context, id string) (document.Document, error)
	CurrentVersion(ctx context.Context, documentID string) (document.Version, error)
}

// Reauthenticator verifies a credential independently of the caller's session.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, actorID, credential string) error
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

type Binder struct {
	store     Store
	lifecycle Lifecycle
	docs      Documents
	reauth    Reauthenticator
	guard     Authorizer
	logger    *slog.Logger
	signed    prometheus.Counter
	newID     func() string
}

type Option func(*Binder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) {
		b.logger = logger
	}
}

// WithRegisterer registers the signature counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Binder) {
		b.signed = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "edms_signatures_total",
			Help: "Approval signatures recorded",
		})
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(b *Binder) {
		b.newID = fn
	}
}

func NewBinder(store Store, lifecycle Lifecycle, docs Documents, reauth Reauthenticator, guard Authorizer, opts ...Option) *Binder {
	b := &Binder{
		store:     store,
		lifecycle: lifecycle,
		docs:      docs,
		reauth:    reauth,
		guard:     guard,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type ApproveRequest struct {
	DocumentID string
	Meaning    string
	Credential string
}

// ApproveWithSignature re-authenticates the approver, binds a signature to
// the document's current version and moves the document to Approved. The
// signature, the transition and the single document_approved entry commit
// together.
func (b *Binder) ApproveWithSignature(ctx context.Context, actor rbac.Actor, req ApproveRequest) (Event, document.Document, error) {
	if err := b.guard.Check(actor, rbac.OpApprove); err != nil {
		return Event{}, document.Document{}, err
	}
	// Credential verification may reach Redis; it runs before the document
	// lock is taken.
	if err := b.reauth.Reauthenticate(ctx, actor.ID, req.Credential); err != nil {
		return Event{}, document.Document{}, err
	}
	meaning := strings.TrimSpace(req.Meaning)
	if meaning == "" {
		return Event{}, document.Document{}, dErrors.New(dErrors.CodeValidation, "signature meaning is required")
	}

	var (
		ev  Event
		doc document.Document
	)
	err := b.lifecycle.RunLocked(ctx, req.DocumentID, func(txCtx context.Context) error {
		if _, err := b.docs.FindByID(txCtx, req.DocumentID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "document %s not found", req.DocumentID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
		}
		current, err := b.docs.CurrentVersion(txCtx, req.DocumentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotReady, "document %s has no version to sign", req.DocumentID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve current version")
		}

		ev = Event{
			ID:            b.newID(),
			DocumentID:    req.DocumentID,
			VersionID:     current.ID,
			SignerID:      actor.ID,
			Outcome:       OutcomeApproved,
			Meaning:       meaning,
			SignatureHash: Hash(req.DocumentID, current.ID, actor.ID, meaning),
			SignedAt:      requestcontext.Now(txCtx),
		}
		if err := b.store.Create(txCtx, ev); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Wrap(err, dErrors.CodeIntegrity, "signature id already recorded")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
		}

		doc, err = b.lifecycle.ApplyTransition(txCtx, actor, req.DocumentID, document.StateApproved, map[string]string{
			"signature_id":      ev.ID,
			"signature_meaning": ev.Meaning,
			"signature_hash":    ev.SignatureHash,
			"version_id":        ev.VersionID,
		})
		return err
	})
	if err != nil {
		return Event{}, document.Document{}, err
	}

	if b.signed != nil {
		b.signed.Inc()
	}
	b.logger.InfoContext(ctx, "document signed",
		"log_type", "audit",
		"event", string(audit.ActionDocumentApproved),
		"request_id", requestcontext.RequestID(ctx),
		"document_id", ev.DocumentID,
		"version_id", ev.VersionID,
		"signature_id", ev.ID,
		"actor_id", actor.ID,
	)
	return ev, doc, nil
}

// Signatures lists a document's signatures in signing order.
func (b *Binder) Signatures(ctx context.Context, documentID string) ([]Event, error) {
	events, err := b.store.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list signatures")
	}
	return events, nil
}
