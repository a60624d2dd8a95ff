package printing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"edms/internal/document"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/sentinel"
	"edms/pkg/platform/tx"
	"edms/pkg/requestcontext"
)

// Store persists print events and the copy registry.
type Store interface {
	Create(ctx context.Context, ev Event) error
	FindByID(ctx context.Context, id string) (Event, error)
	Update(ctx context.Context, ev Event) error
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)

	// RegisterCopy claims a (document, version, copy number) triple and
	// returns sentinel.ErrAlreadyUsed if it was ever issued before.
	RegisterCopy(ctx context.Context, c Copy) error
	// MaxCopyNumber returns the highest copy number issued for a version, or 0.
	MaxCopyNumber(ctx context.Context, documentID, versionID string) (int, error)
}

type Documents interface {
	FindByID(ctx context.Context, id string) (document.Document, error)
	FindVersion(ctx context.Context, versionID string) (document.Version, error)
}

type AuditLedger interface {
	Append(ctx context.Context, event audit.Event) (audit.Entry, error)
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

// Ledger is the controlled print service. Issuance and reconciliation run in
// the unit of work of the printed document, the same critical section the
// lifecycle engine uses, so copy numbering never races a transition.
type Ledger struct {
	store   Store
	docs    Documents
	audit   AuditLedger
	guard   Authorizer
	runner  tx.Runner
	logger  *slog.Logger
	metrics *Metrics
	newID   func() string
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		l.newID = fn
	}
}

func NewLedger(store Store, docs Documents, auditLedger AuditLedger, guard Authorizer, runner tx.Runner, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		docs:   docs,
		audit:  auditLedger,
		guard:  guard,
		runner: runner,
		logger: slog.Default(),
		newID:  func() string { return "prt-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type RequestPrintRequest struct {
	DocumentID string
	VersionID  string
	Quantity   int
}

// RequestPrint opens a print event for the current version of an effective
// document with nothing issued yet.
func (l *Ledger) RequestPrint(ctx context.Context, actor rbac.Actor, req RequestPrintRequest) (Event, error) {
	if err := l.guard.Check(actor, rbac.OpRequestPrint); err != nil {
		return Event{}, err
	}
	if req.Quantity <= 0 {
		return Event{}, dErrors.New(dErrors.CodeValidation, "quantity must be a positive integer").
			With("quantity", req.Quantity)
	}

	var ev Event
	err := l.runner.RunInTx(ctx, req.DocumentID, func(txCtx context.Context) error {
		if err := l.requirePrintable(txCtx, req.DocumentID, req.VersionID); err != nil {
			return err
		}
		ev = Event{
			ID:          l.newID(),
			DocumentID:  req.DocumentID,
			VersionID:   req.VersionID,
			RequestedBy: actor.ID,
			Quantity:    req.Quantity,
			CreatedAt:   requestcontext.Now(txCtx),
		}
		if err := l.store.Create(txCtx, ev); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create print event")
		}
		_, err := l.audit.Append(txCtx, audit.Event{
			DocumentID: ev.DocumentID,
			ActorID:    actor.ID,
			Action:     audit.ActionPrintRequested,
			Metadata: map[string]string{
				"print_event_id": ev.ID,
				"version_id":     ev.VersionID,
				"quantity":       strconv.Itoa(ev.Quantity),
			},
		})
		return err
	})
	if err != nil {
		return Event{}, err
	}

	l.metrics.incRequested()
	l.logger.InfoContext(ctx, "print requested",
		"log_type", "audit",
		"event", string(audit.ActionPrintRequested),
		"document_id", ev.DocumentID,
		"print_event_id", ev.ID,
		"quantity", ev.Quantity,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return ev, nil
}

// IssuePrint issues quantity copies of the event's version, numbered after
// the highest copy ever issued for that version, and returns one watermark
// per copy.
func (l *Ledger) IssuePrint(ctx context.Context, actor rbac.Actor, eventID string, quantity int) ([]Watermark, error) {
	if err := l.guard.Check(actor, rbac.OpIssuePrint); err != nil {
		return nil, err
	}
	documentID, err := l.documentOf(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var (
		issued  Event
		numbers []int
	)
	err = l.runner.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		ev, err := l.load(txCtx, eventID)
		if err != nil {
			return err
		}
		if err := ev.CanIssue(quantity); err != nil {
			return err
		}
		if err := l.requirePrintable(txCtx, ev.DocumentID, ev.VersionID); err != nil {
			return err
		}

		last, err := l.store.MaxCopyNumber(txCtx, ev.DocumentID, ev.VersionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read copy registry")
		}
		now := requestcontext.Now(txCtx)
		numbers = make([]int, 0, quantity)
		for n := last + 1; n <= last+quantity; n++ {
			if err := l.store.RegisterCopy(txCtx, Copy{
				DocumentID: ev.DocumentID,
				VersionID:  ev.VersionID,
				CopyNumber: n,
				EventID:    ev.ID,
				IssuedBy:   actor.ID,
				IssuedAt:   now,
			}); err != nil {
				return l.registryErr(txCtx, ev, n, err)
			}
			numbers = append(numbers, n)
		}

		issued = ev.Issue(numbers)
		if err := l.store.Update(txCtx, issued); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update print event")
		}
		_, err = l.audit.Append(txCtx, audit.Event{
			DocumentID: ev.DocumentID,
			ActorID:    actor.ID,
			Action:     audit.ActionPrintIssued,
			Metadata: map[string]string{
				"print_event_id":  ev.ID,
				"version_id":      ev.VersionID,
				"issued_quantity": strconv.Itoa(quantity),
				"copy_numbers":    joinCopies(numbers),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	l.metrics.addIssued(len(numbers))
	l.logger.InfoContext(ctx, "print issued",
		"log_type", "audit",
		"event", string(audit.ActionPrintIssued),
		"document_id", issued.DocumentID,
		"print_event_id", issued.ID,
		"copy_numbers", numbers,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return issued.Watermarks(numbers), nil
}

// ReconcilePrint closes the event once every issued copy is accounted for.
// Partial reconciliation fails and names the missing copies.
func (l *Ledger) ReconcilePrint(ctx context.Context, actor rbac.Actor, eventID string, returned []int) (Event, error) {
	if err := l.guard.Check(actor, rbac.OpReconcilePrint); err != nil {
		return Event{}, err
	}
	documentID, err := l.documentOf(ctx, eventID)
	if err != nil {
		return Event{}, err
	}

	var closed Event
	err = l.runner.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		ev, err := l.load(txCtx, eventID)
		if err != nil {
			return err
		}
		if err := ev.CanReconcile(returned); err != nil {
			return err
		}
		closed = ev.Reconcile(returned, requestcontext.Now(txCtx))
		if err := l.store.Update(txCtx, closed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update print event")
		}
		_, err = l.audit.Append(txCtx, audit.Event{
			DocumentID: ev.DocumentID,
			ActorID:    actor.ID,
			Action:     audit.ActionPrintReconciled,
			Metadata: map[string]string{
				"print_event_id":        ev.ID,
				"returned_copy_numbers": joinCopies(closed.ReturnedCopies),
			},
		})
		return err
	})
	if err != nil {
		return Event{}, err
	}

	l.metrics.incReconciled()
	l.logger.InfoContext(ctx, "print reconciled",
		"log_type", "audit",
		"event", string(audit.ActionPrintReconciled),
		"document_id", closed.DocumentID,
		"print_event_id", closed.ID,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return closed, nil
}

// Get returns a print event.
func (l *Ledger) Get(ctx context.Context, eventID string) (Event, error) {
	return l.load(ctx, eventID)
}

// ListByDocument returns a document's print events in request order.
func (l *Ledger) ListByDocument(ctx context.Context, documentID string) ([]Event, error) {
	events, err := l.store.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list print events")
	}
	return events, nil
}

// documentOf resolves the lock key of an event. The document of an event
// never changes, so reading it before the lock is safe.
func (l *Ledger) documentOf(ctx context.Context, eventID string) (string, error) {
	ev, err := l.load(ctx, eventID)
	if err != nil {
		return "", err
	}
	return ev.DocumentID, nil
}

func (l *Ledger) load(ctx context.Context, eventID string) (Event, error) {
	ev, err := l.store.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Event{}, dErrors.Newf(dErrors.CodeNotFound, "print event %s not found", eventID).
				With("print_event_id", eventID)
		}
		return Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load print event")
	}
	return ev, nil
}

// requirePrintable checks that the document is effective and versionID is
// its current version.
func (l *Ledger) requirePrintable(ctx context.Context, documentID, versionID string) error {
	doc, err := l.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "document %s not found", documentID).
				With("document_id", documentID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	if doc.State != document.StateEffective {
		return dErrors.Newf(dErrors.CodeWorkflow, "document %s is %s; only effective documents may be printed", doc.ID, doc.State).
			With("state", string(doc.State))
	}

	v, err := l.docs.FindVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "version %s not found", versionID).
				With("version_id", versionID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load version")
	}
	if v.DocumentID != documentID {
		return dErrors.Newf(dErrors.CodeValidation, "version %s does not belong to document %s", versionID, documentID)
	}
	if v.IsSuperseded() {
		return dErrors.Newf(dErrors.CodeValidation, "version %s is superseded by %s", versionID, v.SupersededBy)
	}
	return nil
}

func (l *Ledger) registryErr(ctx context.Context, ev Event, copyNumber int, err error) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		l.metrics.incCollision()
		l.logger.ErrorContext(ctx, "CRITICAL: copy number already issued",
			"document_id", ev.DocumentID,
			"version_id", ev.VersionID,
			"print_event_id", ev.ID,
			"copy_number", copyNumber,
		)
		return dErrors.Newf(dErrors.CodeIntegrity, "copy %d of version %s was already issued", copyNumber, ev.VersionID).
			With("copy_number", copyNumber)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register copy")
}

func joinCopies(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
