// Package audit is the append-only, hash-chained record of every
// compliance-relevant action.
//
// Appends are fail-closed: the caller blocks until the entry is persisted and
// must abort its own operation when Append returns an error. Append is meant to
// run inside the document's unit of work (see pkg/platform/tx) so the state
// change and its entry commit together and sequence numbers stay gapless.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/sentinel"
	"edms/pkg/requestcontext"
)

// Ledger appends and reads audit entries.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	newID   func() string
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets a logger for audit records and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithIDGenerator overrides entry ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		l.newID = fn
	}
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event for its document and returns the stored entry.
func (l *Ledger) Append(ctx context.Context, event Event) (Entry, error) {
	start := time.Now()

	if !event.Action.Valid() {
		return Entry{}, dErrors.Newf(dErrors.CodeValidation, "unknown audit action %q", event.Action)
	}
	if event.DocumentID == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "audit entry requires a document id")
	}
	if event.ActorID == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "audit entry requires an actor id")
	}

	seq, prev := int64(1), GenesisHash
	last, err := l.store.Last(ctx, event.DocumentID)
	switch {
	case err == nil:
		seq, prev = last.Sequence+1, last.EntryHash
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return Entry{}, l.fail(ctx, event, err)
	}

	entry := Entry{
		ID:         l.newID(),
		DocumentID: event.DocumentID,
		Sequence:   seq,
		ActorID:    event.ActorID,
		Action:     event.Action,
		Metadata:   maps.Clone(event.Metadata),
		OccurredAt: requestcontext.Now(ctx),
		PrevHash:   prev,
		RequestID:  requestcontext.RequestID(ctx),
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	entry.EntryHash = ComputeHash(entry)

	if err := l.store.Append(ctx, entry); err != nil {
		return Entry{}, l.fail(ctx, event, err)
	}

	l.metrics.observePersistDuration(time.Since(start).Seconds())
	l.metrics.incAppended(entry.Action)
	if l.logger != nil {
		// Staged only: the enclosing unit of work may still roll back. The
		// owning service logs the accepted operation after commit.
		l.logger.DebugContext(ctx, "audit entry staged",
			"action", string(entry.Action),
			"document_id", entry.DocumentID,
			"sequence", entry.Sequence,
			"actor_id", entry.ActorID,
			"request_id", entry.RequestID,
		)
	}
	return entry.Clone(), nil
}

func (l *Ledger) fail(ctx context.Context, event Event, err error) error {
	l.metrics.incPersistFailures()
	if l.logger != nil {
		l.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
			"action", string(event.Action),
			"document_id", event.DocumentID,
			"actor_id", event.ActorID,
			"error", err,
		)
	}
	if errors.Is(err, sentinel.ErrImmutable) || errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "audit entry rejected")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
}

// ListByDocument returns the document's entries in sequence order.
func (l *Ledger) ListByDocument(ctx context.Context, documentID string) ([]Entry, error) {
	entries, err := l.store.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

// Verify re-derives the document's chain and reports the first inconsistency.
func (l *Ledger) Verify(ctx context.Context, documentID string) error {
	entries, err := l.ListByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	return VerifyChain(entries)
}
