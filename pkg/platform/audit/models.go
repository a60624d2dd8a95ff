package audit

import (
	"context"
	"maps"
	"time"
)

// Action is the closed vocabulary of auditable events.
type Action string

const (
	ActionDraftCreated        Action = "draft_created"
	ActionVersionCreated      Action = "version_created"
	ActionReviewSubmitted     Action = "review_submitted"
	ActionReviewRejected      Action = "review_rejected"
	ActionReturnedToDraft     Action = "returned_to_draft"
	ActionDocumentApproved    Action = "document_approved"
	ActionMadeEffective       Action = "made_effective"
	ActionMarkedObsolete      Action = "marked_obsolete"
	ActionPrintRequested      Action = "print_requested"
	ActionPrintIssued         Action = "print_issued"
	ActionPrintReconciled     Action = "print_reconciled"
	ActionReviewTaskAssigned  Action = "review_task_assigned"
	ActionReviewTaskCompleted Action = "review_task_completed"
)

var actions = map[Action]struct{}{
	ActionDraftCreated:        {},
	ActionVersionCreated:      {},
	ActionReviewSubmitted:     {},
	ActionReviewRejected:      {},
	ActionReturnedToDraft:     {},
	ActionDocumentApproved:    {},
	ActionMadeEffective:       {},
	ActionMarkedObsolete:      {},
	ActionPrintRequested:      {},
	ActionPrintIssued:         {},
	ActionPrintReconciled:     {},
	ActionReviewTaskAssigned:  {},
	ActionReviewTaskCompleted: {},
}

// Valid reports whether the action belongs to the vocabulary.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Event is what domain code hands to the ledger. Identity, ordering and
// hashes are assigned on append.
type Event struct {
	DocumentID string
	ActorID    string
	Action     Action
	Metadata   map[string]string
}

// Entry is one immutable audit record. Entries of a document form a hash
// chain: PrevHash is the EntryHash of the entry with Sequence-1.
type Entry struct {
	ID         string            `json:"entry_id"`
	DocumentID string            `json:"document_id"`
	Sequence   int64             `json:"sequence"`
	ActorID    string            `json:"actor_id"`
	Action     Action            `json:"action"`
	Metadata   map[string]string `json:"metadata"`
	OccurredAt time.Time         `json:"timestamp"`
	PrevHash   string            `json:"prev_hash"`
	EntryHash  string            `json:"entry_hash"`
	RequestID  string            `json:"request_id,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored entries.
func (e Entry) Clone() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return e
}

// Store persists audit entries. There is no update or delete.
type Store interface {
	// Append persists an entry. Appending an ID that already exists fails with
	// sentinel.ErrImmutable.
	Append(ctx context.Context, entry Entry) error
	// ListByDocument returns entries of one document ordered by Sequence.
	ListByDocument(ctx context.Context, documentID string) ([]Entry, error)
	// Last returns the highest-sequence entry of a document, or sentinel.ErrNotFound.
	Last(ctx context.Context, documentID string) (Entry, error)
}

// OutboxRecord is an entry waiting to be relayed to the audit stream.
type OutboxRecord struct {
	ID         int64
	EntryID    string
	DocumentID string
	Action     Action
	Payload    []byte
	CreatedAt  time.Time
}
