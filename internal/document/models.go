// Package document holds the controlled document aggregate and its versions.
package document

import (
	"slices"
	"time"

	dErrors "edms/pkg/domain-errors"
)

// State is the lifecycle position of a document.
type State string

const (
	StateDraft     State = "draft"
	StateReview    State = "review"
	StateRejected  State = "rejected"
	StateApproved  State = "approved"
	StateEffective State = "effective"
	StateArchived  State = "archived"
)

// transitions is the complete lifecycle graph. Archived is terminal.
var transitions = map[State][]State{
	StateDraft:     {StateReview},
	StateReview:    {StateApproved, StateRejected},
	StateRejected:  {StateDraft},
	StateApproved:  {StateEffective},
	StateEffective: {StateArchived},
	StateArchived:  {},
}

// States lists every lifecycle state.
func States() []State {
	return []State{StateDraft, StateReview, StateRejected, StateApproved, StateEffective, StateArchived}
}

func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown document state %q", s)
	}
	return st, nil
}

func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedNext returns the states reachable from s in one step.
func (s State) AllowedNext() []State {
	return slices.Clone(transitions[s])
}

func (s State) CanTransitionTo(target State) bool {
	return slices.Contains(transitions[s], target)
}

// Locked states forbid new content versions.
func (s State) locks() bool {
	return s == StateApproved || s == StateEffective || s == StateArchived
}

// Document is the aggregate root for a controlled document.
//
// Invariants:
//   - ID is immutable once assigned
//   - State only moves along the transition graph
//   - Locked becomes true on approval and never reverts
type Document struct {
	ID        string    `json:"document_id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id"`
	State     State     `json:"state"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraft validates and builds a new draft document.
func NewDraft(id, title, ownerID string, now time.Time) (Document, error) {
	if id == "" {
		return Document{}, dErrors.New(dErrors.CodeValidation, "document id is required")
	}
	if title == "" {
		return Document{}, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if ownerID == "" {
		return Document{}, dErrors.New(dErrors.CodeValidation, "owner id is required")
	}
	return Document{
		ID:        id,
		Title:     title,
		OwnerID:   ownerID,
		State:     StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransition checks target against the document's current state.
func (d Document) CanTransition(target State) error {
	if !d.State.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeWorkflow, "cannot move document %s from %s to %s", d.ID, d.State, target).
			With("from", string(d.State)).
			With("to", string(target))
	}
	return nil
}

// ApplyTransition moves the document to target. Call CanTransition first.
func (d *Document) ApplyTransition(target State, now time.Time) {
	d.State = target
	if target.locks() {
		d.Locked = true
	}
	d.UpdatedAt = now
}

// CanAddVersion rejects content changes once the document is locked.
func (d Document) CanAddVersion() error {
	if d.Locked {
		return dErrors.Newf(dErrors.CodeValidation, "document %s is locked in state %s", d.ID, d.State).
			With("state", string(d.State))
	}
	return nil
}

// Version is one immutable revision of a document's content. Only
// SupersededBy changes after creation.
type Version struct {
	ID           string    `json:"version_id"`
	DocumentID   string    `json:"document_id"`
	Number       int       `json:"version_number"`
	ContentRef   string    `json:"content_reference"`
	Checksum     string    `json:"checksum"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	SupersededBy string    `json:"superseded_by,omitempty"`
}

func (v Version) IsSuperseded() bool {
	return v.SupersededBy != ""
}
