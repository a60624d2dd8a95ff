// Package printing issues and reconciles numbered controlled copies of
// effective document versions.
package printing

import (
	"slices"
	"time"

	dErrors "edms/pkg/domain-errors"
)

// Event is one print request. Values are snapshots: Issue and Reconcile
// return a new Event and leave the receiver untouched.
//
// Invariants:
//   - 0 <= IssuedQuantity <= Quantity
//   - len(CopyNumbers) == IssuedQuantity
//   - Reconciled moves false -> true only
type Event struct {
	ID             string     `json:"event_id"`
	DocumentID     string     `json:"document_id"`
	VersionID      string     `json:"version_id"`
	RequestedBy    string     `json:"requested_by"`
	Quantity       int        `json:"quantity"`
	IssuedQuantity int        `json:"issued_quantity"`
	CopyNumbers    []int      `json:"copy_numbers"`
	Reconciled     bool       `json:"reconciled"`
	ReturnedCopies []int      `json:"returned_copy_numbers,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReconciledAt   *time.Time `json:"reconciled_at,omitempty"`
}

// Watermark is stamped onto each rendered copy.
type Watermark struct {
	DocumentID string `json:"document_id"`
	VersionID  string `json:"version_id"`
	EventID    string `json:"print_event_id"`
	CopyNumber int    `json:"copy_number"`
}

// Copy is a registry row. (DocumentID, VersionID, CopyNumber) is unique
// across all print events.
type Copy struct {
	DocumentID string
	VersionID  string
	CopyNumber int
	EventID    string
	IssuedBy   string
	IssuedAt   time.Time
}

// Clone returns a deep copy.
func (e Event) Clone() Event {
	e.CopyNumbers = slices.Clone(e.CopyNumbers)
	e.ReturnedCopies = slices.Clone(e.ReturnedCopies)
	if e.ReconciledAt != nil {
		at := *e.ReconciledAt
		e.ReconciledAt = &at
	}
	return e
}

// Remaining is how many copies may still be issued.
func (e Event) Remaining() int {
	return e.Quantity - e.IssuedQuantity
}

// CanIssue checks that quantity more copies fit the request.
func (e Event) CanIssue(quantity int) error {
	if e.Reconciled {
		return dErrors.Newf(dErrors.CodeValidation, "print event %s is reconciled; no further copies may be issued", e.ID)
	}
	if quantity <= 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity must be a positive integer")
	}
	if e.IssuedQuantity+quantity > e.Quantity {
		return dErrors.Newf(dErrors.CodeValidation, "issuing %d copies exceeds requested quantity %d (%d already issued)",
			quantity, e.Quantity, e.IssuedQuantity).
			With("requested", e.Quantity).
			With("issued", e.IssuedQuantity).
			With("remaining", e.Remaining())
	}
	return nil
}

// Issue records numbers as issued. Call CanIssue first.
func (e Event) Issue(numbers []int) Event {
	next := e.Clone()
	next.CopyNumbers = append(next.CopyNumbers, numbers...)
	next.IssuedQuantity += len(numbers)
	return next
}

// CanReconcile requires returned to be exactly the set of issued copies.
// Missing and unexpected numbers are reported in the error details.
func (e Event) CanReconcile(returned []int) error {
	if e.Reconciled {
		return dErrors.Newf(dErrors.CodeValidation, "print event %s is already reconciled", e.ID)
	}
	missing, unexpected := diffCopies(e.CopyNumbers, returned)
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "copies %v of print event %s are unaccounted for", missing, e.ID).
			With("missing", missing)
	}
	if len(unexpected) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "copies %v were never issued by print event %s", unexpected, e.ID).
			With("unexpected", unexpected)
	}
	return nil
}

// Reconcile closes the event. Call CanReconcile first.
func (e Event) Reconcile(returned []int, now time.Time) Event {
	next := e.Clone()
	next.Reconciled = true
	next.ReturnedCopies = normalizeCopies(returned)
	next.ReconciledAt = &now
	return next
}

// Watermarks builds the stamp records for numbers.
func (e Event) Watermarks(numbers []int) []Watermark {
	out := make([]Watermark, len(numbers))
	for i, n := range numbers {
		out[i] = Watermark{DocumentID: e.DocumentID, VersionID: e.VersionID, EventID: e.ID, CopyNumber: n}
	}
	return out
}

func diffCopies(issued, returned []int) (missing, unexpected []int) {
	got := make(map[int]struct{}, len(returned))
	for _, n := range returned {
		got[n] = struct{}{}
	}
	want := make(map[int]struct{}, len(issued))
	for _, n := range issued {
		want[n] = struct{}{}
		if _, ok := got[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range got {
		if _, ok := want[n]; !ok {
			unexpected = append(unexpected, n)
		}
	}
	slices.Sort(missing)
	slices.Sort(unexpected)
	return missing, unexpected
}

func normalizeCopies(numbers []int) []int {
	out := slices.Clone(numbers)
	slices.Sort(out)
	return slices.Compact(out)
}
