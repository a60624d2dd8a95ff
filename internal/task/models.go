// Package task tracks review assignments and their due dates.
package task

import (
	"time"

	dErrors "edms/pkg/domain-errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task asks one user to review a document by a due date.
type Task struct {
	ID          string     `json:"task_id"`
	DocumentID  string     `json:"document_id"`
	AssigneeID  string     `json:"assignee_id"`
	AssignedBy  string     `json:"assigned_by"`
	Status      Status     `json:"status"`
	DueAt       time.Time  `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsOverdue reports whether a pending task passed its due date at asOf.
func (t Task) IsOverdue(asOf time.Time) bool {
	return t.Status == StatusPending && t.DueAt.Before(asOf)
}

func (t Task) CanComplete() error {
	if t.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeValidation, "task %s is already %s", t.ID, t.Status)
	}
	return nil
}

// Complete returns the completed task. Call CanComplete first.
func (t Task) Complete(now time.Time) Task {
	t.Status = StatusCompleted
	t.CompletedAt = &now
	return t
}
