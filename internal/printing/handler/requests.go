package handler

import (
	"strings"

	dErrors "edms/pkg/domain-errors"
)

// maxCopiesPerRequest bounds a single request or issue.
const maxCopiesPerRequest = 1000

// PrintRequest is the HTTP request body for POST /prints/requests.
type PrintRequest struct {
	DocumentID string `json:"document_id"`
	VersionID  string `json:"version_id"`
	Quantity   int    `json:"quantity"`
}

func (r *PrintRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.VersionID = strings.TrimSpace(r.VersionID)
	if r.DocumentID == "" || r.VersionID == "" {
		return dErrors.New(dErrors.CodeValidation, "document_id and version_id are required")
	}
	if r.Quantity > maxCopiesPerRequest {
		return dErrors.Newf(dErrors.CodeValidation, "quantity must be at most %d", maxCopiesPerRequest)
	}
	return nil
}

// IssueRequest is the HTTP request body for POST /prints/issues.
type IssueRequest struct {
	PrintEventID string `json:"print_event_id"`
	Quantity     int    `json:"quantity"`
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.PrintEventID = strings.TrimSpace(r.PrintEventID)
	if r.PrintEventID == "" {
		return dErrors.New(dErrors.CodeValidation, "print_event_id is required")
	}
	if r.Quantity > maxCopiesPerRequest {
		return dErrors.Newf(dErrors.CodeValidation, "quantity must be at most %d", maxCopiesPerRequest)
	}
	return nil
}

// ReconcileRequest is the HTTP request body for POST /prints/{print_event_id}/reconcile.
type ReconcileRequest struct {
	ReturnedCopyNumbers []int `json:"returned_copy_numbers"`
}

func (r *ReconcileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ReturnedCopyNumbers == nil {
		return dErrors.New(dErrors.CodeValidation, "returned_copy_numbers is required")
	}
	return nil
}
