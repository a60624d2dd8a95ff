package handler

import (
	"strings"

	dErrors "edms/pkg/domain-errors"
)

// CreateDraftRequest is the HTTP request body for POST /documents.
type CreateDraftRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	OwnerID    string `json:"owner_id,omitempty"`
}

func (r *CreateDraftRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DocumentID) > 128 || len(r.Title) > 512 {
		return dErrors.New(dErrors.CodeValidation, "document_id or title is too long")
	}
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.Title = strings.TrimSpace(r.Title)
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	if r.DocumentID == "" {
		return dErrors.New(dErrors.CodeValidation, "document_id is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

// AddVersionRequest is the HTTP request body for POST /documents/{document_id}/versions.
type AddVersionRequest struct {
	ContentRef string `json:"content_reference"`
	Checksum   string `json:"checksum"`
}

func (r *AddVersionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ContentRef = strings.TrimSpace(r.ContentRef)
	r.Checksum = strings.TrimSpace(r.Checksum)
	if r.ContentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "content_reference is required")
	}
	if r.Checksum == "" {
		return dErrors.New(dErrors.CodeValidation, "checksum is required")
	}
	return nil
}

// RejectRequest is the HTTP request body for POST /documents/{document_id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}
