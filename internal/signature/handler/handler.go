package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"edms/internal/document"
	"edms/internal/rbac"
	"edms/internal/signature"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the signature binder as seen by the transport.
type Service interface {
	ApproveWithSignature(ctx context.Context, actor rbac.Actor, req signature.ApproveRequest) (signature.Event, document.Document, error)
	Signatures(ctx context.Context, documentID string) ([]signature.Event, error)
}

// ApproveRequest is the HTTP request body for POST /documents/{document_id}/approve.
// Credential is the approver's signing secret, checked independently of the
// bearer token.
type ApproveRequest struct {
	Meaning    string `json:"signature_meaning"`
	Credential string `json:"credential"`
}

func (r *ApproveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Meaning = strings.TrimSpace(r.Meaning)
	if r.Credential == "" {
		return dErrors.New(dErrors.CodeBadRequest, "credential is required")
	}
	return nil
}

// ApproveResponse is the HTTP response for a successful approval.
type ApproveResponse struct {
	Signature signature.Event   `json:"signature"`
	Document  document.Document `json:"document"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/documents/{document_id}/approve", h.HandleApprove)
	r.Get("/documents/{document_id}/signatures", h.HandleList)
}

// HandleApprove handles POST /documents/{document_id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "document_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ApproveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ev, doc, err := h.service.ApproveWithSignature(ctx, actor, signature.ApproveRequest{
		DocumentID: documentID,
		Meaning:    req.Meaning,
		Credential: req.Credential,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "approval failed",
			"request_id", requestID,
			"user_id", actor.ID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApproveResponse{Signature: ev, Document: doc})
}

// HandleList handles GET /documents/{document_id}/signatures.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := rbac.ActorFromContext(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.Signatures(ctx, chi.URLParam(r, "document_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []signature.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"signatures": events})
}
