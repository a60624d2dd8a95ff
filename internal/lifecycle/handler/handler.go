package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"edms/internal/document"
	"edms/internal/lifecycle"
	"edms/internal/rbac"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the lifecycle engine as seen by the transport.
type Service interface {
	CreateDraft(ctx context.Context, actor rbac.Actor, req lifecycle.CreateDraftRequest) (document.Document, error)
	AddVersion(ctx context.Context, actor rbac.Actor, req lifecycle.AddVersionRequest) (document.Version, error)
	Get(ctx context.Context, documentID string) (document.Document, error)
	Versions(ctx context.Context, documentID string) ([]document.Version, error)
	SubmitReview(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error)
	Reject(ctx context.Context, actor rbac.Actor, documentID, reason string) (document.Document, error)
	ReturnToDraft(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error)
	MakeEffective(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error)
	MarkObsolete(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error)
}

// Handler wires document lifecycle endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts lifecycle endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleCreateDraft)
	r.Get("/documents/{document_id}", h.HandleGet)
	r.Get("/documents/{document_id}/versions", h.HandleListVersions)
	r.Post("/documents/{document_id}/versions", h.HandleAddVersion)
	r.Post("/documents/{document_id}/submit", h.transitionHandler("submit for review", h.service.SubmitReview))
	r.Post("/documents/{document_id}/reject", h.HandleReject)
	r.Post("/documents/{document_id}/return-to-draft", h.transitionHandler("return to draft", h.service.ReturnToDraft))
	r.Post("/documents/{document_id}/effective", h.transitionHandler("make effective", h.service.MakeEffective))
	r.Post("/documents/{document_id}/obsolete", h.transitionHandler("mark obsolete", h.service.MarkObsolete))
}

// HandleCreateDraft handles POST /documents.
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateDraftRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.CreateDraft(ctx, actor, lifecycle.CreateDraftRequest{
		DocumentID: req.DocumentID,
		Title:      req.Title,
		OwnerID:    req.OwnerID,
	})
	if err != nil {
		h.fail(ctx, w, "create draft failed", req.DocumentID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleGet handles GET /documents/{document_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := rbac.ActorFromContext(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Get(ctx, chi.URLParam(r, "document_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleListVersions handles GET /documents/{document_id}/versions.
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := rbac.ActorFromContext(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	versions, err := h.service.Versions(ctx, chi.URLParam(r, "document_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if versions == nil {
		versions = []document.Version{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// HandleAddVersion handles POST /documents/{document_id}/versions.
func (h *Handler) HandleAddVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "document_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddVersionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.service.AddVersion(ctx, actor, lifecycle.AddVersionRequest{
		DocumentID: documentID,
		ContentRef: req.ContentRef,
		Checksum:   req.Checksum,
	})
	if err != nil {
		h.fail(ctx, w, "add version failed", documentID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

// HandleReject handles POST /documents/{document_id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "document_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Reject(ctx, actor, documentID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "reject failed", documentID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

type transitionFunc func(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error)

// transitionHandler serves the body-less transition endpoints.
func (h *Handler) transitionHandler(name string, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		documentID := chi.URLParam(r, "document_id")

		actor, err := rbac.ActorFromContext(ctx)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		doc, err := fn(ctx, actor, documentID)
		if err != nil {
			h.fail(ctx, w, name+" failed", documentID, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg, documentID string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"document_id", documentID,
		"error", err,
	)
	httputil.WriteError(w, err)
}
