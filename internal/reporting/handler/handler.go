package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"edms/internal/document"
	"edms/internal/rbac"
	"edms/internal/reporting"
	"edms/internal/task"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/audit"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the reporting service as seen by the transport.
type Service interface {
	PendingApprovals(ctx context.Context, actor rbac.Actor) ([]document.Document, error)
	EffectiveDocuments(ctx context.Context, actor rbac.Actor) ([]document.Document, error)
	OverdueTasks(ctx context.Context, actor rbac.Actor, asOf time.Time) ([]task.Task, error)
	ExportAudit(ctx context.Context, actor rbac.Actor, documentID string) ([]audit.Entry, error)
	Dashboard(ctx context.Context, actor rbac.Actor, asOf time.Time) (reporting.Dashboard, error)
}

// AuditExportResponse is the verified audit trail of one document.
type AuditExportResponse struct {
	DocumentID string        `json:"document_id"`
	Entries    []audit.Entry `json:"entries"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/reports/pending-approvals", h.HandlePendingApprovals)
	r.Get("/reports/effective-documents", h.HandleEffectiveDocuments)
	r.Get("/reports/overdue-tasks", h.HandleOverdueTasks)
	r.Get("/reports/dashboard", h.HandleDashboard)
	r.Get("/documents/{document_id}/audit", h.HandleExportAudit)
}

// HandlePendingApprovals handles GET /reports/pending-approvals.
func (h *Handler) HandlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	h.listDocuments(w, r, h.service.PendingApprovals)
}

// HandleEffectiveDocuments handles GET /reports/effective-documents.
func (h *Handler) HandleEffectiveDocuments(w http.ResponseWriter, r *http.Request) {
	h.listDocuments(w, r, h.service.EffectiveDocuments)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request, fn func(context.Context, rbac.Actor) ([]document.Document, error)) {
	ctx := r.Context()
	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := fn(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// HandleOverdueTasks handles GET /reports/overdue-tasks?as_of=RFC3339.
func (h *Handler) HandleOverdueTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tasks, err := h.service.OverdueTasks(ctx, actor, asOf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "as_of": asOf})
}

// HandleDashboard handles GET /reports/dashboard?as_of=RFC3339.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.Dashboard(ctx, actor, asOf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleExportAudit handles GET /documents/{document_id}/audit.
func (h *Handler) HandleExportAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := chi.URLParam(r, "document_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.ExportAudit(ctx, actor, documentID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeIntegrity) {
			h.logger.ErrorContext(ctx, "CRITICAL: audit export refused, chain verification failed",
				"request_id", requestcontext.RequestID(ctx),
				"document_id", documentID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditExportResponse{DocumentID: documentID, Entries: entries})
}

// parseAsOf reads the as_of query parameter, defaulting to the request time.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return requestcontext.Now(r.Context()), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "as_of must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}
