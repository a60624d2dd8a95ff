package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"edms/internal/rbac"
	"edms/internal/task"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the review task service as seen by the transport.
type Service interface {
	Assign(ctx context.Context, actor rbac.Actor, req task.AssignRequest) (task.Task, error)
	Complete(ctx context.Context, actor rbac.Actor, taskID string) (task.Task, error)
}

// AssignRequest is the HTTP request body for POST /tasks.
type AssignRequest struct {
	DocumentID string    `json:"document_id"`
	AssigneeID string    `json:"assignee_id"`
	DueAt      time.Time `json:"due_at"`
}

func (r *AssignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.AssigneeID = strings.TrimSpace(r.AssigneeID)
	if r.DocumentID == "" || r.AssigneeID == "" {
		return dErrors.New(dErrors.CodeValidation, "document_id and assignee_id are required")
	}
	if r.DueAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "due_at is required")
	}
	return nil
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/tasks", h.HandleAssign)
	r.Post("/tasks/{task_id}/complete", h.HandleComplete)
}

// HandleAssign handles POST /tasks.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	t, err := h.service.Assign(ctx, actor, task.AssignRequest{
		DocumentID: req.DocumentID,
		AssigneeID: req.AssigneeID,
		DueAt:      req.DueAt.UTC(),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "task assignment failed",
			"request_id", requestID,
			"user_id", actor.ID,
			"document_id", req.DocumentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

// HandleComplete handles POST /tasks/{task_id}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "task_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Complete(ctx, actor, taskID)
	if err != nil {
		h.logger.WarnContext(ctx, "task completion failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", actor.ID,
			"task_id", taskID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}
