package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"edms/internal/printing"
	"edms/internal/rbac"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the print ledger as seen by the transport.
type Service interface {
	RequestPrint(ctx context.Context, actor rbac.Actor, req printing.RequestPrintRequest) (printing.Event, error)
	IssuePrint(ctx context.Context, actor rbac.Actor, eventID string, quantity int) ([]printing.Watermark, error)
	ReconcilePrint(ctx context.Context, actor rbac.Actor, eventID string, returned []int) (printing.Event, error)
	Get(ctx context.Context, eventID string) (printing.Event, error)
	ListByDocument(ctx context.Context, documentID string) ([]printing.Event, error)
}

// IssueResponse lists the watermarks to stamp on the issued copies.
type IssueResponse struct {
	PrintEventID string               `json:"print_event_id"`
	Copies       []printing.Watermark `json:"copies"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/prints/requests", h.HandleRequest)
	r.Post("/prints/issues", h.HandleIssue)
	r.Post("/prints/{print_event_id}/reconcile", h.HandleReconcile)
	r.Get("/prints/{print_event_id}", h.HandleGet)
	r.Get("/documents/{document_id}/prints", h.HandleListByDocument)
}

// HandleRequest handles POST /prints/requests.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PrintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ev, err := h.service.RequestPrint(ctx, actor, printing.RequestPrintRequest{
		DocumentID: req.DocumentID,
		VersionID:  req.VersionID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.fail(ctx, w, "print request failed", "document_id", req.DocumentID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

// HandleIssue handles POST /prints/issues.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	marks, err := h.service.IssuePrint(ctx, actor, req.PrintEventID, req.Quantity)
	if err != nil {
		h.fail(ctx, w, "print issue failed", "print_event_id", req.PrintEventID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IssueResponse{PrintEventID: req.PrintEventID, Copies: marks})
}

// HandleReconcile handles POST /prints/{print_event_id}/reconcile.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	eventID := chi.URLParam(r, "print_event_id")

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReconcileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ev, err := h.service.ReconcilePrint(ctx, actor, eventID, req.ReturnedCopyNumbers)
	if err != nil {
		h.fail(ctx, w, "print reconciliation failed", "print_event_id", eventID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

// HandleGet handles GET /prints/{print_event_id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := rbac.ActorFromContext(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ev, err := h.service.Get(ctx, chi.URLParam(r, "print_event_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

// HandleListByDocument handles GET /documents/{document_id}/prints.
func (h *Handler) HandleListByDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := rbac.ActorFromContext(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.ListByDocument(ctx, chi.URLParam(r, "document_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []printing.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"print_events": events})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg, idKey, id string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		idKey, id,
		"error", err,
	)
	httputil.WriteError(w, err)
}
