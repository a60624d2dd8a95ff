package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"edms/internal/identity"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// Service is the identity service as seen by the transport.
type Service interface {
	RegisterUser(ctx context.Context, actor rbac.Actor, req identity.RegisterRequest) (identity.User, error)
	Lookup(ctx context.Context, userID string) (identity.User, error)
	Reauthenticate(ctx context.Context, actorID, credential string) error
}

// TokenIssuer mints bearer tokens.
type TokenIssuer interface {
	Issue(userID string, roles []string, ttl time.Duration) (string, error)
}

// RegisterRequest is the HTTP request body for POST /users.
type RegisterRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Secret string   `json:"secret"`
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	return nil
}

// TokenRequest is the HTTP request body for POST /auth/token.
type TokenRequest struct {
	UserID string `json:"user_id"`
	Secret string `json:"secret"`
}

func (r *TokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" || r.Secret == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user_id and secret are required")
	}
	return nil
}

// TokenResponse is the HTTP response for POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type Handler struct {
	service  Service
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

func New(service Service, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, tokenTTL: tokenTTL, logger: logger}
}

// RegisterPublic mounts the unauthenticated token endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/token", h.HandleToken)
}

// Register mounts the authenticated user endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.HandleRegister)
}

// HandleToken handles POST /auth/token. The secret is checked the same way
// as at signing time, so failed logins count toward the lockout.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.Reauthenticate(ctx, req.UserID, req.Secret); err != nil {
		h.logger.WarnContext(ctx, "token request rejected",
			"request_id", requestID,
			"user_id", req.UserID,
			"client_ip", requestcontext.ClientIP(ctx),
		)
		if dErrors.HasCode(err, dErrors.CodeReauthFailed) {
			err = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.Lookup(ctx, req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token, err := h.tokens.Issue(u.ID, rbac.Names(u.Roles), h.tokenTTL)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokenTTL.Seconds()),
	})
}

// HandleRegister handles POST /users.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := rbac.ActorFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	u, err := h.service.RegisterUser(ctx, actor, identity.RegisterRequest{
		UserID: req.UserID,
		Roles:  req.Roles,
		Secret: req.Secret,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, u)
}
