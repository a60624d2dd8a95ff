// Package httptransport assembles the HTTP surface: shared middleware, the
// public token endpoint and the authenticated domain handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"edms/internal/ratelimit"
	"edms/pkg/platform/httputil"
	"edms/pkg/platform/middleware/admin"
	"edms/pkg/platform/middleware/auth"
	"edms/pkg/platform/middleware/request"
)

// Registrar mounts authenticated routes.
type Registrar interface {
	Register(r chi.Router)
}

// PublicRegistrar mounts routes that run before authentication.
type PublicRegistrar interface {
	RegisterPublic(r chi.Router)
}

// Config carries the cross-cutting pieces of the router.
type Config struct {
	Logger    *slog.Logger
	Validator auth.JWTValidator
	// Metrics serves /metrics when set, behind MetricsToken if that is set.
	Metrics      http.Handler
	MetricsToken string
	// Health reports backend readiness on /healthz.
	Health func(ctx context.Context) error
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// PublicLimit throttles the public routes per client IP when set.
	PublicLimit *ratelimit.Window
}

// NewRouter wires all endpoints.
func NewRouter(cfg Config, public PublicRegistrar, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.Stamp(cfg.TrustProxy))
	r.Use(accessLog(cfg.Logger))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.With(admin.RequireAdminToken(cfg.MetricsToken, cfg.Logger)).Handle("/metrics", cfg.Metrics)
	}
	if public != nil {
		r.Group(func(r chi.Router) {
			if cfg.PublicLimit != nil {
				r.Use(ratelimit.PerClientIP(cfg.PublicLimit, cfg.Logger))
			}
			public.RegisterPublic(r)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", w.Header().Get(request.HeaderRequestID),
			)
		})
	}
}
