// Package admin guards operational endpoints (/metrics) with a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// HeaderAdminToken carries the operator token.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken admits requests whose X-Admin-Token equals expected.
// With no expected token configured the route stays open.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get(HeaderAdminToken)), want) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger.WarnContext(ctx, "admin token mismatch",
				"path", r.URL.Path,
				"client_ip", requestcontext.ClientIP(ctx),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error:       "unauthorized",
				Description: "admin token required",
			})
		})
	}
}
