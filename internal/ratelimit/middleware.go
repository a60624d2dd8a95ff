package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"edms/pkg/platform/httputil"
	"edms/pkg/requestcontext"
)

// PerClientIP rejects requests from a client IP that exceeded the window's
// limit with 429 and a Retry-After header. Requires request.Stamp upstream.
func PerClientIP(w *Window, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			res := w.Allow(ip)

			rw.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			rw.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			rw.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retry := max(int(math.Ceil(res.RetryAfter.Seconds())), 1)
				rw.Header().Set("Retry-After", strconv.Itoa(retry))
				logger.WarnContext(ctx, "rate limit exceeded",
					"path", r.URL.Path,
					"client_ip", ip,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteJSON(rw, http.StatusTooManyRequests, httputil.ErrorResponse{
					Error:       "rate_limited",
					Description: "too many requests, retry later",
				})
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
