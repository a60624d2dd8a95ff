// Package request stamps every inbound request with the values audit entries
// record: a correlation id, the client address and a fixed "now" so that all
// timestamps one operation writes agree.
package request

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"edms/pkg/requestcontext"
)

// HeaderRequestID carries a caller-supplied correlation id.
const HeaderRequestID = "X-Request-ID"

// Stamp reuses a well-formed X-Request-ID or generates one, echoes it on the
// response and stores it in the context with the client IP and request time.
// Forwarding headers are honoured only when trustProxy is set; otherwise the
// socket peer is the client.
func Stamp(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := requestcontext.WithRequestID(r.Context(), id)
			ctx = requestcontext.WithClientIP(ctx, ClientIP(r, trustProxy))
			ctx = requestcontext.WithTime(ctx, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP resolves the caller's address. Behind a proxy the left-most
// X-Forwarded-For entry, then X-Real-IP, names the client.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
