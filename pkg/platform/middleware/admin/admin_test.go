package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name     string
		expected string
		sent     string
		want     int
	}{
		{name: "open when unset", expected: "", sent: "", want: http.StatusOK},
		{name: "matching token", expected: "s3cret", sent: "s3cret", want: http.StatusOK},
		{name: "missing token", expected: "s3cret", sent: "", want: http.StatusUnauthorized},
		{name: "prefix only", expected: "s3cret", sent: "s3c", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.sent != "" {
				r.Header.Set(HeaderAdminToken, tc.sent)
			}
			rec := httptest.NewRecorder()
			RequireAdminToken(tc.expected, logger)(ok).ServeHTTP(rec, r)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"admin token required"}`, rec.Body.String())
			}
		})
	}
}
