package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edms/pkg/platform/middleware/request"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestWindowSlides(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(2, time.Minute, c.now)

	assert.True(t, w.Allow("10.0.0.1").Allowed)
	c.t = c.t.Add(30 * time.Second)
	res := w.Allow("10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res = w.Allow("10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	assert.True(t, w.Allow("10.0.0.2").Allowed, "keys are independent")

	c.t = c.t.Add(31 * time.Second)
	assert.True(t, w.Allow("10.0.0.1").Allowed, "first admission left the window")
}

func TestSweepDropsIdleKeys(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Minute, c.now)
	w.Allow("a")
	w.Allow("b")
	c.t = c.t.Add(45 * time.Second)
	w.Allow("b")

	c.t = c.t.Add(30 * time.Second)
	w.Sweep()
	assert.Equal(t, 1, w.size())
}

func TestPerClientIP(t *testing.T) {
	c := &clock{t: time.Now()}
	w := NewWindow(1, time.Minute, c.now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := request.Stamp(true)(PerClientIP(w, logger)(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	})))

	send := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
		r.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusNoContent, send("203.0.113.7").Code)

	rec := send("203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1").Code)
}
