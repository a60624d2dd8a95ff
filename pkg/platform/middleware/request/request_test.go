package request

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edms/pkg/requestcontext"
)

func TestStamp(t *testing.T) {
	var gotID, gotIP string
	var gotTime time.Time
	h := Stamp(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotID = requestcontext.RequestID(r.Context())
		gotIP = requestcontext.ClientIP(r.Context())
		gotTime = requestcontext.Now(r.Context())
	}))

	t.Run("generates an id when none is supplied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		_, err := uuid.Parse(gotID)
		require.NoError(t, err)
		assert.Equal(t, gotID, rec.Header().Get(HeaderRequestID))
		assert.Equal(t, "192.0.2.1", gotIP)
		assert.WithinDuration(t, time.Now(), gotTime, time.Second)
	})

	t.Run("keeps a well-formed caller id", func(t *testing.T) {
		id := uuid.NewString()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, id)
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.Equal(t, id, gotID)
	})

	t.Run("replaces a malformed caller id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, "'; drop table audit_entries")
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.NotEqual(t, "'; drop table audit_entries", gotID)
	})
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "peer v4", remote: "10.1.2.3:5555", want: "10.1.2.3"},
		{name: "peer v6", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "forwarded ignored without trust", remote: "10.1.2.3:5555",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "10.1.2.3"},
		{name: "left-most forwarded", remote: "10.1.2.3:5555", trustProxy: true,
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: "203.0.113.9"},
		{name: "real ip fallback", remote: "10.1.2.3:5555", trustProxy: true,
			headers: map[string]string{"X-Real-IP": " 198.51.100.4 "}, want: "198.51.100.4"},
		{name: "no port", remote: "unix-socket", want: "unix-socket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r, tc.trustProxy))
		})
	}
}
