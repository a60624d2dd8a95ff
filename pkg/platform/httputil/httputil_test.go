package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "edms/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "internal_error", body.Error)
		assert.Empty(t, body.Description)
	})

	t.Run("integrity error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeIntegrity, "hash mismatch at sequence 4"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, decodeError(t, w).Description)
	})

	t.Run("validation error carries details", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "copies unaccounted for").With("missing", []int{2, 5}))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "validation", body.Error)
		assert.Equal(t, "copies unaccounted for", body.Description)
		assert.Equal(t, []any{float64(2), float64(5)}, body.Details["missing"])
	})

	t.Run("plain error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type pingRequest struct {
	Name string `json:"name"`
}

func (r *pingRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantCode int
	}{
		{name: "valid body is trimmed", body: `{"name":"  sop  "}`, wantOK: true},
		{name: "malformed JSON", body: `{"name":`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"x","extra":1}`, wantCode: http.StatusBadRequest},
		{name: "fails validation", body: `{"name":"   "}`, wantCode: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			req, ok := DecodeAndPrepare[pingRequest](w, r, logger, r.Context(), "req-1")

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.NotNil(t, req)
				assert.Equal(t, "sop", req.Name)
				return
			}
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
