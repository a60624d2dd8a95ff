package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMatching(t *testing.T) {
	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeValidation, "meaning required"))
		assert.True(t, HasCode(err, CodeValidation))
		assert.False(t, HasCode(err, CodeWorkflow))
		assert.Equal(t, CodeValidation, CodeOf(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("db down")
		err := Wrap(cause, CodeInternal, "failed to load document")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("both authorization kinds are authorization errors", func(t *testing.T) {
		assert.True(t, IsAuthorization(New(CodeForbidden, "role not permitted")))
		assert.True(t, IsAuthorization(New(CodeReauthFailed, "credential mismatch")))
		assert.False(t, IsAuthorization(New(CodeValidation, "nope")))
	})
}

func TestDetails(t *testing.T) {
	base := New(CodeValidation, "copies unaccounted for")
	err := base.With("missing", []int{2, 3})

	v, ok := Detail(err, "missing")
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, v)

	_, ok = Detail(base, "missing")
	assert.False(t, ok, "With must not mutate the receiver")
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:     http.StatusNotFound,
		CodeForbidden:    http.StatusForbidden,
		CodeReauthFailed: http.StatusForbidden,
		CodeWorkflow:     http.StatusConflict,
		CodeValidation:   http.StatusUnprocessableEntity,
		CodeIntegrity:    http.StatusInternalServerError,
		CodeTimeout:      http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
