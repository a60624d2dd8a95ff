// Package domainerrors defines the error kinds every engine operation returns.
//
// Services translate store facts (pkg/platform/sentinel) into one of these
// codes so callers can branch on the kind of failure without matching
// message strings:
//
//	if dErrors.HasCode(err, dErrors.CodeValidation) { ... }
//
// Stores never return these directly; they return sentinel errors.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of a domain error.
type Code string

const (
	// CodeNotFound: a referenced document, version, print event or task does not exist.
	CodeNotFound Code = "not_found"
	// CodeForbidden: the actor's roles are not permitted for the operation.
	CodeForbidden Code = "forbidden"
	// CodeReauthFailed: the credential presented at signing time did not verify.
	CodeReauthFailed Code = "reauth_failed"
	// CodeWorkflow: the requested state transition is not legal from the current state.
	CodeWorkflow Code = "workflow"
	// CodeValidation: a domain rule was violated.
	CodeValidation Code = "validation"
	// CodeNotReady: the document is not in a condition to be signed (no versions).
	CodeNotReady Code = "not_ready"
	// CodeIntegrity: an invariant the system maintains itself was violated.
	CodeIntegrity Code = "integrity"
	// CodeConflict: the identifier is already taken.
	CodeConflict Code = "conflict"
	// CodeTimeout: the per-document critical section could not be acquired in time.
	CodeTimeout Code = "timeout"
	// CodeBadRequest: malformed input at a transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized: no authenticated actor.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal: unexpected infrastructure failure.
	CodeInternal Code = "internal_error"
)

// Error is a code-tagged domain error. Details carries structured context
// (e.g. the missing copy numbers of a failed reconciliation).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a code. The cause stays reachable via errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// With returns a copy of e carrying an additional detail.
func (e *Error) With(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// CodeOf returns the code of the outermost domain error in err's chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsAuthorization reports whether err is either kind of authorization
// rejection: missing permission or failed re-authentication.
func IsAuthorization(err error) bool {
	return HasCode(err, CodeForbidden) || HasCode(err, CodeReauthFailed)
}

// Detail fetches a structured detail from the outermost domain error.
func Detail(err error, key string) (any, bool) {
	var de *Error
	if !errors.As(err, &de) || de.Details == nil {
		return nil, false
	}
	v, ok := de.Details[key]
	return v, ok
}

// ToHTTPStatus maps codes onto transport status codes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden, CodeReauthFailed:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeWorkflow, CodeConflict, CodeNotReady:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
