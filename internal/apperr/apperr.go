// Package apperr defines the error taxonomy shared by services, middleware
// and handlers. Repositories return plain sentinel errors; services wrap the
// ones a client may learn about into an *Error, and the HTTP error handler
// renders every *Error as {"message", "code", "errors"} with its status.
// Anything that is not an *Error is treated as an internal failure.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error independently of the transport.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindTransientStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransientStore:
		return "transient_store"
	default:
		return "internal"
	}
}

// Machine-readable codes. The token codes let clients tell an expired
// access token (refresh and retry) from an invalid one (log in again).
const (
	CodeValidation    = "validation_failed"
	CodeUnauthorized  = "unauthorized"
	CodeTokenMissing  = "token_missing"
	CodeTokenExpired  = "token_expired"
	CodeTokenInvalid  = "token_invalid"
	CodeRefreshDenied = "refresh_denied"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeSessionIssue  = "session_issue_failed"
	CodeInternal      = "internal_error"
)

// Error is a classified, client-safe error. Message is what the client
// sees; Err keeps the underlying cause for logs and errors.Is.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input with optional per-field detail.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Fields: fields}
}

// BadRequest is a validation error without field detail.
func BadRequest(message string) *Error {
	return Validation(message, nil)
}

// Unauthenticated is a 401: credentials were absent or wrong.
func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Status: http.StatusUnauthorized, Code: code, Message: message}
}

// TokenRejected is a 403: a token was presented but cannot be honoured.
func TokenRejected(code, message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Status: http.StatusForbidden, Code: code, Message: message, Err: cause}
}

// Forbidden is a 403 for an authenticated caller lacking a capability.
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// NotFound is a 404.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict is a 409, e.g. a duplicate email.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// TransientStore is surfaced when internal retries around a store
// uniqueness collision were exhausted.
func TransientStore(message string, cause error) *Error {
	return &Error{Kind: KindTransientStore, Status: http.StatusInternalServerError, Code: CodeSessionIssue, Message: message, Err: cause}
}

// Internal hides cause behind a generic message.
func Internal(message string, cause error) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: cause}
}

// From returns err as an *Error, classifying unknown errors as internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("", err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

// Body is the JSON response body for e. Fields are included only when
// present.
func (e *Error) Body() map[string]any {
	body := map[string]any{"message": e.Message, "code": e.Code}
	if len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}
	return body
}
