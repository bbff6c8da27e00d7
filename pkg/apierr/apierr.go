// Package apierr defines the error taxonomy shared by adapters, models and
// the HTTP layer, plus the JSON envelope errors are rendered into.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUsage        Kind = "usage"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindUnsupported  Kind = "unsupported"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
)

// Error is the single error type returned by every adapter and model operation.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func newf(kind Kind, status int, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

// Validation reports a write that does not satisfy the schema (missing
// required field, uniqueness violation, empty payload).
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, http.StatusBadRequest, format, args...)
}

// Usage reports a malformed argument to an operation.
func Usage(format string, args ...any) *Error {
	return newf(KindUsage, http.StatusBadRequest, format, args...)
}

// NotFound reports an id-keyed miss or an unknown model.
func NotFound(format string, args ...any) *Error {
	if format == "" {
		format = "Not found"
	}
	return newf(KindNotFound, http.StatusNotFound, format, args...)
}

// Unauthorized reports a failed token or credential check.
func Unauthorized(format string, args ...any) *Error {
	if format == "" {
		format = "Unauthorized"
	}
	return newf(KindUnauthorized, http.StatusUnauthorized, format, args...)
}

// Unsupported reports an operation the active adapter does not implement.
func Unsupported(format string, args ...any) *Error {
	return newf(KindUnsupported, http.StatusNotImplemented, format, args...)
}

// BadRequest reports malformed client input (bad JSON, bad argument types).
func BadRequest(format string, args ...any) *Error {
	if format == "" {
		format = "Bad request"
	}
	return newf(KindBadRequest, http.StatusBadRequest, format, args...)
}

// Internal reports a failure that is not the caller's fault.
func Internal(format string, args ...any) *Error {
	return newf(KindInternal, http.StatusInternalServerError, format, args...)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusOf maps err to an HTTP status code, defaulting to 500.
func StatusOf(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Body is the inner object of the error envelope.
type Body struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Envelope is the JSON shape of every error response.
type Envelope struct {
	Error Body `json:"error"`
}

// EnvelopeOf builds the envelope for err.
func EnvelopeOf(err error) Envelope {
	return Envelope{Error: Body{Status: StatusOf(err), Message: err.Error()}}
}

// Write renders err as an envelope with the mirrored status code.
func Write(w http.ResponseWriter, err error) {
	env := EnvelopeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Error.Status)
	json.NewEncoder(w).Encode(env)
}
