package http

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/apigen/pkg/apierr"
)

// ErrorResponder renders errors as {"error":{"status","message"}}.
type ErrorResponder struct {
	log zerolog.Logger

	// logErrors is consulted per request so the setting can be reloaded.
	logErrors func() bool
}

// NewErrorResponder creates a responder. logErrors reports whether errors
// are logged before being written; nil never logs.
func NewErrorResponder(log zerolog.Logger, logErrors func() bool) *ErrorResponder {
	return &ErrorResponder{log: log, logErrors: logErrors}
}

// Write logs err when enabled and writes the envelope.
func (e *ErrorResponder) Write(w http.ResponseWriter, r *http.Request, err error) {
	if e.logErrors != nil && e.logErrors() {
		e.log.Error().
			Err(err).
			Int("status", apierr.StatusOf(err)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
	}
	apierr.Write(w, err)
}
