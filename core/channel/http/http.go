// Package http builds the REST surface of the registered models: five
// standard routes per public model plus every routed custom endpoint.
// Each route sanitizes its input, authenticates the access token unless
// it is exposed, then calls the model.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/pkg/apierr"
)

// Options configures a Channel.
type Options struct {
	// Tokens validates access tokens. Without it every protected route
	// answers 401.
	Tokens TokenLookup

	// Errors renders failures. Defaults to a responder that never logs.
	Errors *ErrorResponder

	// Auth observes authentication failures. Optional.
	Auth AuthObserver

	Logger zerolog.Logger
}

// Channel is the HTTP channel of the engine.
type Channel struct {
	router chi.Router
	reg    *registry.Registry
	tokens TokenLookup
	errors *ErrorResponder
	auth   AuthObserver
	log    zerolog.Logger

	routes    []registry.Route
	conflicts []registry.Conflict
}

// New builds the router for every route the registry claims.
func New(reg *registry.Registry, opts Options) *Channel {
	c := &Channel{
		router: chi.NewRouter(),
		reg:    reg,
		tokens: opts.Tokens,
		errors: opts.Errors,
		auth:   opts.Auth,
		log:    opts.Logger,
	}
	if c.errors == nil {
		c.errors = NewErrorResponder(opts.Logger, nil)
	}

	c.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		c.errors.Write(w, r, apierr.NotFound(""))
	})
	c.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		c.errors.Write(w, r, &apierr.Error{
			Kind:    apierr.KindBadRequest,
			Status:  http.StatusMethodNotAllowed,
			Message: "Method not allowed",
		})
	})

	c.router.Mount("/_schema", NewSchemaHandler(reg).Routes())

	c.routes, c.conflicts = reg.Routes()
	for _, conflict := range c.conflicts {
		c.log.Warn().
			Str("verb", conflict.Route.Verb).
			Str("path", conflict.Route.Path).
			Str("model", conflict.Route.Model).
			Str("route", conflict.Route.Name()).
			Str("shadowed_by", conflict.Existing.Model+"."+conflict.Existing.Name()).
			Msg("route collides with an earlier registration, skipped")
	}
	for _, rt := range c.routes {
		c.attach(rt)
	}

	return c
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "http"
}

// Handler returns the HTTP handler.
func (c *Channel) Handler() http.Handler {
	return c.router
}

// Routes returns the attached routes in attach order.
func (c *Channel) Routes() []registry.Route {
	return append([]registry.Route(nil), c.routes...)
}

// Conflicts returns the routes that were skipped as duplicates.
func (c *Channel) Conflicts() []registry.Conflict {
	return append([]registry.Conflict(nil), c.conflicts...)
}

func (c *Channel) attach(rt registry.Route) {
	var h http.HandlerFunc
	if rt.Endpoint != nil {
		h = c.handleEndpoint(rt.Endpoint)
	} else {
		h = c.standardHandler(rt)
	}

	c.router.With(c.sanitizeInput, c.tokenAuth(rt)).Method(rt.Verb, rt.Path, h)

	c.log.Debug().
		Str("verb", rt.Verb).
		Str("path", rt.Path).
		Str("model", rt.Model).
		Bool("auth", rt.Auth).
		Msg("route attached")
}
