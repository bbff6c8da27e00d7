package http

import (
	"context"
	"net/http"

	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

// TokenParam is the query parameter carrying the access token id.
const TokenParam = "access_token"

// TokenLookup validates access tokens.
type TokenLookup interface {
	// FindByID returns the token record, or nil when there is none.
	FindByID(ctx context.Context, id string) (storage.Record, error)

	// IsAlive reports whether the token has not expired.
	IsAlive(ctx context.Context, token storage.Record) (bool, error)

	// HasValidID reports whether q's id is well formed for the token store.
	HasValidID(q storage.Query) bool
}

// AuthObserver is told why authentication failed.
type AuthObserver interface {
	ObserveAuthFailure(reason string)
}

// Reasons passed to AuthObserver.
const (
	AuthMissingToken = "missing_token"
	AuthMalformed    = "malformed_token"
	AuthUnknownToken = "unknown_token"
	AuthExpired      = "expired_token"
)

// tokenAuth enforces the access token on non-exposed routes. A valid
// token is removed from the query so it never becomes a filter.
func (c *Channel) tokenAuth(rt registry.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := inputFrom(r)
			if !rt.Auth {
				next.ServeHTTP(w, r)
				return
			}

			reason, err := c.checkToken(r.Context(), in.query[TokenParam])
			if err != nil {
				c.errors.Write(w, r, err)
				return
			}
			if reason != "" {
				if c.auth != nil {
					c.auth.ObserveAuthFailure(reason)
				}
				c.log.Debug().
					Str("path", r.URL.Path).
					Str("reason", reason).
					Msg("unauthorized")
				c.errors.Write(w, r, apierr.Unauthorized(""))
				return
			}

			delete(in.query, TokenParam)
			next.ServeHTTP(w, r)
		})
	}
}

// checkToken returns the failure reason, or "" for a live token.
func (c *Channel) checkToken(ctx context.Context, raw any) (string, error) {
	id, _ := raw.(string)
	if id == "" {
		return AuthMissingToken, nil
	}
	if c.tokens == nil || !c.tokens.HasValidID(storage.Query{storage.FieldID: id}) {
		return AuthMalformed, nil
	}

	token, err := c.tokens.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if token == nil {
		return AuthUnknownToken, nil
	}

	alive, err := c.tokens.IsAlive(ctx, token)
	if err != nil {
		return "", err
	}
	if !alive {
		return AuthExpired, nil
	}
	return "", nil
}
