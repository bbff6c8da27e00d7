package builtin

import (
	"context"
	"time"

	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

// IsAliveMethod is the instance method name reporting token liveness.
const IsAliveMethod = "isAlive"

func accessTokenInit(deps Deps) model.Initializer {
	return func(tokens *model.Model) error {
		return tokens.AddInstanceMethod(IsAliveMethod, func(ctx context.Context, rec storage.Record) (any, error) {
			return isAlive(rec, deps.Clock.Now()), nil
		})
	}
}

// isAlive reports whether created + ttl, in whole seconds, lies after now.
// A token without a creation time or ttl is dead.
func isAlive(token storage.Record, now time.Time) bool {
	created, ok := token[storage.FieldCreated].(time.Time)
	if !ok {
		return false
	}
	ttl, ok := seconds(token["ttl"])
	if !ok {
		return false
	}
	return created.Unix()+ttl > now.Unix()
}

func seconds(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// Tokens resolves access tokens for the HTTP channel.
type Tokens struct {
	model *model.Model
}

// NewTokens wraps the AccessToken model.
func NewTokens(m *model.Model) *Tokens {
	return &Tokens{model: m}
}

// FindByID returns the token with the given id, or nil.
func (t *Tokens) FindByID(ctx context.Context, id string) (storage.Record, error) {
	return t.model.FindByID(ctx, id)
}

// IsAlive runs the isAlive instance method on token.
func (t *Tokens) IsAlive(ctx context.Context, token storage.Record) (bool, error) {
	v, err := t.model.CallInstance(ctx, IsAliveMethod, token)
	if err != nil {
		return false, err
	}
	alive, ok := v.(bool)
	if !ok {
		return false, apierr.Internal("%s returned %T", IsAliveMethod, v)
	}
	return alive, nil
}

// HasValidID reports whether q's id is well formed for the token store.
func (t *Tokens) HasValidID(q storage.Query) bool {
	return t.model.HasValidID(q)
}
