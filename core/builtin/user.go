package builtin

import (
	"context"

	"github.com/artpar/apigen/adapters/hasher"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

func userInit(deps Deps) model.Initializer {
	return func(users *model.Model) error {
		if err := users.Hook("before save", hashPassword(deps)); err != nil {
			return err
		}
		return users.RegisterEndpoint(login(users, deps), model.EndpointOptions{
			Name:    "login",
			Verb:    "POST",
			Path:    "/login",
			Exposed: true,
			Args: []model.Arg{
				{Name: "username", Type: "string", Required: true},
				{Name: "password", Type: "string", Required: true},
			},
		})
	}
}

// hashPassword replaces a non-empty plaintext password with its hash.
// Values that already are bcrypt hashes pass through.
func hashPassword(deps Deps) model.HookFunc {
	return func(ctx context.Context, c *model.Context) error {
		user := c.Record()
		if user == nil {
			return nil
		}
		password, ok := user["password"].(string)
		if !ok || password == "" || hasher.IsHash(password) {
			return nil
		}
		hash, err := deps.Hasher.Hash(password)
		if err != nil {
			return apierr.Internal("hash password").Wrap(err)
		}
		user["password"] = hash
		return nil
	}
}

// login checks the credentials and returns a live access token, reusing
// the first one the user already holds. Expired and surplus tokens are
// removed; a failed removal is logged.
func login(users *model.Model, deps Deps) model.EndpointFunc {
	return func(ctx context.Context, args ...any) (any, error) {
		username, _ := args[0].(string)
		password, _ := args[1].(string)

		tokens, err := accessTokens(users)
		if err != nil {
			return nil, err
		}

		user, err := users.FindOne(ctx, storage.Query{"username": username})
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, apierr.Unauthorized("")
		}
		hash, _ := user["password"].(string)
		if !deps.Hasher.Compare(hash, password) {
			return nil, apierr.Unauthorized("")
		}

		userID := storage.IDString(user[storage.FieldID])
		held, err := tokens.Find(ctx, storage.Query{"userId": userID})
		if err != nil {
			return nil, err
		}

		var live, dead []storage.Record
		for _, t := range held {
			if isAlive(t, deps.Clock.Now()) {
				live = append(live, t)
			} else {
				dead = append(dead, t)
			}
		}

		var token storage.Record
		if len(live) > 0 {
			token = live[0]
			dead = append(dead, live[1:]...)
		} else {
			token, err = tokens.Create(ctx, storage.Record{"userId": userID})
			if err != nil {
				return nil, err
			}
		}

		cleanupTokens(ctx, tokens, dead)
		return tokens.FilterHidden(token), nil
	}
}

func accessTokens(users *model.Model) (*model.Model, error) {
	if users.Models() == nil {
		return nil, apierr.Internal("%s model is not available", AccessTokenModel)
	}
	tokens, ok := users.Models().Get(AccessTokenModel)
	if !ok {
		return nil, apierr.Internal("%s model is not available", AccessTokenModel)
	}
	return tokens, nil
}

func cleanupTokens(ctx context.Context, tokens *model.Model, stale []storage.Record) {
	if len(stale) == 0 {
		return
	}
	ids := make([]any, len(stale))
	for i, t := range stale {
		ids[i] = t[storage.FieldID]
	}
	res, err := tokens.DeleteMany(ctx, storage.Query{storage.FieldID: storage.Query{"$in": ids}})
	log := tokens.Logger()
	if err != nil {
		log.Warn().Err(err).Int("tokens", len(ids)).Msg("stale token cleanup failed")
		return
	}
	log.Debug().Int64("removed", res.Count).Msg("stale tokens removed")
}
