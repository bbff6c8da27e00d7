// Package builtin defines the models every deployment carries unless
// disabled: User, with password hashing and a login endpoint, and
// AccessToken, the credential that protects non-exposed routes.
package builtin

import (
	"embed"
	"fmt"
	"time"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/adapters/hasher"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/ports"
)

// Model names.
const (
	UserModel        = "User"
	AccessTokenModel = "AccessToken"
)

// DefaultTokenTTL is two weeks.
const DefaultTokenTTL = 14 * 24 * time.Hour

//go:embed models/*.yaml
var definitionFiles embed.FS

// Deps are the collaborators of the built-in models.
type Deps struct {
	Hasher   ports.Hasher
	Clock    ports.Clock
	TokenTTL time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Hasher == nil {
		d.Hasher = hasher.NewBcrypt(0)
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = DefaultTokenTTL
	}
	return d
}

// Definitions returns the User and AccessToken definitions. ttl becomes
// the default ttl of new tokens.
func Definitions(ttl time.Duration) ([]schema.Definition, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	var defs []schema.Definition
	for _, file := range []string{"models/user.yaml", "models/accesstoken.yaml"} {
		data, err := definitionFiles.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		def, err := schema.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		defs = append(defs, def)
	}

	tokens := defs[1]
	field := tokens.Properties["ttl"]
	field.Default = ttl.Seconds()
	tokens.Properties["ttl"] = field
	return defs, nil
}

// Initializers returns the logic of the built-in models by name.
func Initializers(deps Deps) map[string]model.Initializer {
	deps = deps.withDefaults()
	return map[string]model.Initializer{
		UserModel:        userInit(deps),
		AccessTokenModel: accessTokenInit(deps),
	}
}
