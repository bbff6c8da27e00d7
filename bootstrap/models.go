package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/adapters/memory"
	"github.com/artpar/apigen/adapters/mongo"
	"github.com/artpar/apigen/adapters/sqlite"
	"github.com/artpar/apigen/config"
	"github.com/artpar/apigen/core/builtin"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

// NewAdapter returns the storage adapter named by database.adapter.
// It is not connected yet.
func NewAdapter(cfg config.DatabaseConfig, c ports.Clock) (storage.Adapter, error) {
	switch cfg.Adapter {
	case config.AdapterMemory, "":
		return memory.New(c), nil
	case config.AdapterMongo:
		return mongo.New(mongo.Config{
			URI:      cfg.URI,
			Host:     cfg.Host,
			Port:     cfg.Port,
			Database: cfg.Database,
		}, c), nil
	case config.AdapterSQLite:
		return sqlite.New(cfg.DSN, c), nil
	default:
		return nil, fmt.Errorf("unknown database adapter %q", cfg.Adapter)
	}
}

// offlineAdapter stores in memory but reports the id shape of the
// configured adapter, so the routes it yields match the real ones.
type offlineAdapter struct {
	storage.Adapter
	ids storage.Adapter
}

func offline(configured storage.Adapter, c ports.Clock) storage.Adapter {
	return &offlineAdapter{Adapter: memory.New(c), ids: configured}
}

func (a *offlineAdapter) IDType() schema.FieldType { return a.ids.IDType() }

func (a *offlineAdapter) IDPathRegex() string { return a.ids.IDPathRegex() }

func (a *offlineAdapter) HasValidID(q storage.Query) bool { return a.ids.HasValidID(q) }

// Definitions returns the built-in definitions (unless disabled) followed
// by those under models.dir. A missing models directory is not an error.
func Definitions(cfg *config.Config, logger zerolog.Logger) ([]schema.Definition, error) {
	var defs []schema.Definition

	if !cfg.Models.DisableDefaults {
		builtins, err := builtin.Definitions(cfg.Auth.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("built-in models: %w", err)
		}
		defs = append(defs, builtins...)
	}

	files, err := schema.ParseDir(cfg.Models.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn().Str("dir", cfg.Models.Dir).Msg("models directory not found, using built-in models only")
	case err != nil:
		return nil, fmt.Errorf("model definitions: %w", err)
	}

	seen := make(map[string]bool, len(defs)+len(files))
	for _, def := range defs {
		seen[def.Name] = true
	}
	for _, def := range files {
		if seen[def.Name] {
			return nil, fmt.Errorf("model definitions: %q is already defined", def.Name)
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}

// RegistryOptions are the collaborators BuildRegistry hands to each model.
type RegistryOptions struct {
	Logger       zerolog.Logger
	Recorder     model.Recorder
	IDs          ports.IDGenerator
	Initializers map[string]model.Initializer
}

// BuildRegistry builds every definition against adapter, in order, and
// registers the result. Initializers are matched by model name; an
// initializer naming no definition is logged and ignored.
func BuildRegistry(ctx context.Context, adapter storage.Adapter, defs []schema.Definition, opts RegistryOptions) (*registry.Registry, error) {
	reg := registry.New()

	known := make(map[string]bool, len(defs))
	for _, def := range defs {
		known[def.Name] = true
	}
	for name := range opts.Initializers {
		if !known[name] {
			opts.Logger.Warn().Str("model", name).Msg("initializer for unknown model ignored")
		}
	}

	for _, def := range defs {
		m, err := model.Build(ctx, adapter, def, model.Options{
			Logger:   opts.Logger,
			Recorder: opts.Recorder,
			IDs:      opts.IDs,
			Models:   reg,
			Init:     opts.Initializers[def.Name],
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// mergeInitializers runs the built-in initializer for a model before the
// application's own.
func mergeInitializers(base, extra map[string]model.Initializer) map[string]model.Initializer {
	out := make(map[string]model.Initializer, len(base)+len(extra))
	for name, fn := range base {
		out[name] = fn
	}
	for name, fn := range extra {
		first, ok := out[name]
		if !ok {
			out[name] = fn
			continue
		}
		then := fn
		out[name] = func(m *model.Model) error {
			if err := first(m); err != nil {
				return err
			}
			return then(m)
		}
	}
	return out
}
