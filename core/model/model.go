// Package model turns a model definition plus a storage adapter into a
// live Model: typed CRUD methods wrapped in before/after hook pipelines,
// hidden-field filtering for HTTP callers, instance methods and custom
// endpoints.
package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/adapters/idgen"
	"github.com/artpar/apigen/core/convention"
	"github.com/artpar/apigen/core/hooks"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
	"github.com/artpar/apigen/ports"
)

// HookFunc intercepts an operation. Returning an error aborts the call.
type HookFunc = hooks.Func[*Context]

// InstanceMethod is a method callable on a record of the model.
type InstanceMethod func(ctx context.Context, rec storage.Record) (any, error)

// Initializer registers hooks, instance methods and endpoints. It runs
// once while the model is built.
type Initializer func(m *Model) error

// Recorder observes every operation. status is one of StatusOK,
// StatusError or StatusRejected.
type Recorder interface {
	ObserveOperation(model, operation, status string, duration time.Duration)
}

// Lookup resolves sibling models by name.
type Lookup interface {
	Get(name string) (*Model, bool)
}

// Options configures Build.
type Options struct {
	Logger   zerolog.Logger
	Recorder Recorder

	// IDs generates trace ids. Defaults to UUIDs.
	IDs ports.IDGenerator

	// Models lets initializers and endpoints reach other models.
	Models Lookup

	Init Initializer
}

// Model is one built model. Registration methods are meant for the
// initializer; after Build returns the model is read-only.
type Model struct {
	name     string
	derived  convention.Derived
	adapter  storage.Adapter
	coll     any
	log      zerolog.Logger
	recorder Recorder
	ids      ports.IDGenerator
	models   Lookup

	hooks     *hooks.Queue[*Context]
	instance  map[string]InstanceMethod
	endpoints map[string]*Endpoint
	public    []*Endpoint
}

// Build derives the model's schema, runs its initializer and materializes
// its collection in adapter.
func Build(ctx context.Context, adapter storage.Adapter, def schema.Definition, opts Options) (*Model, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("build model: name is required")
	}

	ids := opts.IDs
	if ids == nil {
		ids = idgen.UUID{}
	}

	m := &Model{
		name:      def.Name,
		derived:   convention.Derive(def),
		adapter:   adapter,
		log:       opts.Logger.With().Str("model", def.Name).Logger(),
		recorder:  opts.Recorder,
		ids:       ids,
		models:    opts.Models,
		hooks:     hooks.NewQueue[*Context](),
		instance:  make(map[string]InstanceMethod),
		endpoints: make(map[string]*Endpoint),
	}

	if opts.Init != nil {
		if err := opts.Init(m); err != nil {
			return nil, fmt.Errorf("init model %s: %w", def.Name, err)
		}
	}

	if err := adapter.AddModel(ctx, def.Name, m.derived.Schema); err != nil {
		return nil, fmt.Errorf("add model %s: %w", def.Name, err)
	}
	coll, err := adapter.Collection(def.Name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", def.Name, err)
	}
	m.coll = coll

	m.log.Debug().
		Int("hooks", m.hookCount()).
		Int("endpoints", len(m.endpoints)).
		Msg("model built")
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Public reports whether the standard REST routes are exposed.
func (m *Model) Public() bool { return m.derived.Source.Public }

// Derived returns the derived schema information.
func (m *Model) Derived() convention.Derived { return m.derived }

// Schema returns the merged schema, without the adapter's id field.
func (m *Model) Schema() schema.Schema { return m.derived.Schema }

// Adapter returns the storage adapter backing the model.
func (m *Model) Adapter() storage.Adapter { return m.adapter }

// Models returns the lookup passed to Build, which may be nil.
func (m *Model) Models() Lookup { return m.models }

// Logger returns the model's logger.
func (m *Model) Logger() zerolog.Logger { return m.log }

// Hook registers fn under a two-word descriptor such as "before save".
// Phases are before and after; events are find, save and delete.
func (m *Model) Hook(desc string, fn HookFunc) error {
	if fn == nil {
		return fmt.Errorf("hook %q: nil function", desc)
	}
	key, err := parseHookKey(desc)
	if err != nil {
		return err
	}
	m.hooks.Add(key, fn)
	return nil
}

func parseHookKey(desc string) (hooks.Key, error) {
	parts := strings.Fields(desc)
	if len(parts) != 2 {
		return hooks.Key{}, fmt.Errorf("invalid hook descriptor %q: want \"<phase> <event>\"", desc)
	}

	phase := hooks.Phase(strings.ToLower(parts[0]))
	event := hooks.Event(strings.ToLower(parts[1]))

	switch phase {
	case hooks.Before, hooks.After:
	default:
		return hooks.Key{}, fmt.Errorf("invalid hook phase %q in %q", parts[0], desc)
	}
	switch event {
	case hooks.Find, hooks.Save, hooks.Delete:
	default:
		return hooks.Key{}, fmt.Errorf("invalid hook event %q in %q", parts[1], desc)
	}
	return hooks.Key{Phase: phase, Event: event}, nil
}

func (m *Model) hookCount() int {
	n := 0
	for _, p := range []hooks.Phase{hooks.Before, hooks.After} {
		for _, e := range []hooks.Event{hooks.Find, hooks.Save, hooks.Delete} {
			n += m.hooks.Len(hooks.Key{Phase: p, Event: e})
		}
	}
	return n
}

// AddInstanceMethod registers fn as a method on the model's records.
// Registering a name twice replaces the earlier method.
func (m *Model) AddInstanceMethod(name string, fn InstanceMethod) error {
	if name == "" || fn == nil {
		return fmt.Errorf("instance method: name and function are required")
	}
	m.instance[name] = fn
	return nil
}

// HasInstanceMethod reports whether name is registered.
func (m *Model) HasInstanceMethod(name string) bool {
	_, ok := m.instance[name]
	return ok
}

// CallInstance runs the instance method name against rec.
func (m *Model) CallInstance(ctx context.Context, name string, rec storage.Record) (any, error) {
	fn, ok := m.instance[name]
	if !ok {
		return nil, apierr.NotFound("instance method %q is not defined on model %s", name, m.name)
	}
	return fn(ctx, rec)
}

// HasValidID delegates to the adapter.
func (m *Model) HasValidID(q storage.Query) bool {
	return m.adapter.HasValidID(q)
}
