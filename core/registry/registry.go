// Package registry holds the built models of one process and derives the
// routes they claim. Registration order is preserved: it decides which of
// two colliding routes wins.
package registry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/artpar/apigen/core/model"
)

// Registry manages built models by name.
type Registry struct {
	mu sync.RWMutex

	models map[string]*model.Model

	// resources maps path segments to the model that claimed them.
	resources map[string]string

	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models:    make(map[string]*model.Model),
		resources: make(map[string]string),
	}
}

// Register adds m. Names must be unique, and so must the lower-cased
// resource segment they map to.
func (r *Registry) Register(m *model.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name()]; exists {
		return fmt.Errorf("model %q already registered", m.Name())
	}
	res := m.Derived().Resource
	if existing, exists := r.resources[res]; exists {
		return fmt.Errorf("resource %q already claimed by model %q", res, existing)
	}

	r.models[m.Name()] = m
	r.resources[res] = m.Name()
	r.order = append(r.order, m.Name())
	return nil
}

// Get returns a model by name. It satisfies model.Lookup.
func (r *Registry) Get(name string) (*model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// MustGet is Get for names the caller registered itself.
func (r *Registry) MustGet(name string) *model.Model {
	m, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry: model %q not registered", name))
	}
	return m
}

// List returns the models in registration order.
func (r *Registry) List() []*model.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Route is one HTTP route claimed by a model.
type Route struct {
	Verb  string
	Path  string
	Model string

	// Op is set for the standard CRUD routes.
	Op model.Op

	// Endpoint is set for custom endpoints.
	Endpoint *model.Endpoint

	// Auth reports whether an access token is required.
	Auth bool
}

// Name is the operation or endpoint name.
func (rt Route) Name() string {
	if rt.Endpoint != nil {
		return rt.Endpoint.Name
	}
	return string(rt.Op)
}

// Key identifies the route for collision checks. Parameter segments are
// reduced to "{}" so /a/{id:[0-9]+} and /a/{slug} collide.
func (rt Route) Key() string {
	segs := strings.Split(rt.Path, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segs[i] = "{}"
		}
	}
	return rt.Verb + " " + strings.Join(segs, "/")
}

// Conflict is a route that lost to an earlier registration.
type Conflict struct {
	Route    Route
	Existing Route
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s %s (%s.%s) collides with %s.%s",
		c.Route.Verb, c.Route.Path, c.Route.Model, c.Route.Name(),
		c.Existing.Model, c.Existing.Name())
}

// Routes returns every route to attach, in attach order: the standard
// routes of public models first, then custom endpoints. A route whose
// key is already taken is left out and reported as a Conflict.
func (r *Registry) Routes() ([]Route, []Conflict) {
	models := r.List()

	var candidates []Route
	for _, m := range models {
		if !m.Public() {
			continue
		}
		for _, sr := range m.StandardRoutes() {
			candidates = append(candidates, Route{
				Verb:  sr.Verb,
				Path:  sr.Path,
				Model: m.Name(),
				Op:    sr.Op,
				Auth:  true,
			})
		}
	}
	for _, m := range models {
		for _, ep := range m.Endpoints() {
			candidates = append(candidates, Route{
				Verb:     ep.Verb,
				Path:     ep.Path,
				Model:    m.Name(),
				Endpoint: ep,
				Auth:     !ep.Exposed,
			})
		}
	}

	var (
		routes    []Route
		conflicts []Conflict
	)
	seen := make(map[string]Route, len(candidates))
	for _, rt := range candidates {
		if existing, ok := seen[rt.Key()]; ok {
			conflicts = append(conflicts, Conflict{Route: rt, Existing: existing})
			continue
		}
		seen[rt.Key()] = rt
		routes = append(routes, rt)
	}
	return routes, conflicts
}

// verbOrder sorts routes for display.
var verbOrder = map[string]int{
	http.MethodGet:    0,
	http.MethodPost:   1,
	http.MethodPut:    2,
	http.MethodPatch:  3,
	http.MethodDelete: 4,
}

// Less orders routes by path, then verb.
func Less(a, b Route) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return verbOrder[a.Verb] < verbOrder[b.Verb]
}
