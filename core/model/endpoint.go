package model

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/artpar/apigen/core/convention"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/core/validation"
	"github.com/artpar/apigen/pkg/apierr"
)

// EndpointFunc implements a custom endpoint. args follow the order of
// EndpointOptions.Args; an optional argument that was not supplied is nil.
type EndpointFunc func(ctx context.Context, args ...any) (any, error)

// Arg describes one endpoint argument.
type Arg struct {
	Name     string           `json:"name" yaml:"name"`
	Type     schema.FieldType `json:"type" yaml:"type"`
	Required bool             `json:"required,omitempty" yaml:"required,omitempty"`

	// FromPath reads the argument from a path parameter instead of the
	// JSON body.
	FromPath bool `json:"from_path,omitempty" yaml:"from_path,omitempty"`
}

// EndpointOptions configures RegisterEndpoint.
type EndpointOptions struct {
	// Name is also the name Call uses.
	Name string

	// Private endpoints are callable internally but never routed.
	Private bool

	// Exposed endpoints skip token authentication.
	Exposed bool

	Verb string
	Path string
	Args []Arg
}

// Endpoint is a custom route registered by a model.
type Endpoint struct {
	Name    string
	Model   string
	Verb    string
	Path    string // route pattern, e.g. /api/user/{id:[0-9]+}/activate
	Exposed bool
	Args    []Arg

	fn EndpointFunc
}

var verbs = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// RegisterEndpoint validates opts and registers fn. Unless opts.Private is
// set the endpoint is routed; either way Call(name) reaches fn directly.
func (m *Model) RegisterEndpoint(fn EndpointFunc, opts EndpointOptions) error {
	if fn == nil {
		return fmt.Errorf("endpoint %q: function is required", opts.Name)
	}
	if opts.Name == "" {
		return fmt.Errorf("endpoint on %s: name is required", m.name)
	}
	if _, dup := m.endpoints[opts.Name]; dup {
		return fmt.Errorf("endpoint %q already registered on %s", opts.Name, m.name)
	}

	verb := strings.ToUpper(opts.Verb)
	if !verbs[verb] {
		return fmt.Errorf("endpoint %q: unsupported http verb %q", opts.Name, opts.Verb)
	}
	if strings.TrimSpace(opts.Path) == "" {
		return fmt.Errorf("endpoint %q: http path is required", opts.Name)
	}

	for i, arg := range opts.Args {
		if arg.Name == "" {
			return fmt.Errorf("endpoint %q: argument %d has no name", opts.Name, i)
		}
		if arg.Type == "" || !schema.IsValidFieldType(arg.Type) {
			return fmt.Errorf("endpoint %q: argument %q has invalid type %q", opts.Name, arg.Name, arg.Type)
		}
	}

	ep := &Endpoint{
		Name:    opts.Name,
		Model:   m.name,
		Verb:    verb,
		Path:    m.derived.CollectionPath() + routePattern(opts.Path, m.adapter.IDPathRegex()),
		Exposed: opts.Exposed,
		Args:    append([]Arg(nil), opts.Args...),
		fn:      fn,
	}

	m.endpoints[opts.Name] = ep
	if !opts.Private {
		m.public = append(m.public, ep)
	}
	return nil
}

// Endpoints returns the routed endpoints in registration order.
func (m *Model) Endpoints() []*Endpoint {
	return append([]*Endpoint(nil), m.public...)
}

// Call invokes the endpoint name directly, without argument extraction
// or authentication.
func (m *Model) Call(ctx context.Context, name string, args ...any) (any, error) {
	ep, ok := m.endpoints[name]
	if !ok {
		return nil, apierr.NotFound("endpoint %q is not defined on model %s", name, m.name)
	}
	return ep.fn(ctx, args...)
}

// Handle extracts the endpoint's arguments from path parameters and the
// decoded JSON body, checks them and runs the endpoint.
func (e *Endpoint) Handle(ctx context.Context, params map[string]string, body map[string]any) (any, error) {
	args, err := e.gather(params, body)
	if err != nil {
		return nil, err
	}
	return e.fn(ctx, args...)
}

func (e *Endpoint) gather(params map[string]string, body map[string]any) ([]any, error) {
	args := make([]any, len(e.Args))
	for i, arg := range e.Args {
		var (
			value   any
			present bool
		)
		if arg.FromPath {
			var s string
			s, present = params[arg.Name]
			value = s
		} else {
			value, present = body[arg.Name]
		}

		if !present {
			if arg.Required {
				return nil, apierr.BadRequest("%s is required", arg.Name)
			}
			continue
		}

		// Path parameters are always strings; they are cast. Body values
		// arrive typed and must already match, dates excepted.
		if arg.FromPath || arg.Type == schema.FieldTypeDate {
			cast, ok := validation.Cast(value, arg.Type)
			if !ok {
				return nil, apierr.BadRequest("%s is not of type %s", arg.Name, arg.Type)
			}
			value = cast
		} else if !validation.Matches(value, arg.Type) {
			return nil, apierr.BadRequest("%s is not of type %s", arg.Name, arg.Type)
		}
		args[i] = value
	}
	return args, nil
}

// PathParams returns the names of the path parameters in the route
// pattern, in order.
func (e *Endpoint) PathParams() []string {
	var names []string
	for _, seg := range strings.Split(e.Path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			if i := strings.Index(name, ":"); i >= 0 {
				name = name[:i]
			}
			names = append(names, name)
		}
	}
	return names
}

// routePattern normalizes a custom path into a route pattern. ":name" and
// "{name}" segments become parameters; the id parameter is constrained to
// the adapter's id regex.
func routePattern(path, idRegex string) string {
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" {
		return ""
	}

	segs := strings.Split(path, "/")
	for i, seg := range segs {
		var name string
		switch {
		case strings.HasPrefix(seg, ":"):
			name = seg[1:]
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && !strings.Contains(seg, ":"):
			name = seg[1 : len(seg)-1]
		default:
			continue
		}
		if name == storage.FieldID && idRegex != "" {
			segs[i] = "{" + name + ":" + idRegex + "}"
		} else {
			segs[i] = "{" + name + "}"
		}
	}
	return strings.Join(segs, "/")
}

// StandardRoute is one of the five CRUD routes of a public model.
type StandardRoute struct {
	Verb string
	Path string
	Op   Op
}

// StandardRoutes returns the CRUD routes of the model in attach order.
func (m *Model) StandardRoutes() []StandardRoute {
	base := m.derived.CollectionPath()
	byID := base + "/{" + convention.FieldID + ":" + m.adapter.IDPathRegex() + "}"
	return []StandardRoute{
		{Verb: http.MethodGet, Path: base, Op: OpFind},
		{Verb: http.MethodGet, Path: byID, Op: OpFindByID},
		{Verb: http.MethodPost, Path: base, Op: OpCreate},
		{Verb: http.MethodPatch, Path: byID, Op: OpUpdate},
		{Verb: http.MethodDelete, Path: byID, Op: OpDelete},
	}
}
