package registry

import (
	"context"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/adapters/memory"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/schema"
)

func noop(ctx context.Context, args ...any) (any, error) { return nil, nil }

func makeModel(t *testing.T, name string, public bool, init model.Initializer) *model.Model {
	t.Helper()
	m, err := model.Build(context.Background(), memory.New(nil), schema.Definition{
		Name:       name,
		Public:     public,
		Properties: schema.Schema{"name": {Type: schema.FieldTypeString}},
	}, model.Options{Logger: zerolog.Nop(), Init: init})
	if err != nil {
		t.Fatalf("Build(%s) error = %v", name, err)
	}
	return m
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	m := makeModel(t, "User", true, nil)

	if err := r.Register(m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, ok := r.Get("User")
	if !ok || got != m {
		t.Error("Get() should find the registered model")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := New()
	if err := r.Register(makeModel(t, "User", true, nil)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(makeModel(t, "User", true, nil)); err == nil {
		t.Error("second Register() with the same name should fail")
	}
	if err := r.Register(makeModel(t, "user", true, nil)); err == nil {
		t.Error("Register() of a model mapping to the same resource should fail")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		if err := r.Register(makeModel(t, name, false, nil)); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, m := range r.List() {
		names = append(names, m.Name())
	}
	want := []string{"Zeta", "Alpha", "Mid"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() = %v, want registration order %v", names, want)
		}
	}
}

func TestRegistry_Routes(t *testing.T) {
	r := New()
	r.Register(makeModel(t, "Post", true, func(m *model.Model) error {
		return m.RegisterEndpoint(noop, model.EndpointOptions{
			Name: "publish", Verb: "POST", Path: "/:id/publish", Exposed: true,
		})
	}))
	r.Register(makeModel(t, "Secret", false, func(m *model.Model) error {
		return m.RegisterEndpoint(noop, model.EndpointOptions{
			Name: "peek", Verb: "GET", Path: "/peek",
		})
	}))

	routes, conflicts := r.Routes()
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	// 5 standard routes for Post, none for the non-public Secret, plus
	// one endpoint each.
	if len(routes) != 7 {
		t.Fatalf("Routes() = %d routes, want 7", len(routes))
	}

	byName := make(map[string]Route)
	for _, rt := range routes {
		byName[rt.Model+"."+rt.Name()] = rt
	}
	if rt := byName["Post.find"]; rt.Path != "/api/post" || !rt.Auth {
		t.Errorf("Post.find = %+v", rt)
	}
	if rt := byName["Post.publish"]; rt.Path != "/api/post/{id:[0-9]+}/publish" || rt.Auth {
		t.Errorf("Post.publish = %+v", rt)
	}
	if rt := byName["Secret.peek"]; rt.Path != "/api/secret/peek" || !rt.Auth {
		t.Errorf("Secret.peek = %+v", rt)
	}
}

func TestRegistry_RoutesFirstWins(t *testing.T) {
	r := New()
	r.Register(makeModel(t, "Post", true, func(m *model.Model) error {
		return m.RegisterEndpoint(noop, model.EndpointOptions{
			Name: "shadow", Verb: "GET", Path: "/{slug}",
		})
	}))

	routes, conflicts := r.Routes()
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %v, want one", conflicts)
	}
	c := conflicts[0]
	if c.Route.Name() != "shadow" || c.Existing.Op != model.OpFindByID {
		t.Errorf("conflict = %v", c)
	}
	if len(routes) != 5 {
		t.Errorf("Routes() = %d routes, want the 5 standard ones", len(routes))
	}
}

func TestRouteKey(t *testing.T) {
	a := Route{Verb: "GET", Path: "/api/x/{id:[0-9]+}"}
	b := Route{Verb: "GET", Path: "/api/x/{slug}"}
	c := Route{Verb: "POST", Path: "/api/x/{slug}"}
	if a.Key() != b.Key() {
		t.Errorf("Key() %q != %q", a.Key(), b.Key())
	}
	if b.Key() == c.Key() {
		t.Error("different verbs should not collide")
	}
}

func TestLess(t *testing.T) {
	routes := []Route{
		{Verb: "DELETE", Path: "/api/a/{id}"},
		{Verb: "GET", Path: "/api/a"},
		{Verb: "POST", Path: "/api/a"},
		{Verb: "GET", Path: "/api/a/{id}"},
	}
	sort.Slice(routes, func(i, j int) bool { return Less(routes[i], routes[j]) })

	want := []string{"GET /api/a", "POST /api/a", "GET /api/a/{id}", "DELETE /api/a/{id}"}
	for i, rt := range routes {
		if got := rt.Verb + " " + rt.Path; got != want[i] {
			t.Errorf("routes[%d] = %s, want %s", i, got, want[i])
		}
	}
}
