package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/adapters/memory"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
)

// fakeTokens accepts the tokens in live; dead tokens exist but expired.
type fakeTokens struct {
	live map[string]bool
	dead map[string]bool
}

func (f *fakeTokens) FindByID(ctx context.Context, id string) (storage.Record, error) {
	if f.live[id] || f.dead[id] {
		return storage.Record{"id": id}, nil
	}
	return nil, nil
}

func (f *fakeTokens) IsAlive(ctx context.Context, token storage.Record) (bool, error) {
	return f.live[token["id"].(string)], nil
}

func (f *fakeTokens) HasValidID(q storage.Query) bool {
	id, _ := q["id"].(string)
	return !strings.Contains(id, "bad")
}

type countingAuth struct{ reasons []string }

func (c *countingAuth) ObserveAuthFailure(reason string) { c.reasons = append(c.reasons, reason) }

type fixture struct {
	channel *Channel
	model   *model.Model
	auth    *countingAuth
	queries []storage.Query
}

func newFixture(t *testing.T, init model.Initializer) *fixture {
	t.Helper()
	f := &fixture{auth: &countingAuth{}}

	reg := registry.New()
	m, err := model.Build(context.Background(), memory.New(nil), schema.Definition{
		Name:   "Crud",
		Public: true,
		Properties: schema.Schema{
			"name":   {Type: schema.FieldTypeString},
			"secret": {Type: schema.FieldTypeString, Hidden: true},
		},
	}, model.Options{
		Logger: zerolog.Nop(),
		Models: reg,
		Init: func(m *model.Model) error {
			m.Hook("before find", func(ctx context.Context, c *model.Context) error {
				f.queries = append(f.queries, c.Query)
				return nil
			})
			if init != nil {
				return init(m)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := reg.Register(m); err != nil {
		t.Fatal(err)
	}

	f.model = m
	f.channel = New(reg, Options{
		Tokens: &fakeTokens{
			live: map[string]bool{"good": true},
			dead: map[string]bool{"old": true},
		},
		Auth:   f.auth,
		Logger: zerolog.Nop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.channel.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestUnauthenticatedGet(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/crud", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":{"status":401,"message":"Unauthorized"}}` {
		t.Errorf("body = %s", got)
	}
	if len(f.auth.reasons) != 1 || f.auth.reasons[0] != AuthMissingToken {
		t.Errorf("auth failures = %v", f.auth.reasons)
	}
}

func TestTokenFailures(t *testing.T) {
	tests := []struct {
		token  string
		reason string
	}{
		{"bad-format", AuthMalformed},
		{"nobody", AuthUnknownToken},
		{"old", AuthExpired},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			f := newFixture(t, nil)
			w := f.do(t, http.MethodGet, "/api/crud?access_token="+tt.token, "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if len(f.auth.reasons) != 1 || f.auth.reasons[0] != tt.reason {
				t.Errorf("auth failures = %v, want [%s]", f.auth.reasons, tt.reason)
			}
		})
	}
}

func TestCreateThenGetHidesSecret(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/crud?access_token=good", `{"name":"Crud","secret":"s"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d: %s", w.Code, w.Body.String())
	}
	created := decode[map[string]any](t, w)
	if _, ok := created["secret"]; ok {
		t.Error("POST response leaked secret")
	}
	id := storage.IDString(created["id"])

	// Internal access still sees it.
	rec, err := f.model.FindByID(context.Background(), id)
	if err != nil || rec["secret"] != "s" {
		t.Fatalf("FindByID() = %v, %v", rec, err)
	}

	w = f.do(t, http.MethodGet, "/api/crud/"+id+"?access_token=good", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	got := decode[map[string]any](t, w)
	if got["name"] != "Crud" {
		t.Errorf("name = %v", got["name"])
	}
	if _, ok := got["secret"]; ok {
		t.Error("GET by id leaked secret")
	}

	w = f.do(t, http.MethodGet, "/api/crud?access_token=good", "")
	list := decode[[]map[string]any](t, w)
	if len(list) != 1 {
		t.Fatalf("GET list = %v", list)
	}
	if _, ok := list[0]["secret"]; ok {
		t.Error("GET list leaked secret")
	}
}

func TestTokenStrippedFromQuery(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/crud?access_token=good&name=x", "")

	if len(f.queries) != 1 {
		t.Fatalf("find hook ran %d times", len(f.queries))
	}
	q := f.queries[0]
	if _, ok := q[TokenParam]; ok {
		t.Error("access_token reached the model query")
	}
	if q["name"] != "x" {
		t.Errorf("query = %v", q)
	}
}

func TestDeleteUnknownID(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodDelete, "/api/crud/999?access_token=good", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"count":0}` {
		t.Errorf("body = %s", got)
	}
}

func TestKeyedRoutesNotFound(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/crud/99?access_token=good", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET status = %d", w.Code)
	}
	body := decode[map[string]map[string]any](t, w)
	if msg := body["error"]["message"]; msg != `Resource "Crud" with id 99 not found.` {
		t.Errorf("message = %v", msg)
	}

	w = f.do(t, http.MethodPatch, "/api/crud/99?access_token=good", `{"name":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("PATCH status = %d", w.Code)
	}

	// Ids of the wrong shape never reach a handler.
	w = f.do(t, http.MethodGet, "/api/crud/abc?access_token=good", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("malformed id status = %d", w.Code)
	}
}

func TestFindWithMalformedIDQuery(t *testing.T) {
	f := newFixture(t, nil)
	f.model.Create(context.Background(), storage.Record{"name": "a"})

	w := f.do(t, http.MethodGet, "/api/crud?access_token=good&id=abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s", got)
	}
	if len(f.queries) != 0 {
		t.Error("model was queried")
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.model.Create(context.Background(), storage.Record{"name": "a", "secret": "s"})
	id := storage.IDString(rec["id"])

	w := f.do(t, http.MethodPatch, "/api/crud/"+id+"?access_token=good", `{"name":"b","id":777}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if got["name"] != "b" || storage.IDString(got["id"]) != id {
		t.Errorf("updated = %v", got)
	}
	if _, ok := got["secret"]; ok {
		t.Error("PATCH response leaked secret")
	}
}

func TestSanitizeInput(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/crud?access_token=good",
		`{"name":"a","id":5,"_id":"x","$where":"1","meta":{"$gt":1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if storage.IDString(got["id"]) == "5" {
		t.Error("client-supplied id was used")
	}

	f.queries = nil
	f.do(t, http.MethodGet, "/api/crud?access_token=good&name[$ne]=zzz&$where=1", "")
	if len(f.queries) != 1 {
		t.Fatalf("find hook ran %d times", len(f.queries))
	}
	if len(f.queries[0]) != 0 {
		t.Errorf("operator keys reached the query: %v", f.queries[0])
	}
}

func TestSanitizeMap(t *testing.T) {
	in := map[string]any{
		"a":      1,
		"$set":   2,
		"nested": map[string]any{"$gt": 1, "ok": true},
		"list":   []any{map[string]any{"$in": 1, "v": 2}},
	}
	out := sanitizeMap(in)
	if _, ok := out["$set"]; ok {
		t.Error("top-level operator kept")
	}
	if _, ok := out["nested"].(map[string]any)["$gt"]; ok {
		t.Error("nested operator kept")
	}
	if _, ok := out["list"].([]any)[0].(map[string]any)["$in"]; ok {
		t.Error("operator inside list kept")
	}
	if _, ok := in["$set"]; !ok {
		t.Error("input map was mutated")
	}
}

func TestInvalidJSON(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{`{"name":`, `[1,2]`} {
		w := f.do(t, http.MethodPost, "/api/crud?access_token=good", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCustomEndpoints(t *testing.T) {
	f := newFixture(t, func(m *model.Model) error {
		if err := m.RegisterEndpoint(func(ctx context.Context, args ...any) (any, error) {
			return map[string]any{"id": args[0], "msg": args[1]}, nil
		}, model.EndpointOptions{
			Name:    "ping",
			Verb:    "POST",
			Path:    "/:id/ping",
			Exposed: true,
			Args: []model.Arg{
				{Name: "id", Type: schema.FieldTypeNumber, FromPath: true},
				{Name: "msg", Type: schema.FieldTypeString, Required: true},
			},
		}); err != nil {
			return err
		}
		return m.RegisterEndpoint(func(ctx context.Context, args ...any) (any, error) {
			return "secret stuff", nil
		}, model.EndpointOptions{Name: "guarded", Verb: "GET", Path: "/guarded"})
	})

	w := f.do(t, http.MethodPost, "/api/crud/3/ping", `{"msg":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("exposed endpoint status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if got["id"] != float64(3) || got["msg"] != "hi" {
		t.Errorf("result = %v", got)
	}

	w = f.do(t, http.MethodPost, "/api/crud/3/ping", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing arg status = %d, want 400", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/crud/guarded", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("guarded without token status = %d, want 401", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/crud/guarded?access_token=good", "")
	if w.Code != http.StatusOK {
		t.Errorf("guarded with token status = %d", w.Code)
	}
}

func TestDuplicateRouteFirstWins(t *testing.T) {
	f := newFixture(t, func(m *model.Model) error {
		return m.RegisterEndpoint(func(ctx context.Context, args ...any) (any, error) {
			return "shadow", nil
		}, model.EndpointOptions{Name: "shadow", Verb: "GET", Path: "/:id", Exposed: true})
	})

	if got := len(f.channel.Conflicts()); got != 1 {
		t.Fatalf("Conflicts() = %d, want 1", got)
	}
	w := f.do(t, http.MethodGet, "/api/crud/1", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want the standard protected route to answer", w.Code)
	}
}

func TestSchemaIntrospection(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/_schema/Crud", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	doc := decode[ModelSchema](t, w)
	if doc.Resource != "crud" || !doc.Public {
		t.Errorf("doc = %+v", doc)
	}
	for _, field := range doc.Fields {
		if field.Name == "secret" {
			t.Error("hidden field listed")
		}
	}

	w = f.do(t, http.MethodGet, "/_schema/Nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown model status = %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/api/nothing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
