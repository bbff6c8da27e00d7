package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/pkg/apierr"
)

// SchemaHandler serves model introspection under /_schema. Hidden fields
// are never listed.
type SchemaHandler struct {
	reg *registry.Registry
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(reg *registry.Registry) *SchemaHandler {
	return &SchemaHandler{reg: reg}
}

// Routes returns a router with all schema routes.
func (h *SchemaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listModels)
	r.Get("/{model}", h.getModel)
	return r
}

// ModelSummary is one entry of the model list.
type ModelSummary struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Public   bool   `json:"public"`
}

// FieldInfo describes one visible field.
type FieldInfo struct {
	Name     string           `json:"name"`
	Type     schema.FieldType `json:"type"`
	Required bool             `json:"required,omitempty"`
	Unique   bool             `json:"unique,omitempty"`
	Default  any              `json:"default,omitempty"`
}

// EndpointInfo describes one routed custom endpoint.
type EndpointInfo struct {
	Name    string      `json:"name"`
	Verb    string      `json:"verb"`
	Path    string      `json:"path"`
	Exposed bool        `json:"exposed"`
	Args    []model.Arg `json:"args,omitempty"`
}

// ModelSchema is the introspection document of one model.
type ModelSchema struct {
	ModelSummary
	IDType    schema.FieldType `json:"id_type"`
	Fields    []FieldInfo      `json:"fields"`
	Endpoints []EndpointInfo   `json:"endpoints"`
}

func (h *SchemaHandler) listModels(w http.ResponseWriter, r *http.Request) {
	models := h.reg.List()
	summaries := make([]ModelSummary, 0, len(models))
	for _, m := range models {
		summaries = append(summaries, summarize(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models": summaries,
		"count":  len(summaries),
	})
}

func (h *SchemaHandler) getModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "model")
	m, ok := h.reg.Get(name)
	if !ok {
		apierr.Write(w, notFound(name, ""))
		return
	}
	writeJSON(w, http.StatusOK, Describe(m))
}

func summarize(m *model.Model) ModelSummary {
	return ModelSummary{
		Name:     m.Name(),
		Resource: m.Derived().Resource,
		Public:   m.Public(),
	}
}

// Describe builds the introspection document of m.
func Describe(m *model.Model) ModelSchema {
	d := m.Derived()
	out := ModelSchema{
		ModelSummary: summarize(m),
		IDType:       m.Adapter().IDType(),
		Fields:       []FieldInfo{},
		Endpoints:    []EndpointInfo{},
	}
	for _, name := range d.Schema.Names() {
		if d.IsHidden(name) {
			continue
		}
		f := d.Schema[name]
		out.Fields = append(out.Fields, FieldInfo{
			Name:     name,
			Type:     f.Type,
			Required: f.Required,
			Unique:   f.Unique,
			Default:  f.Default,
		})
	}
	for _, ep := range m.Endpoints() {
		out.Endpoints = append(out.Endpoints, EndpointInfo{
			Name:    ep.Name,
			Verb:    ep.Verb,
			Path:    ep.Path,
			Exposed: ep.Exposed,
			Args:    ep.Args,
		})
	}
	return out
}
