// Package openapi generates an OpenAPI 3.0 document from the registered
// models. It walks the same route list the HTTP channel attaches, so the
// document never lists a route that lost a collision.
package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/artpar/apigen/core/convention"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/schema"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

func (p *PathItem) set(verb string, op *Operation) {
	switch verb {
	case http.MethodGet:
		p.Get = op
	case http.MethodPost:
		p.Post = op
	case http.MethodPut:
		p.Put = op
	case http.MethodPatch:
		p.Patch = op
	case http.MethodDelete:
		p.Delete = op
	}
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Required bool                 `json:"required,omitempty"`
	Content  map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Pattern     string             `json:"pattern,omitempty"`
	Default     any                `json:"default,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas         map[string]*Schema        `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme defines an authentication method.
type SecurityScheme struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty"`
	In          string `json:"in,omitempty"`
}

// SecurityRequirement specifies required security schemes.
type SecurityRequirement map[string][]string

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Names used inside the document.
const (
	SecuritySchemeName = "accessToken"
	TokenParam         = "access_token"

	errorSchema = "Error"
	countSchema = "Count"
)

// Generator generates OpenAPI specs from a model registry.
type Generator struct {
	reg     *registry.Registry
	info    Info
	servers []Server
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(reg *registry.Registry) *Generator {
	return &Generator{
		reg: reg,
		info: Info{
			Title:       "apigen API",
			Version:     "1.0.0",
			Description: "Generated from the registered model definitions",
		},
	}
}

// SetInfo sets the API info.
func (g *Generator) SetInfo(info Info) {
	g.info = info
}

// AddServer adds a server URL.
func (g *Generator) AddServer(url, description string) {
	g.servers = append(g.servers, Server{URL: url, Description: description})
}

// Generate creates the OpenAPI specification.
func (g *Generator) Generate() *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{
				errorSchema: {
					Type: "object",
					Properties: map[string]*Schema{
						"error": {
							Type: "object",
							Properties: map[string]*Schema{
								"status":  {Type: "integer"},
								"message": {Type: "string"},
							},
						},
					},
				},
				countSchema: {
					Type: "object",
					Properties: map[string]*Schema{
						"count": {Type: "integer", Description: "Number of records affected"},
					},
				},
			},
			SecuritySchemes: map[string]SecurityScheme{
				SecuritySchemeName: {
					Type:        "apiKey",
					In:          "query",
					Name:        TokenParam,
					Description: "Id of a live AccessToken, as returned by the login endpoint",
				},
			},
		},
	}

	routes, _ := g.reg.Routes()
	tagged := make(map[string]bool)
	for _, m := range g.reg.List() {
		if !m.Public() && len(m.Endpoints()) == 0 {
			continue
		}
		g.addSchemas(spec, m)
		tagged[m.Name()] = true
		spec.Tags = append(spec.Tags, Tag{Name: m.Name()})
	}

	for _, rt := range routes {
		m, ok := g.reg.Get(rt.Model)
		if !ok || !tagged[rt.Model] {
			continue
		}
		path, params := convertPath(rt.Path)

		var op *Operation
		if rt.Endpoint != nil {
			op = endpointOperation(rt, params)
		} else {
			op = standardOperation(m, rt, params)
		}
		if rt.Auth {
			op.Security = []SecurityRequirement{{SecuritySchemeName: {}}}
			op.Responses["401"] = errorResponse("Missing, unknown or expired access token")
		}

		item := spec.Paths[path]
		item.set(rt.Verb, op)
		spec.Paths[path] = item
	}

	sort.Slice(spec.Tags, func(i, j int) bool { return spec.Tags[i].Name < spec.Tags[j].Name })
	return spec
}

// addSchemas adds <Model>, <Model>Create and <Model>Update. Hidden fields
// are writable, so they appear in the inputs but never in <Model>.
func (g *Generator) addSchemas(spec *Spec, m *model.Model) {
	d := m.Derived()
	name := m.Name()

	record := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			convention.FieldID: idSchema(m.Adapter().IDType()),
		},
	}
	create := &Schema{Type: "object", Properties: map[string]*Schema{}}
	update := &Schema{Type: "object", Properties: map[string]*Schema{}}

	for _, field := range d.Schema.Names() {
		f := d.Schema[field]
		if !d.IsHidden(field) {
			record.Properties[field] = fieldSchema(f)
		}
		if field == convention.FieldCreated || field == convention.FieldModified {
			continue
		}
		create.Properties[field] = fieldSchema(f)
		update.Properties[field] = fieldSchema(f)
		if f.Required && !f.HasDefault() {
			create.Required = append(create.Required, field)
		}
	}

	spec.Components.Schemas[name] = record
	spec.Components.Schemas[name+"Create"] = create
	spec.Components.Schemas[name+"Update"] = update
}

// fieldSchema converts a field to OpenAPI schema.
func fieldSchema(f schema.Field) *Schema {
	s := &Schema{Default: f.Default}
	switch f.Type {
	case schema.FieldTypeString:
		s.Type = "string"
	case schema.FieldTypeNumber:
		s.Type = "number"
	case schema.FieldTypeBoolean:
		s.Type = "boolean"
	case schema.FieldTypeObject:
		s.Type = "object"
	case schema.FieldTypeArray:
		s.Type = "array"
		s.Items = &Schema{}
	case schema.FieldTypeDate:
		s.Type = "string"
		s.Format = "date-time"
		s.Default = nil
	}
	return s
}

func idSchema(t schema.FieldType) *Schema {
	if t == schema.FieldTypeNumber {
		return &Schema{Type: "integer"}
	}
	return &Schema{Type: "string"}
}

func ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func jsonContent(s *Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

func jsonResponse(desc string, s *Schema) Response {
	return Response{Description: desc, Content: jsonContent(s)}
}

func errorResponse(desc string) Response {
	return jsonResponse(desc, ref(errorSchema))
}

func standardOperation(m *model.Model, rt registry.Route, params []Parameter) *Operation {
	name := m.Name()
	op := &Operation{
		Tags:        []string{name},
		OperationID: operationID(name, rt.Name()),
		Parameters:  params,
		Responses:   map[string]Response{},
	}

	switch rt.Op {
	case model.OpFind:
		op.Summary = "List " + name + " records. Query parameters are equality filters."
		op.Responses["200"] = jsonResponse("Matching records", &Schema{Type: "array", Items: ref(name)})
	case model.OpFindByID:
		op.Summary = "Get a " + name + " by id"
		op.Responses["200"] = jsonResponse("The record", ref(name))
		op.Responses["404"] = errorResponse("No record with this id")
	case model.OpCreate:
		op.Summary = "Create a " + name
		op.RequestBody = &RequestBody{Required: true, Content: jsonContent(ref(name + "Create"))}
		op.Responses["200"] = jsonResponse("Number of records created", ref(countSchema))
		op.Responses["400"] = errorResponse("Validation failed")
	case model.OpUpdate:
		op.Summary = "Update a " + name
		op.RequestBody = &RequestBody{Required: true, Content: jsonContent(ref(name + "Update"))}
		op.Responses["200"] = jsonResponse("The updated record", ref(name))
		op.Responses["400"] = errorResponse("Validation failed")
		op.Responses["404"] = errorResponse("No record with this id")
	case model.OpDelete:
		op.Summary = "Delete a " + name
		op.Responses["200"] = jsonResponse("Number of records deleted", ref(countSchema))
	}
	return op
}

func endpointOperation(rt registry.Route, params []Parameter) *Operation {
	ep := rt.Endpoint
	op := &Operation{
		Tags:        []string{rt.Model},
		Summary:     ep.Name,
		OperationID: operationID(rt.Model, ep.Name),
		Parameters:  params,
		Responses: map[string]Response{
			"200": jsonResponse("Endpoint result", &Schema{}),
			"400": errorResponse("Missing or mistyped argument"),
		},
	}

	body := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for _, arg := range ep.Args {
		if arg.FromPath {
			for i := range op.Parameters {
				if op.Parameters[i].Name == arg.Name && arg.Type != schema.FieldTypeString {
					op.Parameters[i].Schema = fieldSchema(schema.Field{Type: arg.Type})
				}
			}
			continue
		}
		body.Properties[arg.Name] = fieldSchema(schema.Field{Type: arg.Type})
		if arg.Required {
			body.Required = append(body.Required, arg.Name)
		}
	}
	if len(body.Properties) > 0 {
		op.RequestBody = &RequestBody{Required: len(body.Required) > 0, Content: jsonContent(body)}
	}
	return op
}

// convertPath turns a chi pattern into an OpenAPI path. Regex constraints
// move into the parameter schema.
func convertPath(pattern string) (string, []Parameter) {
	var params []Parameter
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		inner := seg[1 : len(seg)-1]
		name, regex, _ := strings.Cut(inner, ":")
		p := Parameter{Name: name, In: "path", Required: true, Schema: &Schema{Type: "string"}}
		if regex != "" {
			p.Schema.Pattern = "^" + regex + "$"
		}
		params = append(params, p)
		segs[i] = "{" + name + "}"
	}
	return strings.Join(segs, "/"), params
}

func operationID(model, name string) string {
	if name == "" {
		return model
	}
	return strings.ToLower(model[:1]) + model[1:] + strings.ToUpper(name[:1]) + name[1:]
}
