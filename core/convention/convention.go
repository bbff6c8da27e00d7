// Package convention derives the runtime shape of a model from its
// definition: the base schema merged underneath the author's properties,
// the resource path segment and the hidden-field set.
package convention

import (
	"strings"

	"github.com/artpar/apigen/core/schema"
)

// BasePath is the prefix every generated route lives under.
const BasePath = "/api"

// Implicit field names merged into every model.
const (
	FieldID       = "id"
	FieldCreated  = "created"
	FieldModified = "modified"
)

// Base returns the common fields every model carries. The id field is not
// part of it: adapters inject id with their own type.
func Base() schema.Schema {
	return schema.Schema{
		FieldCreated:  {Type: schema.FieldTypeDate},
		FieldModified: {Type: schema.FieldTypeDate},
	}
}

// Derived contains all derived information from a model definition.
type Derived struct {
	// Source is the original definition.
	Source schema.Definition

	// Resource is the lower-cased path segment under BasePath.
	Resource string

	// Schema is Base merged under the author's properties.
	Schema schema.Schema

	// Hidden lists fields that never leave over HTTP, in name order.
	Hidden []string

	hidden map[string]bool
}

// Derive computes the derived form of def. It is pure and cheap to call,
// but the engine calls it once per model at build time.
func Derive(def schema.Definition) Derived {
	merged := schema.Merge(Base(), def.Properties)
	hidden := merged.Hidden()

	set := make(map[string]bool, len(hidden))
	for _, name := range hidden {
		set[name] = true
	}

	return Derived{
		Source:   def,
		Resource: Resource(def.Name),
		Schema:   merged,
		Hidden:   hidden,
		hidden:   set,
	}
}

// IsHidden reports whether field is in the hidden set.
func (d Derived) IsHidden(field string) bool {
	return d.hidden[field]
}

// CollectionPath returns the route of the model's collection.
func (d Derived) CollectionPath() string {
	return BasePath + "/" + d.Resource
}

// Resource converts a model name to its path segment.
func Resource(name string) string {
	return strings.ToLower(name)
}
