package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType represents the type of a schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
	FieldTypeDate    FieldType = "date"
)

// Field defines one property of a model.
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type" json:"type"`

	// Required fails creates that omit the field after defaults are applied.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Unique fails writes whose value collides with an existing record.
	Unique bool `yaml:"unique,omitempty" json:"unique,omitempty"`

	// Default is applied on create when the field is absent.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// Hidden fields are visible to internal callers but never leave over HTTP.
	Hidden bool `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// HasDefault reports whether a default value is declared.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

type fieldAlias Field

// UnmarshalYAML accepts either a bare type name or a full descriptor.
func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*f = Field{Type: normalizeType(value.Value)}
		return nil
	}

	var a fieldAlias
	if err := value.Decode(&a); err != nil {
		return err
	}
	a.Type = normalizeType(string(a.Type))
	*f = Field(a)
	return nil
}

// UnmarshalJSON accepts either a bare type name or a full descriptor.
func (f *Field) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = Field{Type: normalizeType(name)}
		return nil
	}

	var a fieldAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Type = normalizeType(string(a.Type))
	*f = Field(a)
	return nil
}

func normalizeType(s string) FieldType {
	return FieldType(strings.ToLower(strings.TrimSpace(s)))
}

// Schema maps field names to their descriptors.
type Schema map[string]Field

// Names returns the field names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hidden returns the names of hidden fields in sorted order.
func (s Schema) Hidden() []string {
	var names []string
	for _, name := range s.Names() {
		if s[name].Hidden {
			names = append(names, name)
		}
	}
	return names
}

// Unique returns the names of unique fields in sorted order.
func (s Schema) Unique() []string {
	var names []string
	for _, name := range s.Names() {
		if s[name].Unique {
			names = append(names, name)
		}
	}
	return names
}

// TypeOf returns the declared type of a field.
func (s Schema) TypeOf(name string) (FieldType, bool) {
	f, ok := s[name]
	return f.Type, ok
}

// Clone returns a shallow copy. Defaults are shared.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns base with over layered on top: fields declared in over win.
func Merge(base, over Schema) Schema {
	out := base.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// IsValidFieldType checks if a field type is one of the six supported types.
func IsValidFieldType(t FieldType) bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean,
		FieldTypeObject, FieldTypeArray, FieldTypeDate:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (t FieldType) String() string {
	return string(t)
}

func (f Field) String() string {
	var flags []string
	if f.Required {
		flags = append(flags, "required")
	}
	if f.Unique {
		flags = append(flags, "unique")
	}
	if f.Hidden {
		flags = append(flags, "hidden")
	}
	if f.HasDefault() {
		flags = append(flags, fmt.Sprintf("default=%v", f.Default))
	}
	if len(flags) == 0 {
		return string(f.Type)
	}
	return fmt.Sprintf("%s (%s)", f.Type, strings.Join(flags, ", "))
}
