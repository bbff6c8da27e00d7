package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReservedID is the adapter-owned identifier field.
const ReservedID = "id"

// Definition is one model as declared by its author.
type Definition struct {
	Name       string `yaml:"name" json:"name"`
	Public     bool   `yaml:"public" json:"public"`
	Properties Schema `yaml:"properties" json:"properties"`
}

// ParseFile parses a model definition from a YAML file.
func ParseFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read file %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse parses a model definition from YAML bytes.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(def); err != nil {
		return Definition{}, fmt.Errorf("validate model %q: %w", def.Name, err)
	}

	return def, nil
}

// ParseDir parses every .yaml/.yml file directly inside dir, in name order.
// Duplicate model names are an error.
func ParseDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var defs []Definition
	seen := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		def, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("model %q defined in both %s and %s", def.Name, prev, path)
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	return defs, nil
}

// Validate validates a model definition.
func Validate(def Definition) error {
	var errs []string

	if def.Name == "" {
		errs = append(errs, "model name is required")
	} else if !isValidIdentifier(def.Name) {
		errs = append(errs, fmt.Sprintf("model name %q is not a valid identifier", def.Name))
	}

	for _, name := range def.Properties.Names() {
		if !isValidIdentifier(name) {
			errs = append(errs, fmt.Sprintf("field name %q is not a valid identifier", name))
		}
		if name == ReservedID {
			errs = append(errs, "field \"id\" is reserved for the storage adapter")
			continue
		}
		if err := validateField(name, def.Properties[name]); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateField validates a single field definition.
func validateField(name string, field Field) error {
	if field.Type == "" {
		return fmt.Errorf("field %q: type is required", name)
	}
	if !IsValidFieldType(field.Type) {
		return fmt.Errorf("field %q: unknown type %q", name, field.Type)
	}

	if field.Default != nil {
		if err := validateDefault(name, field); err != nil {
			return err
		}
	}

	return nil
}

// validateDefault validates that a default value matches the field type.
func validateDefault(name string, field Field) error {
	switch field.Type {
	case FieldTypeNumber:
		switch field.Default.(type) {
		case int, int64, float64:
			return nil
		default:
			return fmt.Errorf("field %q: default must be a number", name)
		}
	case FieldTypeBoolean:
		if _, ok := field.Default.(bool); !ok {
			return fmt.Errorf("field %q: default must be a boolean", name)
		}
	case FieldTypeString:
		if _, ok := field.Default.(string); !ok {
			return fmt.Errorf("field %q: default must be a string", name)
		}
	case FieldTypeDate:
		switch field.Default.(type) {
		case string, time.Time:
			return nil
		default:
			return fmt.Errorf("field %q: default must be an ISO-8601 string", name)
		}
	case FieldTypeObject:
		if _, ok := field.Default.(map[string]any); !ok {
			return fmt.Errorf("field %q: default must be an object", name)
		}
	case FieldTypeArray:
		if _, ok := field.Default.([]any); !ok {
			return fmt.Errorf("field %q: default must be an array", name)
		}
	}
	return nil
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
