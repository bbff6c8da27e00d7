package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestField_UnmarshalYAML_Shorthand(t *testing.T) {
	var s Schema
	err := yaml.Unmarshal([]byte(`
title: String
pages: number
isbn: { type: string, unique: true, required: true }
`), &s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if s["title"].Type != FieldTypeString {
		t.Errorf("title type = %q, want string", s["title"].Type)
	}
	if s["pages"].Type != FieldTypeNumber {
		t.Errorf("pages type = %q, want number", s["pages"].Type)
	}
	if !s["isbn"].Unique || !s["isbn"].Required {
		t.Errorf("isbn flags lost: %+v", s["isbn"])
	}
}

func TestField_UnmarshalJSON_Shorthand(t *testing.T) {
	var s Schema
	err := json.Unmarshal([]byte(`{"name":"string","secret":{"type":"String","hidden":true}}`), &s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if s["name"].Type != FieldTypeString {
		t.Errorf("name type = %q", s["name"].Type)
	}
	if s["secret"].Type != FieldTypeString || !s["secret"].Hidden {
		t.Errorf("secret = %+v", s["secret"])
	}
}

func TestSchema_Sets(t *testing.T) {
	s := Schema{
		"b":      {Type: FieldTypeString, Hidden: true},
		"a":      {Type: FieldTypeString, Hidden: true, Unique: true},
		"plain":  {Type: FieldTypeNumber},
		"unique": {Type: FieldTypeString, Unique: true},
	}

	if got, want := s.Names(), []string{"a", "b", "plain", "unique"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if got, want := s.Hidden(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Hidden() = %v, want %v", got, want)
	}
	if got, want := s.Unique(), []string{"a", "unique"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Unique() = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	base := Schema{
		"created":  {Type: FieldTypeDate},
		"modified": {Type: FieldTypeDate},
	}
	over := Schema{
		"name":     {Type: FieldTypeString},
		"modified": {Type: FieldTypeDate, Hidden: true},
	}

	got := Merge(base, over)
	if len(got) != 3 {
		t.Fatalf("merged has %d fields, want 3", len(got))
	}
	if !got["modified"].Hidden {
		t.Error("author declaration should win over base")
	}
	if len(base) != 2 || base["modified"].Hidden {
		t.Error("Merge must not mutate base")
	}
}

func TestIsValidFieldType(t *testing.T) {
	for _, ft := range []FieldType{"string", "number", "boolean", "object", "array", "date"} {
		if !IsValidFieldType(ft) {
			t.Errorf("%q should be valid", ft)
		}
	}
	for _, ft := range []FieldType{"int", "email", "", "String"} {
		if IsValidFieldType(ft) {
			t.Errorf("%q should be invalid", ft)
		}
	}
}

func TestField_String(t *testing.T) {
	f := Field{Type: FieldTypeNumber, Required: true, Default: 3}
	if got := f.String(); got != "number (required, default=3)" {
		t.Errorf("String() = %q", got)
	}
	if got := (Field{Type: FieldTypeDate}).String(); got != "date" {
		t.Errorf("String() = %q", got)
	}
}
