package validation

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/pkg/apierr"
)

func TestCast(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		typ    schema.FieldType
		want   any
		wantOK bool
	}{
		{"string passthrough", "abc", schema.FieldTypeString, "abc", true},
		{"number to string", 12.5, schema.FieldTypeString, "12.5", true},
		{"int to string", 7, schema.FieldTypeString, "7", true},
		{"bool to string", true, schema.FieldTypeString, "true", true},
		{"nil to string", nil, schema.FieldTypeString, "null", true},
		{"map to string", map[string]any{"a": 1.0}, schema.FieldTypeString, `{"a":1}`, true},

		{"int normalized", 3, schema.FieldTypeNumber, 3.0, true},
		{"int64 normalized", int64(9), schema.FieldTypeNumber, 9.0, true},
		{"json number", json.Number("4.5"), schema.FieldTypeNumber, 4.5, true},
		{"numeric string", " 42 ", schema.FieldTypeNumber, 42.0, true},
		{"empty string is zero", "", schema.FieldTypeNumber, 0.0, true},
		{"true is one", true, schema.FieldTypeNumber, 1.0, true},
		{"junk string", "abc", schema.FieldTypeNumber, nil, false},
		{"nan string", "NaN", schema.FieldTypeNumber, nil, false},
		{"object to number", map[string]any{}, schema.FieldTypeNumber, nil, false},

		{"bool passthrough", false, schema.FieldTypeBoolean, false, true},
		{"literal false", "false", schema.FieldTypeBoolean, false, true},
		{"literal true", "true", schema.FieldTypeBoolean, true, true},
		{"zero falsy", 0.0, schema.FieldTypeBoolean, false, true},
		{"empty string falsy", "", schema.FieldTypeBoolean, false, true},
		{"word truthy", "no", schema.FieldTypeBoolean, true, true},
		{"nil falsy", nil, schema.FieldTypeBoolean, false, true},

		{"string to object", `{"a":1}`, schema.FieldTypeObject, nil, false},
		{"string to array", `[1]`, schema.FieldTypeArray, nil, false},
		{"array passthrough", []any{1.0}, schema.FieldTypeArray, []any{1.0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cast(tt.value, tt.typ)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("Cast() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCast_Date(t *testing.T) {
	valid := []string{
		"2024-03-01T10:20:30.123Z",
		"2024-03-01T10:20:30.5+02:00",
		"2024-03-01T10:20:30Z",
		"2024-03-01T10:20:30-05:00",
		"2024-03-01T10:20Z",
		"2024-03-01T10:20+01:00",
	}
	for _, s := range valid {
		v, ok := Cast(s, schema.FieldTypeDate)
		if !ok {
			t.Errorf("%q should cast to date", s)
			continue
		}
		if _, isTime := v.(time.Time); !isTime {
			t.Errorf("%q cast to %T, want time.Time", s, v)
		}
	}

	invalid := []any{
		"2024-03-01",
		"2024-03-01T10:20:30",
		"yesterday",
		"x2024-03-01T10:20:30Z",
		"2024-03-01T10:20:30Zjunk",
		1709288430.0,
	}
	for _, v := range invalid {
		if _, ok := Cast(v, schema.FieldTypeDate); ok {
			t.Errorf("%v should not cast to date", v)
		}
	}

	got, _ := Cast("2024-03-01T10:20+01:00", schema.FieldTypeDate)
	want := time.Date(2024, 3, 1, 9, 20, 0, 0, time.UTC)
	if !got.(time.Time).Equal(want) {
		t.Errorf("minute form parsed to %v, want %v", got, want)
	}
}

func TestCast_NonFinite(t *testing.T) {
	if _, ok := Cast(math.Inf(1), schema.FieldTypeNumber); ok {
		t.Error("Inf should not be a valid number")
	}
	if _, ok := Cast("1e400", schema.FieldTypeNumber); ok {
		t.Error("overflowing string should not cast")
	}
}

func TestRegularize(t *testing.T) {
	s := schema.Schema{
		"name":  {Type: schema.FieldTypeString},
		"age":   {Type: schema.FieldTypeNumber},
		"admin": {Type: schema.FieldTypeBoolean},
		"meta":  {Type: schema.FieldTypeObject},
	}
	raw := map[string]any{
		"name":    123,
		"age":     "not a number",
		"admin":   "false",
		"meta":    "{}",
		"unknown": "dropped",
	}

	strict := Regularize(s, raw, true)
	if strict["name"] != "123" {
		t.Errorf("name = %#v", strict["name"])
	}
	if _, ok := strict["age"]; ok {
		t.Error("strict mode should drop failed casts")
	}
	if _, ok := strict["meta"]; ok {
		t.Error("object casts always fail")
	}
	if strict["admin"] != false {
		t.Errorf("admin = %#v", strict["admin"])
	}
	if _, ok := strict["unknown"]; ok {
		t.Error("undeclared keys must be dropped")
	}

	loose := Regularize(s, raw, false)
	if loose["age"] != "not a number" {
		t.Errorf("non-strict mode should keep the original value, got %#v", loose["age"])
	}
	if loose["meta"] != "{}" {
		t.Errorf("meta = %#v", loose["meta"])
	}
	if _, ok := loose["unknown"]; ok {
		t.Error("undeclared keys are dropped in non-strict mode too")
	}
}

func TestRegularizeQuery(t *testing.T) {
	s := schema.Schema{
		"id":   {Type: schema.FieldTypeNumber},
		"name": {Type: schema.FieldTypeString},
		"meta": {Type: schema.FieldTypeObject},
	}

	q := RegularizeQuery(s, map[string]any{
		"id":           map[string]any{"$in": []any{"1", 2, "x"}, "$gt": "0"},
		"name":         "bob",
		"meta":         map[string]any{"k": "v"},
		"access_token": "abc",
	})

	ops := q["id"].(map[string]any)
	in := ops["$in"].([]any)
	if in[0] != 1.0 || in[1] != 2.0 || in[2] != "x" {
		t.Errorf("$in operands = %#v", in)
	}
	if ops["$gt"] != 0.0 {
		t.Errorf("$gt operand = %#v", ops["$gt"])
	}
	if q["name"] != "bob" {
		t.Errorf("name = %#v", q["name"])
	}
	if _, ok := q["meta"].(map[string]any)["k"]; !ok {
		t.Error("plain object values are equality predicates, not operator maps")
	}
	if _, ok := q["access_token"]; ok {
		t.Error("undeclared keys must be dropped")
	}
}

func TestOperatorMap(t *testing.T) {
	if _, ok := OperatorMap(map[string]any{"$gt": 1}); !ok {
		t.Error("expected operator map")
	}
	if _, ok := OperatorMap(map[string]any{"$gt": 1, "x": 2}); ok {
		t.Error("mixed keys are not an operator map")
	}
	if _, ok := OperatorMap(map[string]any{}); ok {
		t.Error("empty map is not an operator map")
	}
	if _, ok := OperatorMap("x"); ok {
		t.Error("scalars are not operator maps")
	}
}

func TestPrepareCreate(t *testing.T) {
	s := schema.Schema{
		"name":  {Type: schema.FieldTypeString, Required: true},
		"count": {Type: schema.FieldTypeNumber, Default: 5},
		"tags":  {Type: schema.FieldTypeArray, Default: []any{"a"}},
	}

	got, err := PrepareCreate(s, map[string]any{"name": "x"})
	if err != nil {
		t.Fatalf("PrepareCreate: %v", err)
	}
	if got["count"] != 5.0 {
		t.Errorf("count default = %#v, want 5.0", got["count"])
	}

	got["tags"].([]any)[0] = "mutated"
	if s["tags"].Default.([]any)[0] != "a" {
		t.Error("defaults must be copied, not shared")
	}

	_, err = PrepareCreate(s, map[string]any{"count": 1})
	if !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("missing required: err = %v", err)
	}
	if err.Error() != `"name" property is required` {
		t.Errorf("message = %q", err.Error())
	}

	_, err = PrepareCreate(s, map[string]any{"nope": 1})
	if !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("no valid properties: err = %v", err)
	}
}

func TestPrepareUpdate(t *testing.T) {
	s := schema.Schema{"n": {Type: schema.FieldTypeNumber, Required: true}}
	got := PrepareUpdate(s, map[string]any{"n": "bad", "x": 1})
	if len(got) != 0 {
		t.Errorf("PrepareUpdate = %#v, want empty", got)
	}
}
