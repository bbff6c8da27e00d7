package deepcopy

import (
	"testing"
	"time"
)

func TestMap_Independent(t *testing.T) {
	now := time.Now()
	src := map[string]any{
		"name":  "a",
		"when":  now,
		"tags":  []any{"x", map[string]any{"deep": 1}},
		"inner": map[string]any{"n": 1.0},
	}

	cp := Map(src)
	cp["name"] = "b"
	cp["inner"].(map[string]any)["n"] = 2.0
	cp["tags"].([]any)[1].(map[string]any)["deep"] = 2

	if src["name"] != "a" {
		t.Error("top-level write leaked")
	}
	if src["inner"].(map[string]any)["n"] != 1.0 {
		t.Error("nested map write leaked")
	}
	if src["tags"].([]any)[1].(map[string]any)["deep"] != 1 {
		t.Error("map inside slice write leaked")
	}
	if !cp["when"].(time.Time).Equal(now) {
		t.Error("time should be copied by value")
	}
}

func TestMap_Nil(t *testing.T) {
	if Map(nil) != nil {
		t.Error("nil map should stay nil")
	}
}

func TestValue_Slices(t *testing.T) {
	s := []string{"a", "b"}
	cp := Value(s).([]string)
	cp[0] = "z"
	if s[0] != "a" {
		t.Error("string slice write leaked")
	}

	recs := []map[string]any{{"id": 1}}
	cpr := Value(recs).([]map[string]any)
	cpr[0]["id"] = 2
	if recs[0]["id"] != 1 {
		t.Error("record slice write leaked")
	}
}
