package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/apigen/core/schema"
)

// isoDate accepts date+time with fractional seconds, seconds, or minutes,
// always followed by Z or a ±hh:mm offset.
var isoDate = regexp.MustCompile(`^\d{4}-[01]\d-[0-3]\dT[0-2]\d:[0-5]\d(:[0-5]\d(\.\d+)?)?([+-][0-2]\d:[0-5]\d|Z)$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// Cast converts v to the runtime representation of t. Values already of the
// right type pass through, with numbers normalized to float64. ok is false
// when no cast exists; object and array are never cast into.
func Cast(v any, t schema.FieldType) (any, bool) {
	if Matches(v, t) {
		if t == schema.FieldTypeNumber {
			f, _ := toFloat(v)
			return f, true
		}
		return v, true
	}

	switch t {
	case schema.FieldTypeString:
		return castString(v), true
	case schema.FieldTypeNumber:
		return castNumber(v)
	case schema.FieldTypeBoolean:
		if s, ok := v.(string); ok && s == "false" {
			return false, true
		}
		return truthy(v), true
	case schema.FieldTypeDate:
		return castDate(v)
	default:
		return nil, false
	}
}

// Matches reports whether v already has the runtime type of t.
func Matches(v any, t schema.FieldType) bool {
	switch t {
	case schema.FieldTypeString:
		_, ok := v.(string)
		return ok
	case schema.FieldTypeNumber:
		_, ok := toFloat(v)
		return ok
	case schema.FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case schema.FieldTypeDate:
		_, ok := v.(time.Time)
		return ok
	case schema.FieldTypeObject:
		if v == nil {
			return false
		}
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	case schema.FieldTypeArray:
		if v == nil {
			return false
		}
		k := reflect.ValueOf(v).Kind()
		_, isBytes := v.([]byte)
		return (k == reflect.Slice || k == reflect.Array) && !isBytes
	default:
		return false
	}
}

// ParseDate parses an ISO-8601 timestamp in one of the accepted forms.
func ParseDate(s string) (time.Time, bool) {
	if !isoDate.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func castDate(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	ts, ok := ParseDate(s)
	if !ok {
		return nil, false
	}
	return ts, true
}

func castString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case json.Number:
		return t.String()
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if Matches(v, schema.FieldTypeObject) || Matches(v, schema.FieldTypeArray) {
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

func castNumber(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return 0.0, true
	case bool:
		if t {
			return 1.0, true
		}
		return 0.0, true
	case time.Time:
		return float64(t.UnixMilli()), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0.0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return false
	}
	return true
}

// toFloat converts any Go numeric to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case int:
		f = float64(t)
	case int8:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint8:
		f = float64(t)
	case uint16:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case float32:
		f = float64(t)
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Float returns v as a float64 when v is a finite Go numeric.
func Float(v any) (float64, bool) {
	return toFloat(v)
}
