package sqlite

import (
	"encoding/json"
	"time"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/validation"
)

// dateLayout is fixed width so that text comparison orders instants.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// encode converts a regularized value to its column representation.
// Values that do not have the field's runtime type are passed through and
// will simply not compare equal to stored values.
func encode(t schema.FieldType, val any) any {
	if val == nil {
		return nil
	}

	switch t {
	case schema.FieldTypeNumber:
		if f, ok := validation.Float(val); ok {
			return f
		}
	case schema.FieldTypeBoolean:
		if b, ok := val.(bool); ok {
			if b {
				return 1
			}
			return 0
		}
	case schema.FieldTypeDate:
		if ts, ok := val.(time.Time); ok {
			return ts.UTC().Format(dateLayout)
		}
	case schema.FieldTypeObject, schema.FieldTypeArray:
		if validation.Matches(val, t) {
			b, err := json.Marshal(val)
			if err == nil {
				return string(b)
			}
		}
	}
	return val
}

// decode converts a scanned column value back to the field's runtime type.
func decode(t schema.FieldType, val any) any {
	if b, ok := val.([]byte); ok {
		val = string(b)
	}
	if val == nil {
		return nil
	}

	switch t {
	case schema.FieldTypeNumber:
		if f, ok := validation.Float(val); ok {
			return f
		}
	case schema.FieldTypeBoolean:
		switch v := val.(type) {
		case int64:
			return v != 0
		case float64:
			return v != 0
		}
		return false
	case schema.FieldTypeDate:
		if s, ok := val.(string); ok {
			if ts, err := time.Parse(dateLayout, s); err == nil {
				return ts
			}
		}
		if ts, ok := val.(time.Time); ok {
			return ts.UTC()
		}
	case schema.FieldTypeObject, schema.FieldTypeArray:
		if s, ok := val.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	}
	return val
}
