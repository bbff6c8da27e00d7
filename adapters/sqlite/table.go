package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
)

// columnType maps a field type to its SQLite storage class.
func columnType(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeNumber:
		return "REAL"
	case schema.FieldTypeBoolean:
		return "INTEGER"
	default:
		// string, date (fixed-width UTC text), object and array (JSON).
		return "TEXT"
	}
}

// BuildCreateTableSQL generates the CREATE TABLE statement for a model.
func BuildCreateTableSQL(name string, s schema.Schema) string {
	columns := []string{quote(storage.FieldID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, field := range s.Names() {
		if field == storage.FieldID {
			continue
		}
		columns = append(columns, buildColumnDef(field, s[field]))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quote(name),
		strings.Join(columns, ",\n  "),
	)
}

func buildColumnDef(name string, f schema.Field) string {
	parts := []string{quote(name), columnType(f.Type)}
	if f.Required {
		parts = append(parts, "NOT NULL")
	}
	if f.HasDefault() {
		if def := formatDefault(f.Default, f.Type); def != "" {
			parts = append(parts, "DEFAULT "+def)
		}
	}
	return strings.Join(parts, " ")
}

// formatDefault renders scalar defaults as SQL literals. Other defaults are
// applied by the write path only.
func formatDefault(val any, t schema.FieldType) string {
	switch t {
	case schema.FieldTypeString:
		if v, ok := val.(string); ok {
			return "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
	case schema.FieldTypeNumber:
		if v, ok := encode(schema.FieldTypeNumber, val).(float64); ok {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case schema.FieldTypeBoolean:
		if v, ok := val.(bool); ok {
			if v {
				return "1"
			}
			return "0"
		}
	}
	return ""
}

// BuildIndexSQL generates a unique index per unique field.
func BuildIndexSQL(name string, s schema.Schema) []string {
	var indexes []string
	for _, field := range s.Unique() {
		if field == storage.FieldID {
			continue
		}
		indexes = append(indexes, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)",
			quote("uniq_"+name+"_"+field), quote(name), quote(field),
		))
	}
	return indexes
}

func createTable(ctx context.Context, db *sql.DB, name string, s schema.Schema) error {
	if _, err := db.ExecContext(ctx, BuildCreateTableSQL(name, s)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	for _, indexSQL := range BuildIndexSQL(name, s) {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// quote renders an identifier. Model and field names are validated
// identifiers already; quoting keeps keywords such as "order" usable.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
