// Package formatter renders CLI output (routes, models) as an aligned
// table, json or yaml.
package formatter

import (
	"fmt"
	"io"
	"maps"
	"slices"
)

// Default is the format used when none is requested.
const Default = "table"

// Dataset is a named list of rows with a preferred column order.
type Dataset struct {
	// Kind names what the rows are ("routes", "models").
	Kind string

	// Columns is the display order. Rows may carry extra keys.
	Columns []string

	Rows []map[string]any
}

// Record is a single named row, printed as key/value pairs.
type Record struct {
	Kind    string
	Columns []string
	Fields  map[string]any
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns overrides the dataset's columns.
	Columns []string

	// NoHeader disables the header row of tables.
	NoHeader bool

	// Compact disables json indentation.
	Compact bool

	// MaxWidth truncates long table cells (0 = no limit).
	MaxWidth int
}

func (o FormatOptions) columns(fallback []string) []string {
	if len(o.Columns) > 0 {
		return o.Columns
	}
	return fallback
}

// Formatter writes datasets and records in one output format.
type Formatter interface {
	Name() string
	FormatList(w io.Writer, ds Dataset, opts FormatOptions) error
	FormatRecord(w io.Writer, rec Record, opts FormatOptions) error
}

var formatters = map[string]Formatter{}

func register(f Formatter) {
	formatters[f.Name()] = f
}

func init() {
	register(Table{})
	register(JSON{})
	register(YAML{})
}

// Lookup returns the named formatter. An empty name selects Default.
func Lookup(name string) (Formatter, error) {
	if name == "" {
		name = Default
	}
	if f, ok := formatters[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown output format %q (available: %v)", name, List())
}

// List returns the formatter names, sorted.
func List() []string {
	return slices.Sorted(maps.Keys(formatters))
}

// envelope is the document json and yaml write for a list.
func envelope(ds Dataset, opts FormatOptions) map[string]any {
	rows := make([]map[string]any, len(ds.Rows))
	for i, row := range ds.Rows {
		rows[i] = project(row, opts.Columns)
	}
	return map[string]any{
		"kind":  ds.Kind,
		"count": len(rows),
		"data":  rows,
	}
}

// project keeps only columns of row, in a fresh map. No columns keeps
// the row as is.
func project(row map[string]any, columns []string) map[string]any {
	if row == nil || len(columns) == 0 {
		return row
	}
	out := make(map[string]any, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}
