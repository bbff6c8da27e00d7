package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"
)

// Table writes aligned columns with an upper-case header.
type Table struct{}

func (Table) Name() string { return "table" }

func (Table) FormatList(w io.Writer, ds Dataset, opts FormatOptions) error {
	if len(ds.Rows) == 0 {
		fmt.Fprintf(w, "No %s found.\n", orDefault(ds.Kind, "records"))
		return nil
	}

	columns := opts.columns(ds.Columns)
	if len(columns) == 0 {
		columns = keys(ds.Rows...)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	}
	cells := make([]string, len(columns))
	for _, row := range ds.Rows {
		for i, col := range columns {
			cells[i] = cell(row[col], opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (Table) FormatRecord(w io.Writer, rec Record, opts FormatOptions) error {
	if rec.Fields == nil {
		fmt.Fprintf(w, "%s not found.\n", orDefault(rec.Kind, "record"))
		return nil
	}

	columns := opts.columns(rec.Columns)
	if len(columns) == 0 {
		columns = keys(rec.Fields)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, col := range columns {
		fmt.Fprintf(tw, "%s:\t%s\n", label(col), cell(rec.Fields[col], opts.MaxWidth))
	}
	return tw.Flush()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// keys returns the sorted union of the rows' keys.
func keys(rows ...map[string]any) []string {
	var out []string
	for _, row := range rows {
		for k := range row {
			if !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

// label turns snake_case and camelCase names into Title Case words.
func label(name string) string {
	var words []string
	start := 0
	for i, r := range name {
		if r == '_' {
			words = append(words, name[start:i])
			start = i + 1
		} else if i > start && unicode.IsUpper(r) {
			words = append(words, name[start:i])
			start = i
		}
	}
	words = append(words, name[start:])

	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, strings.ToUpper(w[:1])+w[1:])
		}
	}
	return strings.Join(out, " ")
}

func cell(v any, maxWidth int) string {
	var s string
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		s = v
	case bool:
		s = "no"
		if v {
			s = "yes"
		}
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case time.Time:
		s = v.Format(time.RFC3339)
	case []string:
		s = strings.Join(v, ",")
	default:
		b, _ := json.Marshal(v)
		s = string(b)
	}

	if maxWidth > 3 && len(s) > maxWidth {
		s = s[:maxWidth-3] + "..."
	}
	return s
}
