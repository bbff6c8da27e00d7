package formatter

import (
	"encoding/json"
	"io"
)

// JSON writes {kind, count, data} documents.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (f JSON) FormatList(w io.Writer, ds Dataset, opts FormatOptions) error {
	return f.encode(w, envelope(ds, opts), opts.Compact)
}

func (f JSON) FormatRecord(w io.Writer, rec Record, opts FormatOptions) error {
	return f.encode(w, map[string]any{
		"kind": rec.Kind,
		"data": project(rec.Fields, opts.Columns),
	}, opts.Compact)
}

func (JSON) encode(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
