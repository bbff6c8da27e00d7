package formatter

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAML writes the same documents as JSON, in yaml.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (f YAML) FormatList(w io.Writer, ds Dataset, opts FormatOptions) error {
	return f.encode(w, envelope(ds, opts))
}

func (f YAML) FormatRecord(w io.Writer, rec Record, opts FormatOptions) error {
	return f.encode(w, map[string]any{
		"kind": rec.Kind,
		"data": project(rec.Fields, opts.Columns),
	})
}

func (YAML) encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
