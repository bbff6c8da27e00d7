package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/apigen/bootstrap"
	"github.com/artpar/apigen/core/formatter"
	"github.com/artpar/apigen/core/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models [name]",
	Short: "List the configured models or describe one",
	Long: `List every model the server would build, built-ins included.

With a model name, print its fields, hidden fields and custom endpoints.

Examples:
  apigen models
  apigen models User
  apigen models Post -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

var modelsOutput string

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringVarP(&modelsOutput, "output", "o", formatter.Default, fmt.Sprintf("output format %v", formatter.List()))
}

func runModels(cmd *cobra.Command, args []string) error {
	f, err := formatter.Lookup(modelsOutput)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewWithConfig(cmd.Context(), bootstrap.Config{
		ConfigPath: cfgFile,
		Offline:    true,
		LogOutput:  io.Discard,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Shutdown()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		ds := formatter.Dataset{
			Kind:    "models",
			Columns: []string{"name", "path", "public", "fields", "endpoints"},
		}
		for _, m := range app.Registry.List() {
			ds.Rows = append(ds.Rows, map[string]any{
				"name":      m.Name(),
				"path":      m.Derived().CollectionPath(),
				"public":    m.Public(),
				"fields":    len(m.Schema()),
				"endpoints": endpointNames(m),
			})
		}
		return f.FormatList(out, ds, formatter.FormatOptions{})
	}

	m, ok := app.Registry.Get(args[0])
	if !ok {
		return fmt.Errorf("model %q is not defined", args[0])
	}
	return f.FormatRecord(out, describeModel(m), formatter.FormatOptions{})
}

func describeModel(m *model.Model) formatter.Record {
	s := m.Schema()
	fields := make([]string, 0, len(s))
	for _, name := range s.Names() {
		field := s[name]
		desc := name + ":" + string(field.Type)
		var flags []string
		if field.Required {
			flags = append(flags, "required")
		}
		if field.Unique {
			flags = append(flags, "unique")
		}
		if len(flags) > 0 {
			desc += "(" + strings.Join(flags, ",") + ")"
		}
		fields = append(fields, desc)
	}

	var endpoints []string
	for _, ep := range m.Endpoints() {
		endpoints = append(endpoints, ep.Verb+" "+ep.Path)
	}

	return formatter.Record{
		Kind:    "model",
		Columns: []string{"name", "path", "public", "id_type", "fields", "hidden", "endpoints"},
		Fields: map[string]any{
			"name":      m.Name(),
			"path":      m.Derived().CollectionPath(),
			"public":    m.Public(),
			"id_type":   string(m.Adapter().IDType()),
			"fields":    fields,
			"hidden":    m.Derived().Hidden,
			"endpoints": endpoints,
		},
	}
}

func endpointNames(m *model.Model) []string {
	var names []string
	for _, ep := range m.Endpoints() {
		names = append(names, ep.Name)
	}
	return names
}
