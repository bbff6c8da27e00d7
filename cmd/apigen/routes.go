package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/artpar/apigen/bootstrap"
	"github.com/artpar/apigen/core/formatter"
	"github.com/artpar/apigen/core/registry"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes the server would attach",
	Long: `List every HTTP route built from the configured models.

Routes are read from the model definitions without connecting to the
database. The auth column shows whether an access_token is required.

Examples:
  apigen routes
  apigen routes --output json
  apigen routes -o yaml --columns verb,path`,
	RunE: runRoutes,
}

var (
	routesOutput   string
	routesColumns  []string
	routesNoHeader bool
	routesSorted   bool
)

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVarP(&routesOutput, "output", "o", "table", fmt.Sprintf("output format %v", formatter.List()))
	routesCmd.Flags().StringSliceVar(&routesColumns, "columns", nil, "columns to show")
	routesCmd.Flags().BoolVar(&routesNoHeader, "no-header", false, "omit the table header")
	routesCmd.Flags().BoolVar(&routesSorted, "sort", false, "sort by path instead of attach order")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	f, err := formatter.Lookup(routesOutput)
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

	routes := app.Channel.Routes()
	if routesSorted {
		slices.SortStableFunc(routes, func(a, b registry.Route) int {
			switch {
			case registry.Less(a, b):
				return -1
			case registry.Less(b, a):
				return 1
			}
			return 0
		})
	}

	return f.FormatList(cmd.OutOrStdout(), routesDataset(routes), formatter.FormatOptions{
		Columns:  routesColumns,
		NoHeader: routesNoHeader,
	})
}

func routesDataset(routes []registry.Route) formatter.Dataset {
	ds := formatter.Dataset{
		Kind:    "routes",
		Columns: []string{"verb", "path", "model", "name", "auth"},
	}
	for _, rt := range routes {
		kind := "standard"
		if rt.Endpoint != nil {
			kind = "endpoint"
		}
		ds.Rows = append(ds.Rows, map[string]any{
			"verb":  rt.Verb,
			"path":  rt.Path,
			"model": rt.Model,
			"name":  rt.Name(),
			"kind":  kind,
			"auth":  rt.Auth,
		})
	}
	return ds
}
