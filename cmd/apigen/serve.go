package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/apigen/bootstrap"
)

var (
	hotReload bool
	dropDB    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the apigen API server.

The server will:
  - Load configuration from apigen.yaml (or --config) and APIGEN_* variables
  - Connect to the configured database adapter (memory, mongo or sqlite)
  - Build the User and AccessToken models plus every file in models.dir
  - Serve the REST routes, /healthz, /openapi.json and, when enabled,
    /metrics and /swagger/

Examples:
  apigen serve
  apigen serve --config /etc/apigen/apigen.yaml --hot-reload
  APIGEN_DATABASE_ADAPTER=sqlite APIGEN_DATABASE_DSN=app.db apigen serve

  # Development only: start from an empty database
  apigen serve --drop`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", false, "reload logging and error settings when the config file changes or on SIGHUP")
	serveCmd.Flags().BoolVar(&dropDB, "drop", false, "drop the database before starting (development only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.NewWithConfig(cmd.Context(), bootstrap.Config{
		ConfigPath: cfgFile,
		HotReload:  hotReload,
		Drop:       dropDB,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
