package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apigen",
	Short: "REST API server generated from model definitions",
	Long: `apigen serves a REST API for every model defined in YAML.

Each public model gets list, get, create, update and delete routes under
/api/<model>. Custom endpoints registered in Go appear next to them.
Non-exposed routes require an access token obtained from
POST /api/user/login.

Quick start:
  apigen validate   # Check configuration and model files
  apigen routes     # List the routes that will be served
  apigen serve      # Start the server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default apigen.yaml if present)")
}
