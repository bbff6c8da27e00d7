package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/bootstrap"
	"github.com/artpar/apigen/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and model files",
	Long: `Validate the apigen configuration and model definitions.

Checks:
  - YAML syntax is valid and settings pass validation
  - Every model file parses, uses known field types and has a unique name
  - Initializers build and routes do not collide
  - Database is reachable (optional)

Examples:
  apigen validate
  apigen validate --config /etc/apigen/apigen.yaml --check-database
  apigen validate --env`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
	validateListEnv       bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "connect to the configured database")
	validateCmd.Flags().BoolVar(&validateListEnv, "env", false, "list the supported environment variables")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	checkMark, crossMark := marks(out)

	if validateListEnv {
		fmt.Fprint(out, config.Usage())
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Adapter: %s\n", checkMark, cfg.Database.Adapter)

	app, err := bootstrap.NewWithConfig(cmd.Context(), bootstrap.Config{
		ConfigPath: cfgFile,
		Offline:    true,
		LogOutput:  io.Discard,
		Version:    version,
	})
	if err != nil {
		fmt.Fprintf(out, "  %s Models valid\n", crossMark)
		return fmt.Errorf("model error: %w", err)
	}
	defer app.Shutdown()

	fmt.Fprintf(out, "  %s Models: %d\n", checkMark, app.Registry.Len())
	fmt.Fprintf(out, "  %s Routes: %d\n", checkMark, len(app.Channel.Routes()))
	for _, c := range app.Channel.Conflicts() {
		fmt.Fprintf(out, "  %s Skipped %s\n", crossMark, c.Error())
	}

	if validateCheckDatabase {
		if err := checkDatabase(cmd.Context(), cfg.Database); err != nil {
			fmt.Fprintf(out, "  %s Database reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database reachable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabase(ctx context.Context, db config.DatabaseConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	adapter, err := bootstrap.NewAdapter(db, clock.Real{})
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	return adapter.Close(ctx)
}

// marks returns colored check marks when w is a terminal.
func marks(w io.Writer) (check, cross string) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "\033[32m✓\033[0m", "\033[31m✗\033[0m"
	}
	return "ok", "FAIL"
}
