package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/config"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/logger"
)

// env carries flag values and DBUP_* environment variables.
var env = config.NewEnv()

var rootCmd = &cobra.Command{
	Use:   "dbup",
	Short: "Configuration-driven database migrations",
	Long: `dbup applies ordered SQL migration scripts to PostgreSQL, SQL Server,
MySQL and SQLite databases. Each script runs once; applied scripts are
recorded in a journal table inside the target database.

The configuration lives in .dbup/config.yaml (TOML and JSON also work).
The connection string comes from the command line, DBUP_CONNECTION_STRING,
CONNECTION_STRING in .dbup/.env, or the configuration, in that order.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(env.GetBool("json"), env.GetInt("verbose")); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config-file", "", "Path to the configuration file (default: nearest "+config.DefaultConfigPath+")")
	flags.CountP("verbose", "v", "Increase diagnostic output (-v, -vv)")
	flags.Bool("json", false, "Emit diagnostics as JSON")

	_ = env.BindPFlag("config_file", flags.Lookup("config-file"))
	_ = env.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = env.BindPFlag("json", flags.Lookup("json"))
}

// Execute runs the CLI and exits non-zero on failure.
// An interrupt stops the run before the next script.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		printFailure(os.Stderr, err)
		os.Exit(1)
	}
}

var failColor = color.New(color.FgRed, color.Bold)

// printFailure writes the one-line failure report: kind, failing script
// when known, and message, followed by any hints.
func printFailure(w io.Writer, err error) {
	kind := errors.Kind(err)
	if identity, ok := errors.ScriptIdentity(err); ok && identity != "" {
		_, _ = failColor.Fprintf(w, "✗ %s in %s: %v\n", kind, identity, err)
	} else {
		_, _ = failColor.Fprintf(w, "✗ %s: %v\n", kind, err)
	}
	for _, hint := range errors.GetAllHints(err) {
		_, _ = fmt.Fprintf(w, "  hint: %s\n", hint)
	}
}
