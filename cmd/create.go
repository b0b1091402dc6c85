package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/logger"
	"github.com/dbup-tool/dbup/internal/provider"
)

var createCmd = &cobra.Command{
	Use:   "create [connection-string]",
	Short: "Create the database if it does not exist, then upgrade it",
	Long: `Create the target database when it is missing and apply every
outstanding script. PostgreSQL, MySQL and SQL Server databases are created
through the server's maintenance database; SQLite files are created along
with their parent directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	p, cfg, err := loadPlan(args)
	if err != nil {
		return err
	}

	gateway, err := provider.Gateway(p.Provider, logger.Logger)
	if err != nil {
		return err
	}
	created, err := gateway.EnsureDatabase(cmd.Context(), p.ConnectionString, p.ConnectTimeout)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to create database"), errors.ErrConnection)
	}
	if created {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Created database")
	}

	e, err := newEngine(cmd, cfg)
	if err != nil {
		return err
	}
	_, err = e.Run(cmd.Context(), p)
	return err
}
