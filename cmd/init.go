package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/config"
	"github.com/dbup-tool/dbup/internal/plan"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter .dbup/config.yaml",
	Long: `Create .dbup/config.yaml, an empty .dbup/migrations folder and a
.dbup/.env.example in the current directory, and add .dbup/.env to
.gitignore. An existing configuration is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing .dbup/config.yaml")
	initCmd.Flags().String("provider", string(plan.ProviderPostgreSQL), "Database provider: sqlserver, postgresql, mysql or sqlite")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	name, _ := cmd.Flags().GetString("provider")

	p, err := plan.ParseProvider(name)
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	result, err := config.Scaffold(fsys, cwd, string(p), force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "✓ Wrote %s\n", result.ConfigPath)
	if result.ScriptsDirCreated {
		_, _ = fmt.Fprintf(out, "✓ Created %s\n", result.ScriptsDir)
	}
	_, _ = fmt.Fprintf(out, "✓ Wrote %s\n", result.EnvExamplePath)
	if result.GitignoreUpdated {
		_, _ = fmt.Fprintln(out, "✓ Added .dbup/.env to .gitignore")
	}
	_, _ = fmt.Fprintln(out, "\nNext: copy .dbup/.env.example to .dbup/.env, add scripts to the migrations folder and run `dbup upgrade`.")
	return nil
}
