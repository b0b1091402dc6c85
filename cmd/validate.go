package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/config"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/logger"
	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/sqlvalidation"
	"github.com/dbup-tool/dbup/internal/variables"
)

var validateCmd = &cobra.Command{
	Use:   "validate [connection-string]",
	Short: "Check the configuration and every script without touching the database",
	Long: `Load the configuration, discover and name every script and expand its
variables. Nothing connects to the database. For PostgreSQL each script is
also parsed with the PostgreSQL parser and syntax errors are reported with
their line number; statements that delete data are reported as warnings.`,
	Example: `  dbup validate
  dbup validate --output-format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("output-format", "text", "Output format: text or json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output-format")

	p, cfg, err := loadPlanWith(args, offlineDescriptor)
	if err != nil {
		return err
	}

	e, err := newEngine(cmd, cfg)
	if err != nil {
		return err
	}
	prepared, err := e.Prepare(p)
	if err != nil {
		return err
	}

	result := sqlvalidation.NewResult()
	for _, s := range prepared {
		if s.Err != nil {
			result.Add(sqlvalidation.ValidationIssue{
				Script:   s.Script.Identity,
				Line:     1,
				Column:   1,
				Severity: sqlvalidation.SeverityError,
				Message:  s.Err.Error(),
				Code:     strings.ToLower(errors.Kind(s.Err)),
			})
			continue
		}
		if names := variables.Referenced(s.Content); len(names) > 0 {
			logger.Logger.Debugw("script variables", "script", s.Script.Identity, "variables", names)
		}
		if p.Provider == plan.ProviderPostgreSQL {
			result.Add(sqlvalidation.Validate(s.Script.Identity, s.Expanded, sqlvalidation.Options{
				Transactional: p.Transaction != plan.TransactionNone,
			})...)
		}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		for _, issue := range result.Issues {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), issue.String())
		}
		if result.Valid {
			_, _ = fmt.Fprintf(out, "✓ %d script(s) valid\n", len(prepared))
		}
	}

	if !result.Valid {
		errorCount := 0
		for _, issue := range result.Issues {
			if issue.Severity == sqlvalidation.SeverityError {
				errorCount++
			}
		}
		return errors.Mark(errors.Newf("validation failed with %d error(s)", errorCount), errors.ErrInvalidPlan)
	}
	return nil
}

// offlineDescriptors stand in for a missing connection string so that
// built-in variables such as DatabaseName still resolve.
var offlineDescriptors = map[plan.Provider]string{
	plan.ProviderPostgreSQL: "postgres://localhost/validate",
	plan.ProviderSQLServer:  "sqlserver://localhost?database=validate",
	plan.ProviderMySQL:      "root@tcp(localhost:3306)/validate",
	plan.ProviderSQLite:     "validate.db",
}

func offlineDescriptor(cfg *config.Configuration) string {
	p, err := plan.ParseProvider(cfg.Provider)
	if err != nil {
		return ""
	}
	return offlineDescriptors[p]
}
