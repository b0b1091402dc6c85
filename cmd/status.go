package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/engine"
	"github.com/dbup-tool/dbup/internal/plan"
)

var statusCmd = &cobra.Command{
	Use:   "status [connection-string]",
	Short: "List applied and outstanding scripts without running them",
	Long: `Connect, read the journal and list the scripts an upgrade would run.
Nothing is changed in the database. Without a journal table every script is
listed as outstanding.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("output-format", "text", "Output format: text or json")
}

type statusScript struct {
	Script    string     `json:"script"`
	Kind      string     `json:"kind"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
	Hash      string     `json:"hash,omitempty"`
}

type statusReport struct {
	Applied     []statusScript `json:"applied"`
	Outstanding []statusScript `json:"outstanding"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output-format")

	p, cfg, err := loadPlan(args)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd, cfg)
	if err != nil {
		return err
	}
	preview, err := e.Preview(cmd.Context(), p)
	if err != nil {
		return err
	}

	report := buildStatusReport(preview)
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	_, _ = fmt.Fprintf(out, "Applied: %d\n", len(report.Applied))
	for _, s := range report.Applied {
		_, _ = fmt.Fprintf(out, "  ✓ %s (%s)\n", s.Script, s.AppliedAt.Format(time.RFC3339))
	}
	if len(report.Outstanding) == 0 {
		_, _ = fmt.Fprintln(out, "Database is up to date")
		return nil
	}
	_, _ = fmt.Fprintf(out, "Outstanding: %d\n", len(report.Outstanding))
	for _, s := range report.Outstanding {
		suffix := ""
		if s.Kind == plan.RunAlways.String() {
			suffix = " (runs always)"
		}
		_, _ = fmt.Fprintf(out, "  • %s%s\n", s.Script, suffix)
	}
	return nil
}

func buildStatusReport(preview *engine.Preview) statusReport {
	report := statusReport{Applied: []statusScript{}, Outstanding: []statusScript{}}
	for _, entry := range preview.Journal {
		at := entry.AppliedAt
		report.Applied = append(report.Applied, statusScript{
			Script:    entry.Identity,
			Kind:      plan.RunOnce.String(),
			AppliedAt: &at,
			Hash:      entry.Hash,
		})
	}
	for _, s := range preview.Outstanding {
		report.Outstanding = append(report.Outstanding, statusScript{Script: s.Identity, Kind: s.Kind.String()})
	}
	return report
}
