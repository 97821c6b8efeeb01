package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/di/providers"
	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair the database and write a Markdown report",
	Long: `Run the reconciliation rules in order, each in its own transaction:
book dates, word counts, event timestamps, event source ids, page-one
events, final-page events and duplicate events.

Every change is listed in the report at REPORT_PATH. A failing rule stops
the run; the report is still written and names the rule.

Examples:
  # See what would change without touching the database
  pagetrail reconcile --dry-run
`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().Bool("dry-run", false, "Report changes without committing them")
	reconcileCmd.Flags().String("report", "", "Report path (default REPORT_PATH)")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *config.Config) error {
		if cmd.Flags().Changed("dry-run") {
			c.Reconcile.DryRun, _ = cmd.Flags().GetBool("dry-run")
		}
		if path, _ := cmd.Flags().GetString("report"); path != "" {
			c.Reconcile.ReportPath = path
		}
		return c.ValidateReconcile()
	})
	if err != nil {
		return err
	}

	return withContainer(cfg, func(injector do.Injector, log *providers.LoggerHandle) error {
		engine, err := do.Invoke[*reconcile.Engine](injector)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "initialize reconcile engine")
		}

		report, err := engine.RunAndWrite(cmd.Context(), cfg.Reconcile.ReportPath)
		if err != nil {
			log.WithError(err).WithField("report", cfg.Reconcile.ReportPath).Error("reconcile failed")
			return err
		}

		mode := "applied"
		if cfg.Reconcile.DryRun {
			mode = "found (dry run)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d changes %s; report written to %s\n", report.Count(), mode, cfg.Reconcile.ReportPath)
		return nil
	})
}
