package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/di/providers"
	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/ingest"
	"github.com/pagetrail/pagetrail/internal/tracker"
	"github.com/pagetrail/pagetrail/internal/validation"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Record the issue event at GITHUB_EVENT_PATH",
	Long: `Read the webhook payload GitHub Actions provides at GITHUB_EVENT_PATH
(or GITHUB_TEST_EVENT_PATH for local runs) and upsert the book and its
reading events.

With GITHUB_TOKEN set, the issue and all of its comments are fetched from
the API and abandoned books are closed and labeled. Without it the payload
is used as-is and nothing is written upstream.

Examples:
  # Replay a saved payload locally
  GITHUB_TEST_EVENT_PATH=testdata/issue.json pagetrail ingest
`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *config.Config) error {
		return c.ValidateIngest()
	})
	if err != nil {
		return err
	}

	return withContainer(cfg, func(injector do.Injector, log *providers.LoggerHandle) error {
		v, err := do.Invoke[*validation.Validator](injector)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "initialize validator")
		}
		ev, err := tracker.LoadEvent(cfg.Ingest.EventPath, v)
		if err != nil {
			return err
		}

		svc, err := do.Invoke[*ingest.Service](injector)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "initialize ingest service")
		}
		res, err := svc.Run(cmd.Context(), ev)
		if err != nil {
			log.WithError(err).WithField("issue_number", ev.Issue.Number).Error("ingest failed")
			return err
		}

		out := cmd.OutOrStdout()
		if res.Skipped {
			fmt.Fprintf(out, "Skipped issue #%d: %s\n", res.IssueNumber, res.Reason)
			return nil
		}
		fmt.Fprintf(out, "Ingested issue #%d (%s): %d reading events\n", res.IssueNumber, res.Status, res.Events)
		if res.AutoClosed {
			fmt.Fprintf(out, "Closed issue #%d as abandoned\n", res.IssueNumber)
		}
		return nil
	})
}
