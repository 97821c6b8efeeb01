// Package main provides the pagetrail command: it records reading progress
// from GitHub issues into SQLite and keeps the database consistent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/di"
	"github.com/pagetrail/pagetrail/internal/di/providers"
	"github.com/pagetrail/pagetrail/internal/errors"
)

var envFile string

// Input formats shown in the help text.
const (
	exampleTitle     = "Dune — Frank Herbert"
	examplePageLine  = "142"
	exampleDatedLine = "01152026: 87"
)

var rootCmd = &cobra.Command{
	Use:   "pagetrail",
	Short: "Track reading progress from GitHub issues in SQLite",
	Long: `pagetrail turns reading-log issues into rows in a SQLite database.

Each book is one issue titled "Title — Author", for example
"` + exampleTitle + `". An em-dash separates title and author; without one
the first hyphen does. Issues with neither are skipped.

Each line of the body or a comment that is only a page number, such as
"` + examplePageLine + `", records that page on the day it was written. A line
"MMDDYYYY: page", such as "` + exampleDatedLine + `", records the page on that
date instead. "key: value" lines in the body (total_pages, publisher, ...)
fill in book details.

Commands:
  ingest     - Record one issue event (run from GitHub Actions)
  migrate    - Bring the database schema up to date
  reconcile  - Repair the database and write a Markdown report
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file; real environment variables win")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

// loadConfig loads configuration and lets the command adjust and check it
// before any dependency is built.
func loadConfig(prepare func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withContainer builds the DI container for cfg, runs fn and shuts the
// container down afterwards.
func withContainer(cfg *config.Config, fn func(injector do.Injector, log *providers.LoggerHandle) error) error {
	injector := di.NewContainer(cfg)

	log, err := do.Invoke[*providers.LoggerHandle](injector)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "initialize logger")
	}

	runErr := fn(injector, log)

	if err := injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	return runErr
}
