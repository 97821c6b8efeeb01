package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/pagetrail/pagetrail/internal/di/providers"
	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every pending numbered migration, each in its own transaction,
then add any registry columns the database is still missing.

Running it on an up-to-date database changes nothing.
`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	return withContainer(cfg, func(injector do.Injector, log *providers.LoggerHandle) error {
		m, err := do.Invoke[*migrate.Migrator](injector)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "initialize migrator")
		}
		ctx := cmd.Context()

		applied, err := m.Run(ctx)
		if err != nil {
			log.WithError(err).WithField("applied", applied).Error("migration failed")
			return errors.Wrap(err, errors.CodeInternal, "migrate")
		}

		st := do.MustInvoke[*providers.StoreHandle](injector)
		if err := st.EnsureSchema(ctx); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "ensure schema")
		}

		version, err := m.Version(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "read schema version")
		}
		if len(applied) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (version %d)\n", version)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied migrations %v; schema is at version %d\n", applied, version)
		return nil
	})
}
