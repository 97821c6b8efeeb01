// Package migrate applies numbered, individually transactional schema
// migrations and records each in schema_version.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration is one schema step. Up runs inside the transaction that also
// records Version, so a failed step leaves no trace.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// Migrator applies migrations to one database.
type Migrator struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations []Migration
}

// New returns a migrator for the built-in migrations.
func New(db *sql.DB, logger *slog.Logger) *Migrator {
	m, err := NewWithMigrations(db, logger, Migrations())
	if err != nil {
		panic(fmt.Sprintf("built-in migrations are invalid: %v", err))
	}
	return m
}

// NewWithMigrations returns a migrator for a custom list. Versions must be
// positive and strictly ascending.
func NewWithMigrations(db *sql.DB, logger *slog.Logger, migrations []Migration) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prev := 0
	for _, m := range migrations {
		if m.Version <= prev {
			return nil, fmt.Errorf("migration %d (%s) is not above version %d", m.Version, m.Name, prev)
		}
		if m.Up == nil {
			return nil, fmt.Errorf("migration %d (%s) has no Up function", m.Version, m.Name)
		}
		prev = m.Version
	}
	return &Migrator{db: db, logger: logger, migrations: migrations}, nil
}

// Latest returns the highest known version.
func (m *Migrator) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Version returns the applied version, 0 for a fresh database.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := m.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// Run applies every pending migration. It returns the versions applied.
func (m *Migrator) Run(ctx context.Context) ([]int, error) {
	return m.RunTo(ctx, m.Latest())
}

// RunTo applies pending migrations up to and including target.
func (m *Migrator) RunTo(ctx context.Context, target int) ([]int, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Info("schema version", "current", current, "target", target)

	var applied []int
	for _, mig := range m.migrations {
		if mig.Version <= current || mig.Version > target {
			continue
		}
		m.logger.Info("running migration", "version", mig.Version, "name", mig.Name)
		if err := m.apply(ctx, mig); err != nil {
			return applied, err
		}
		applied = append(applied, mig.Version)
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", mig.Version, err)
	}
	defer tx.Rollback()

	if err := mig.Up(ctx, tx); err != nil {
		return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", mig.Version); err != nil {
		return fmt.Errorf("record migration %d: %w", mig.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", mig.Version, err)
	}
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	return nil
}
