// Package store persists books and reading events in an embedded SQLite
// file. Table shapes come from package schema; statements from sqlgen.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/schema"
	"github.com/pagetrail/pagetrail/internal/sqlgen"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Store wraps the database handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite file at path. It does not
// create tables; call EnsureSchema or run the migrator.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// DSN pragmas apply per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for the migrator.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates every registry table and adds missing columns.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, s.db, s.logger)
}

func ensureSchema(ctx context.Context, q sqlgen.Querier, logger *slog.Logger) error {
	for _, t := range schema.Registry() {
		if _, err := q.ExecContext(ctx, sqlgen.CreateTable(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		added, err := sqlgen.EnsureColumns(ctx, q, t)
		if err != nil {
			return err
		}
		if len(added) > 0 {
			logger.Info("added columns", "table", t.Name, "columns", added)
		}
	}
	return nil
}

// Tx is a store transaction.
type Tx struct {
	tx     *sql.Tx
	logger *slog.Logger
}

// WithTx runs fn inside one transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx, logger: s.logger}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// EnsureSchema is Store.EnsureSchema inside the transaction.
func (t *Tx) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, t.tx, t.logger)
}

// FindCommentSourceID returns the newest comment event id stored for the
// issue on day. Only ids minted for comments are considered; a synthesized
// page-one event carries its seed's source but must never be reused.
func (s *Store) FindCommentSourceID(ctx context.Context, issueID int64, day string) (string, bool, error) {
	return findCommentSourceID(ctx, s.db, issueID, day)
}

// FindCommentSourceID is Store.FindCommentSourceID inside the transaction.
func (t *Tx) FindCommentSourceID(ctx context.Context, issueID int64, day string) (string, bool, error) {
	return findCommentSourceID(ctx, t.tx, issueID, day)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findCommentSourceID(ctx context.Context, q rowQuerier, issueID int64, day string) (string, bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT source_id FROM reading_events
		WHERE issue_id = ? AND date(date) = ? AND source = ? AND source_id LIKE 'comment:%'
		ORDER BY updated_on DESC, source_id
		LIMIT 1`,
		issueID, day, string(domain.SourceComment),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		// Before the first ingestion run there is no table to look in.
		if isNoSuchTable(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find comment source id: %w", err)
	}
	return id, true, nil
}

// formatTime formats a time for storage.
func formatTime(t time.Time) string {
	return domain.FormatTime(t)
}

// nullTimeString returns a sql.NullString from a *time.Time.
func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullableString returns a sql.NullString from a *string.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// parseNullableTime parses an optional stored timestamp.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := domain.ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
