package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrations returns the built-in migrations in order. Their DDL is frozen:
// later column additions belong in the schema registry, not here.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "initial schema", Up: initialSchema},
		{Version: 2, Name: "full date-time columns", Up: fullDateTimes},
		{Version: 3, Name: "word_count after total_pages", Up: wordCountPosition},
		{Version: 4, Name: "library after word_count", Up: addLibrary},
		{Version: 5, Name: "ratings and reviews", Up: ratingsAndReviews},
		{Version: 6, Name: "reading progress views", Up: readingViews},
	}
}

func execAll(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.60q: %w", stmt, err)
		}
	}
	return nil
}

func initialSchema(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `
		CREATE TABLE IF NOT EXISTS books (
			issue_id INTEGER PRIMARY KEY,
			title TEXT,
			author TEXT,
			issue_number INTEGER,
			status TEXT,
			date_began TEXT,
			date_ended TEXT,
			publisher TEXT,
			year_published TEXT,
			year_edition TEXT,
			isbn TEXT,
			width REAL,
			length REAL,
			height REAL,
			total_pages INTEGER,
			translator TEXT,
			collection INTEGER,
			created_on TEXT DEFAULT (DATE('now')),
			updated_on TEXT DEFAULT (DATE('now')),
			word_count REAL
		)`, `
		CREATE TABLE IF NOT EXISTS reading_events (
			source_id TEXT PRIMARY KEY,
			issue_id INTEGER,
			date TEXT,
			page INTEGER,
			source TEXT,
			created_on TEXT DEFAULT (DATE('now')),
			updated_on TEXT DEFAULT (DATE('now'))
		)`)
}

const booksV2 = `
	CREATE TABLE books_new (
		issue_id INTEGER PRIMARY KEY,
		title TEXT,
		author TEXT,
		issue_number INTEGER,
		status TEXT,
		date_began DATETIME,
		date_ended DATETIME,
		publisher TEXT,
		year_published TEXT,
		year_edition TEXT,
		isbn TEXT,
		width REAL,
		length REAL,
		height REAL,
		total_pages INTEGER,
		translator TEXT,
		collection INTEGER,
		created_on DATETIME DEFAULT (DATETIME('now')),
		updated_on DATETIME DEFAULT (DATETIME('now')),
		word_count REAL
	)`

const readingEventsV2 = `
	CREATE TABLE reading_events_new (
		source_id TEXT PRIMARY KEY,
		issue_id INTEGER,
		date DATETIME,
		page INTEGER,
		source TEXT,
		created_on DATETIME DEFAULT (DATETIME('now')),
		updated_on DATETIME DEFAULT (DATETIME('now'))
	)`

func fullDateTimes(ctx context.Context, tx *sql.Tx) error {
	err := rebuild(ctx, tx, "books", booksV2, map[string]string{
		"date_began": fullDateTime("date_began"),
		"date_ended": fullDateTime("date_ended"),
		"created_on": fullDateTime("created_on"),
		"updated_on": fullDateTime("updated_on"),
	})
	if err != nil {
		return err
	}
	return rebuild(ctx, tx, "reading_events", readingEventsV2, map[string]string{
		"date":       fullDateTime("date"),
		"created_on": fullDateTime("created_on"),
		"updated_on": fullDateTime("updated_on"),
	})
}

const booksV3 = `
	CREATE TABLE books_new (
		issue_id INTEGER PRIMARY KEY,
		title TEXT,
		author TEXT,
		issue_number INTEGER,
		status TEXT,
		date_began DATETIME,
		date_ended DATETIME,
		publisher TEXT,
		year_published TEXT,
		year_edition TEXT,
		isbn TEXT,
		width REAL,
		length REAL,
		height REAL,
		total_pages INTEGER,
		word_count REAL,
		translator TEXT,
		collection INTEGER,
		created_on DATETIME DEFAULT (DATETIME('now')),
		updated_on DATETIME DEFAULT (DATETIME('now'))
	)`

func wordCountPosition(ctx context.Context, tx *sql.Tx) error {
	return rebuild(ctx, tx, "books", booksV3, nil)
}

const booksV4 = `
	CREATE TABLE books_new (
		issue_id INTEGER PRIMARY KEY,
		title TEXT,
		author TEXT,
		issue_number INTEGER,
		status TEXT,
		date_began DATETIME,
		date_ended DATETIME,
		publisher TEXT,
		year_published TEXT,
		year_edition TEXT,
		isbn TEXT,
		width REAL,
		length REAL,
		height REAL,
		total_pages INTEGER,
		word_count REAL,
		library TEXT,
		translator TEXT,
		collection INTEGER,
		created_on DATETIME DEFAULT (DATETIME('now')),
		updated_on DATETIME DEFAULT (DATETIME('now'))
	)`

func addLibrary(ctx context.Context, tx *sql.Tx) error {
	return rebuild(ctx, tx, "books", booksV4, nil)
}

func ratingsAndReviews(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `
		CREATE TABLE IF NOT EXISTS ratings (
			issue_id INTEGER PRIMARY KEY,
			rating REAL NOT NULL CHECK(rating >= 0 AND rating <= 10),
			created_on DATETIME DEFAULT (DATETIME('now')),
			updated_on DATETIME DEFAULT (DATETIME('now'))
		)`, `
		CREATE TABLE IF NOT EXISTS reviews (
			issue_id INTEGER PRIMARY KEY,
			review TEXT NOT NULL,
			created_on DATETIME DEFAULT (DATETIME('now')),
			updated_on DATETIME DEFAULT (DATETIME('now'))
		)`)
}

// Day boundaries in the views are shifted five hours back so late-night
// reading counts toward the previous day.
func readingViews(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`DROP VIEW IF EXISTS v_daily_book_progress`,
		`CREATE VIEW v_daily_book_progress AS
		WITH re_with_prev AS (
			SELECT
				issue_id,
				date(datetime(date, '-5 hours')) AS date_est,
				page,
				LAG(page) OVER (PARTITION BY issue_id ORDER BY date) AS prev_page
			FROM reading_events
		),
		daily_counts AS (
			SELECT
				issue_id,
				date_est,
				COUNT(*) AS cnt,
				MIN(page) AS min_page,
				MAX(page) AS max_page,
				MAX(prev_page) AS prev_page
			FROM re_with_prev
			GROUP BY issue_id, date_est
		)
		SELECT
			issue_id,
			date_est,
			CASE
				WHEN cnt > 1 THEN max_page - min_page
				ELSE max_page - prev_page
			END AS pages_read
		FROM daily_counts
		ORDER BY issue_id, date_est`,
		`DROP VIEW IF EXISTS v_books_completed`,
		`CREATE VIEW v_books_completed AS
		SELECT
			date(datetime(date_ended, '-5 hours')) AS date_est,
			COUNT(*) AS books_completed
		FROM books
		WHERE date_ended IS NOT NULL
		GROUP BY date_est`)
}
