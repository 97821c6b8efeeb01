package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/schema"
)

// Change is one column edit made by a repair query. Old and New are nil
// for SQL NULL; a deleted row has Column "*".
type Change struct {
	Table  string
	Row    string
	Column string
	Old    any
	New    any
}

// BookDates is the date state of one book together with the span of its
// events.
type BookDates struct {
	IssueID       int64
	IssueNumber   int64
	Status        domain.Status
	DateBegan     *time.Time
	DateEnded     *time.Time
	CreatedOn     *time.Time
	UpdatedOn     *time.Time
	EarliestEvent *time.Time
	LatestEvent   *time.Time
}

// ListBookDates returns the date state of every book.
func (t *Tx) ListBookDates(ctx context.Context) ([]BookDates, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT b.issue_id, b.issue_number, b.status, b.date_began, b.date_ended,
		       b.created_on, b.updated_on,
		       (SELECT MIN(e.date) FROM reading_events e WHERE e.issue_id = b.issue_id),
		       (SELECT MAX(e.date) FROM reading_events e WHERE e.issue_id = b.issue_id)
		FROM books b
		ORDER BY b.issue_id`)
	if err != nil {
		return nil, fmt.Errorf("list book dates: %w", err)
	}
	defer rows.Close()

	var out []BookDates
	for rows.Next() {
		var (
			d      BookDates
			number sql.NullInt64
			status sql.NullString
		)
		var began, ended, created, updated, lo, hi sql.NullString
		if err := rows.Scan(&d.IssueID, &number, &status, &began, &ended, &created, &updated, &lo, &hi); err != nil {
			return nil, fmt.Errorf("scan book dates: %w", err)
		}
		d.IssueNumber = number.Int64
		d.Status = domain.Status(status.String)
		for _, f := range []struct {
			src sql.NullString
			dst **time.Time
		}{
			{began, &d.DateBegan}, {ended, &d.DateEnded}, {created, &d.CreatedOn},
			{updated, &d.UpdatedOn}, {lo, &d.EarliestEvent}, {hi, &d.LatestEvent},
		} {
			if *f.dst, err = parseNullableTime(f.src); err != nil {
				return nil, fmt.Errorf("parse date of book %d: %w", d.IssueID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetBookDate writes one date column of a book.
func (t *Tx) SetBookDate(ctx context.Context, issueID int64, column string, value time.Time) error {
	c, ok := schema.Books.Column(column)
	if !ok || c.Type != schema.DateTime {
		return fmt.Errorf("set book date: %q is not a date column", column)
	}
	_, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE books SET %s = ? WHERE issue_id = ?", c.Name),
		formatTime(value), issueID)
	if err != nil {
		return fmt.Errorf("set books.%s for %d: %w", c.Name, issueID, err)
	}
	return nil
}

// EstimateWordCount applies the fixed page-geometry formula: width and
// length in inches, words per page times pages.
func EstimateWordCount(width, length float64, pages int64) float64 {
	perLine := (width * 0.8) / (0.153 * 0.5 * 5.5)
	lines := (length * 0.75) / (0.153 * 1.3)
	return math.Round(perLine * lines * float64(pages))
}

// FillWordCounts sets word_count where it is NULL and width, length and
// total_pages are all known. Existing counts are never recomputed.
func (t *Tx) FillWordCounts(ctx context.Context) ([]Change, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT issue_id, width, length, total_pages FROM books
		WHERE word_count IS NULL
		  AND width IS NOT NULL AND length IS NOT NULL AND total_pages IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("select word count inputs: %w", err)
	}

	type input struct {
		issueID       int64
		width, length float64
		pages         int64
	}
	var inputs []input
	for rows.Next() {
		var in input
		if err := rows.Scan(&in.issueID, &in.width, &in.length, &in.pages); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan word count inputs: %w", err)
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var changes []Change
	for _, in := range inputs {
		words := EstimateWordCount(in.width, in.length, in.pages)
		if _, err := t.tx.ExecContext(ctx, "UPDATE books SET word_count = ? WHERE issue_id = ?", words, in.issueID); err != nil {
			return changes, fmt.Errorf("set word count for %d: %w", in.issueID, err)
		}
		changes = append(changes, Change{Table: "books", Row: bookRow(in.issueID), Column: "word_count", New: words})
	}
	return changes, nil
}

// FillEventTimestamps copies date into NULL created_on, and date (or today
// when date is NULL) into NULL updated_on.
func (t *Tx) FillEventTimestamps(ctx context.Context, today time.Time) ([]Change, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT rowid, source_id, date, created_on IS NULL, updated_on IS NULL
		FROM reading_events
		WHERE created_on IS NULL OR updated_on IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("select event timestamps: %w", err)
	}

	type gap struct {
		rowid           int64
		sourceID, date  sql.NullString
		created, update bool
	}
	var gaps []gap
	for rows.Next() {
		var g gap
		if err := rows.Scan(&g.rowid, &g.sourceID, &g.date, &g.created, &g.update); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event timestamps: %w", err)
		}
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var changes []Change
	for _, g := range gaps {
		date, err := parseNullableTime(g.date)
		if err != nil {
			return changes, fmt.Errorf("parse event date %s: %w", g.sourceID.String, err)
		}
		row := eventRow(g.sourceID, g.rowid)

		if g.created && date != nil {
			if _, err := t.tx.ExecContext(ctx, "UPDATE reading_events SET created_on = ? WHERE rowid = ?", formatTime(*date), g.rowid); err != nil {
				return changes, fmt.Errorf("set created_on for %s: %w", row, err)
			}
			changes = append(changes, Change{Table: "reading_events", Row: row, Column: "created_on", New: formatTime(*date)})
		}
		if g.update {
			value := today
			if date != nil {
				value = *date
			}
			if _, err := t.tx.ExecContext(ctx, "UPDATE reading_events SET updated_on = ? WHERE rowid = ?", formatTime(value), g.rowid); err != nil {
				return changes, fmt.Errorf("set updated_on for %s: %w", row, err)
			}
			changes = append(changes, Change{Table: "reading_events", Row: row, Column: "updated_on", New: formatTime(value)})
		}
	}
	return changes, nil
}

// RepairSourceIDs gives every event without a source id the id
// "<source>:<issue_id>:<day>:<page>". A row whose repaired id is already
// taken duplicates that row and is deleted.
func (t *Tx) RepairSourceIDs(ctx context.Context) ([]Change, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT rowid, issue_id, date, page, source
		FROM reading_events WHERE source_id IS NULL ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select events without source id: %w", err)
	}

	type orphan struct {
		rowid   int64
		issueID int64
		date    sql.NullString
		page    int64
		source  string
	}
	var orphans []orphan
	for rows.Next() {
		var (
			o      orphan
			page   sql.NullInt64
			source sql.NullString
		)
		if err := rows.Scan(&o.rowid, &o.issueID, &o.date, &page, &source); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event without source id: %w", err)
		}
		o.page, o.source = page.Int64, source.String
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var changes []Change
	for _, o := range orphans {
		date, err := parseNullableTime(o.date)
		if err != nil {
			return changes, fmt.Errorf("parse date of event row %d: %w", o.rowid, err)
		}
		day := "unknown"
		if date != nil {
			day = domain.FormatDay(*date)
		}
		id := fmt.Sprintf("%s:%d:%s:%d", o.source, o.issueID, day, o.page)
		row := fmt.Sprintf("rowid=%d", o.rowid)

		var taken int
		if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reading_events WHERE source_id = ?", id).Scan(&taken); err != nil {
			return changes, fmt.Errorf("check source id %s: %w", id, err)
		}
		if taken > 0 {
			if _, err := t.tx.ExecContext(ctx, "DELETE FROM reading_events WHERE rowid = ?", o.rowid); err != nil {
				return changes, fmt.Errorf("delete duplicate event row %d: %w", o.rowid, err)
			}
			changes = append(changes, Change{Table: "reading_events", Row: row, Column: "*", Old: id})
			continue
		}

		if _, err := t.tx.ExecContext(ctx, "UPDATE reading_events SET source_id = ? WHERE rowid = ?", id, o.rowid); err != nil {
			return changes, fmt.Errorf("set source id for row %d: %w", o.rowid, err)
		}
		changes = append(changes, Change{Table: "reading_events", Row: row, Column: "source_id", New: id})
	}
	return changes, nil
}

// EarliestEventsWithoutPageOne returns, for every book that has events but
// no page 1 event, its earliest event.
func (t *Tx) EarliestEventsWithoutPageOne(ctx context.Context) ([]domain.ReadingEvent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+readingEventColumns+` FROM reading_events e
		WHERE e.source_id = (
			SELECT f.source_id FROM reading_events f
			WHERE f.issue_id = e.issue_id
			ORDER BY f.date, f.source_id LIMIT 1)
		  AND NOT EXISTS (
			SELECT 1 FROM reading_events p WHERE p.issue_id = e.issue_id AND p.page = 1)
		ORDER BY e.issue_id`)
	if err != nil {
		return nil, fmt.Errorf("select books without page one: %w", err)
	}
	defer rows.Close()

	var events []domain.ReadingEvent
	for rows.Next() {
		e, err := scanReadingEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan earliest event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FinishedBook is a book whose last page can be placed on its end date.
type FinishedBook struct {
	IssueID    int64
	TotalPages int64
	DateEnded  time.Time
}

// ListFinishedBooks returns books with an end date and a page count that
// were not abandoned.
func (t *Tx) ListFinishedBooks(ctx context.Context) ([]FinishedBook, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT issue_id, total_pages, date_ended FROM books
		WHERE date_ended IS NOT NULL AND total_pages IS NOT NULL
		  AND COALESCE(status, '') <> ?
		ORDER BY issue_id`, string(domain.StatusAbandoned))
	if err != nil {
		return nil, fmt.Errorf("list finished books: %w", err)
	}
	defer rows.Close()

	var out []FinishedBook
	for rows.Next() {
		var (
			b     FinishedBook
			ended sql.NullString
		)
		if err := rows.Scan(&b.IssueID, &b.TotalPages, &ended); err != nil {
			return nil, fmt.Errorf("scan finished book: %w", err)
		}
		d, err := parseNullableTime(ended)
		if err != nil || d == nil {
			return nil, fmt.Errorf("parse date_ended of book %d: %w", b.IssueID, err)
		}
		b.DateEnded = *d
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetEvent returns one event by source id inside the transaction.
func (t *Tx) GetEvent(ctx context.Context, sourceID string) (domain.ReadingEvent, bool, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+readingEventColumns+" FROM reading_events WHERE source_id = ?", sourceID)
	e, err := scanReadingEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("get reading event %s: %w", sourceID, err)
	}
	return e, true, nil
}

// DeleteExactDuplicates removes events that repeat another event's
// (issue_id, date, page, source). The row with the smallest source id of
// each group survives.
func (t *Tx) DeleteExactDuplicates(ctx context.Context) ([]Change, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+readingEventColumns+` FROM reading_events r
		WHERE r.source_id IS NOT NULL AND EXISTS (
			SELECT 1 FROM reading_events o
			WHERE o.issue_id IS r.issue_id AND o.date IS r.date
			  AND o.page IS r.page AND o.source IS r.source
			  AND o.source_id < r.source_id)
		ORDER BY r.issue_id, r.date, r.source_id`)
	if err != nil {
		return nil, fmt.Errorf("select duplicate events: %w", err)
	}
	var dups []domain.ReadingEvent
	for rows.Next() {
		e, err := scanReadingEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan duplicate event: %w", err)
		}
		dups = append(dups, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var changes []Change
	for _, e := range dups {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM reading_events WHERE source_id = ?", e.SourceID); err != nil {
			return changes, fmt.Errorf("delete duplicate event %s: %w", e.SourceID, err)
		}
		changes = append(changes, Change{
			Table:  "reading_events",
			Row:    "source_id=" + e.SourceID,
			Column: "*",
			Old:    fmt.Sprintf("page %d on %s (%s)", e.Page, formatTime(e.Date), e.Source),
		})
	}
	return changes, nil
}

func bookRow(issueID int64) string {
	return fmt.Sprintf("issue_id=%d", issueID)
}

func eventRow(sourceID sql.NullString, rowid int64) string {
	if sourceID.Valid {
		return "source_id=" + sourceID.String
	}
	return fmt.Sprintf("rowid=%d", rowid)
}
