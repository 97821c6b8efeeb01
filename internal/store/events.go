package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/schema"
	"github.com/pagetrail/pagetrail/internal/sqlgen"
)

var (
	eventUpsert  = sqlgen.Upsert(schema.ReadingEvents)
	ratingUpsert = sqlgen.Upsert(schema.Ratings)
	reviewUpsert = sqlgen.Upsert(schema.Reviews)
)

// readingEventColumns must match the scan order in scanReadingEvent.
const readingEventColumns = `source_id, issue_id, date, page, source`

// UpsertEvent inserts or overwrites a reading event keyed by source id.
func (t *Tx) UpsertEvent(ctx context.Context, e domain.ReadingEvent) error {
	_, err := t.tx.ExecContext(ctx, eventUpsert.SQL, eventUpsert.Args(map[string]any{
		"source_id": e.SourceID,
		"issue_id":  e.IssueID,
		"date":      formatTime(e.Date),
		"page":      e.Page,
		"source":    string(e.Source),
	})...)
	if err != nil {
		return fmt.Errorf("upsert reading event %s: %w", e.SourceID, err)
	}
	return nil
}

// UpsertRating stores the rating for a book.
func (t *Tx) UpsertRating(ctx context.Context, r domain.Rating) error {
	_, err := t.tx.ExecContext(ctx, ratingUpsert.SQL, ratingUpsert.Args(map[string]any{
		"issue_id": r.IssueID,
		"rating":   r.Rating,
	})...)
	if err != nil {
		return fmt.Errorf("upsert rating %d: %w", r.IssueID, err)
	}
	return nil
}

// UpsertReview stores the review for a book.
func (t *Tx) UpsertReview(ctx context.Context, r domain.Review) error {
	_, err := t.tx.ExecContext(ctx, reviewUpsert.SQL, reviewUpsert.Args(map[string]any{
		"issue_id": r.IssueID,
		"review":   r.Review,
	})...)
	if err != nil {
		return fmt.Errorf("upsert review %d: %w", r.IssueID, err)
	}
	return nil
}

// ListEvents returns the events of one book ordered by date, page and id.
func (s *Store) ListEvents(ctx context.Context, issueID int64) ([]domain.ReadingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+readingEventColumns+" FROM reading_events WHERE issue_id = ? ORDER BY date, page, source_id",
		issueID)
	if err != nil {
		return nil, fmt.Errorf("list reading events: %w", err)
	}
	defer rows.Close()

	var events []domain.ReadingEvent
	for rows.Next() {
		e, err := scanReadingEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns one event by source id.
func (s *Store) GetEvent(ctx context.Context, sourceID string) (domain.ReadingEvent, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+readingEventColumns+" FROM reading_events WHERE source_id = ?", sourceID)
	e, err := scanReadingEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReadingEvent{}, ErrNotFound
	}
	if err != nil {
		return domain.ReadingEvent{}, fmt.Errorf("get reading event %s: %w", sourceID, err)
	}
	return e, nil
}

// GetRating returns the rating of a book.
func (s *Store) GetRating(ctx context.Context, issueID int64) (domain.Rating, error) {
	r := domain.Rating{IssueID: issueID}
	err := s.db.QueryRowContext(ctx, "SELECT rating FROM ratings WHERE issue_id = ?", issueID).Scan(&r.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("get rating %d: %w", issueID, err)
	}
	return r, nil
}

// GetReview returns the review of a book.
func (s *Store) GetReview(ctx context.Context, issueID int64) (domain.Review, error) {
	r := domain.Review{IssueID: issueID}
	err := s.db.QueryRowContext(ctx, "SELECT review FROM reviews WHERE issue_id = ?", issueID).Scan(&r.Review)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("get review %d: %w", issueID, err)
	}
	return r, nil
}

// Snapshot returns every non-system column of every row, keyed by table
// and primary key. Two equal snapshots mean no data changed between them.
func (s *Store) Snapshot(ctx context.Context) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, t := range schema.Registry() {
		var cols []string
		for _, c := range t.Columns {
			if c.Role != schema.RoleSystem {
				cols = append(cols, "quote("+c.Name+")")
			}
		}
		query := fmt.Sprintf("SELECT %s, %s FROM %s", t.ConflictKey, strings.Join(cols, " || '|' || "), t.Name)
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			if isNoSuchTable(err) {
				continue
			}
			return nil, fmt.Errorf("snapshot %s: %w", t.Name, err)
		}
		table := make(map[string]string)
		for rows.Next() {
			var key, value sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan snapshot %s: %w", t.Name, err)
			}
			table[key.String] = value.String
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		out[t.Name] = table
	}
	return out, nil
}

// scanReadingEvent scans a sql.Row (or sql.Rows) selected with readingEventColumns.
func scanReadingEvent(scanner interface{ Scan(dest ...any) error }) (domain.ReadingEvent, error) {
	var (
		e        domain.ReadingEvent
		sourceID sql.NullString
		date     sql.NullString
		page     sql.NullInt64
		source   sql.NullString
	)
	if err := scanner.Scan(&sourceID, &e.IssueID, &date, &page, &source); err != nil {
		return e, err
	}
	e.SourceID = sourceID.String
	e.Page = page.Int64
	e.Source = domain.Source(source.String)
	if d, err := parseNullableTime(date); err != nil {
		return e, fmt.Errorf("parse date: %w", err)
	} else if d != nil {
		e.Date = *d
	}
	return e, nil
}
