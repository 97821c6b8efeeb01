package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/domain"
)

func seedEvents(t *testing.T, s *Store, events ...domain.ReadingEvent) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for _, e := range events {
			if err := tx.UpsertEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestEstimateWordCount(t *testing.T) {
	want := ((5.0 * 0.8) / (0.153 * 0.5 * 5.5)) * ((8.0 * 0.75) / (0.153 * 1.3)) * 300
	assert.InDelta(t, want, EstimateWordCount(5, 8, 300), 0.5)
	assert.Equal(t, float64(0), EstimateWordCount(5, 8, 0))
}

func TestFillWordCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for _, b := range []*domain.Book{
			{IssueID: 1, Title: "A", Status: domain.StatusReading, Metadata: domain.Metadata{Width: ptr(5.0), Length: ptr(8.0), TotalPages: ptr(int64(300))}},
			{IssueID: 2, Title: "B", Status: domain.StatusReading, Metadata: domain.Metadata{Width: ptr(5.0), TotalPages: ptr(int64(300))}},
			{IssueID: 3, Title: "C", Status: domain.StatusReading, Metadata: domain.Metadata{Width: ptr(5.0), Length: ptr(8.0), TotalPages: ptr(int64(300)), WordCount: ptr(42.0)}},
		} {
			if err := tx.UpsertBook(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	var changes []Change
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		changes, err = tx.FillWordCounts(ctx)
		return err
	}))

	require.Len(t, changes, 1)
	assert.Equal(t, "issue_id=1", changes[0].Row)

	b1, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, b1.Metadata.WordCount)
	assert.Equal(t, EstimateWordCount(5, 8, 300), *b1.Metadata.WordCount)

	b2, err := s.GetBook(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, b2.Metadata.WordCount)

	b3, err := s.GetBook(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 42.0, *b3.Metadata.WordCount, "existing counts are never recomputed")
}

func TestFillEventTimestamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEvents(t, s, domain.ReadingEvent{SourceID: "a", IssueID: 1, Date: day("2026-01-05 07:00:00"), Page: 10, Source: domain.SourceComment})
	_, err := s.db.Exec("UPDATE reading_events SET created_on = NULL, updated_on = NULL")
	require.NoError(t, err)

	var changes []Change
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		changes, err = tx.FillEventTimestamps(ctx, day("2026-03-01"))
		return err
	}))
	assert.Len(t, changes, 2)

	var created, updated string
	require.NoError(t, s.db.QueryRow("SELECT quote(created_on), quote(updated_on) FROM reading_events").Scan(&created, &updated))
	assert.Equal(t, "'2026-01-05 07:00:00'", created)
	assert.Equal(t, "'2026-01-05 07:00:00'", updated)
}

func TestRepairSourceIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEvents(t, s, domain.ReadingEvent{SourceID: "comment:1:2026-01-05:10", IssueID: 1, Date: day("2026-01-05"), Page: 10, Source: domain.SourceComment})
	_, err := s.db.Exec(`INSERT INTO reading_events (source_id, issue_id, date, page, source) VALUES
		(NULL, 1, '2026-01-06 00:00:00', 20, 'comment'),
		(NULL, 1, '2026-01-05 00:00:00', 10, 'comment')`)
	require.NoError(t, err)

	var changes []Change
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		changes, err = tx.RepairSourceIDs(ctx)
		return err
	}))
	require.Len(t, changes, 2)
	assert.Equal(t, "source_id", changes[0].Column)
	assert.Equal(t, "comment:1:2026-01-06:20", changes[0].New)
	assert.Equal(t, "*", changes[1].Column, "a repaired id that is already taken is a duplicate")

	var nulls int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM reading_events WHERE source_id IS NULL").Scan(&nulls))
	assert.Zero(t, nulls)

	events, err := s.ListEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEarliestEventsWithoutPageOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEvents(t, s,
		domain.ReadingEvent{SourceID: "x2", IssueID: 1, Date: day("2026-01-06"), Page: 40, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "x1", IssueID: 1, Date: day("2026-01-05"), Page: 20, Source: domain.SourceIssueBody},
		domain.ReadingEvent{SourceID: "y1", IssueID: 2, Date: day("2026-01-05"), Page: 1, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "y2", IssueID: 2, Date: day("2026-01-07"), Page: 30, Source: domain.SourceComment},
	)

	var earliest []domain.ReadingEvent
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		earliest, err = tx.EarliestEventsWithoutPageOne(ctx)
		return err
	}))

	require.Len(t, earliest, 1)
	assert.Equal(t, "x1", earliest[0].SourceID)
	assert.Equal(t, domain.SourceIssueBody, earliest[0].Source)
}

func TestListFinishedBooks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ended := day("2026-02-01 12:00:00")
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for _, b := range []*domain.Book{
			{IssueID: 1, Title: "done", Status: domain.StatusCompleted, DateEnded: &ended, Metadata: domain.Metadata{TotalPages: ptr(int64(300))}},
			{IssueID: 2, Title: "no pages", Status: domain.StatusCompleted, DateEnded: &ended},
			{IssueID: 3, Title: "dropped", Status: domain.StatusAbandoned, DateEnded: &ended, Metadata: domain.Metadata{TotalPages: ptr(int64(300))}},
			{IssueID: 4, Title: "open", Status: domain.StatusReading, Metadata: domain.Metadata{TotalPages: ptr(int64(300))}},
		} {
			if err := tx.UpsertBook(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	var finished []FinishedBook
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		finished, err = tx.ListFinishedBooks(ctx)
		return err
	}))

	require.Len(t, finished, 1)
	assert.Equal(t, int64(1), finished[0].IssueID)
	assert.Equal(t, int64(300), finished[0].TotalPages)
	assert.True(t, ended.Equal(finished[0].DateEnded))
}

func TestDeleteExactDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := day("2026-01-05")
	seedEvents(t, s,
		domain.ReadingEvent{SourceID: "b", IssueID: 1, Date: d, Page: 50, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "a", IssueID: 1, Date: d, Page: 50, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "c", IssueID: 1, Date: d, Page: 50, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "d", IssueID: 1, Date: d, Page: 30, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "e", IssueID: 1, Date: d, Page: 50, Source: domain.SourceIssueBody},
	)

	var changes []Change
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		changes, err = tx.DeleteExactDuplicates(ctx)
		return err
	}))
	assert.Len(t, changes, 2)

	events, err := s.ListEvents(ctx, 1)
	require.NoError(t, err)
	var ids []string
	for _, e := range events {
		ids = append(ids, e.SourceID)
	}
	assert.ElementsMatch(t, []string{"a", "d", "e"}, ids)
}
