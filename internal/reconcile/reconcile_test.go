package reconcile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/store"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

var (
	issueCreated = time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	issueClosed  = time.Date(2026, 2, 1, 18, 30, 0, 0, time.UTC)
	fixedNow     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fakeIssues struct {
	mu     sync.Mutex
	issues map[int64]*tracker.Issue
	err    error
	calls  int
}

func (f *fakeIssues) GetIssue(_ context.Context, number int64) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, &tracker.Error{Op: "getIssue", Number: number, Status: 404, Err: tracker.ErrNotFound}
	}
	return issue, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func at(s string) time.Time {
	t, err := domain.ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "reading.sqlite"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func seed(t *testing.T, s *store.Store, books []*domain.Book, events ...domain.ReadingEvent) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		for _, b := range books {
			if err := tx.UpsertBook(ctx, b); err != nil {
				return err
			}
		}
		for _, e := range events {
			if err := tx.UpsertEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func newEngine(s *store.Store, issues IssueSource, opts Options) *Engine {
	e := NewEngine(s, issues, opts, quietLogger())
	e.now = func() time.Time { return fixedNow }
	return e
}

func completedBook() *domain.Book {
	return &domain.Book{
		IssueID:     1,
		Title:       "Dune",
		Author:      ptr("Frank Herbert"),
		IssueNumber: 11,
		Status:      domain.StatusCompleted,
		Metadata: domain.Metadata{
			Width:      ptr(5.0),
			Length:     ptr(8.0),
			TotalPages: ptr(int64(300)),
		},
	}
}

func defaultIssues() *fakeIssues {
	return &fakeIssues{issues: map[int64]*tracker.Issue{
		11: {ID: 1, Number: 11, State: tracker.StateClosed, CreatedAt: issueCreated, ClosedAt: &issueClosed},
	}}
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, []*domain.Book{completedBook()},
		domain.ReadingEvent{SourceID: "comment:50:2026-01-06:20", IssueID: 1, Date: at("2026-01-06 21:00:00"), Page: 20, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "comment:51:2026-01-09:150", IssueID: 1, Date: at("2026-01-09 21:00:00"), Page: 150, Source: domain.SourceComment},
	)
	issues := defaultIssues()

	report, err := newEngine(s, issues, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, issues.calls)

	assert.Len(t, report.Entries(RuleBookDates), 2)
	assert.Len(t, report.Entries(RuleWordCount), 1)
	assert.Len(t, report.Entries(RulePageOne), 1)
	assert.Len(t, report.Entries(RuleFinalPage), 1)
	assert.Equal(t, 5, report.Count())

	book, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, book.DateBegan)
	require.NotNil(t, book.DateEnded)
	assert.True(t, issueCreated.Equal(*book.DateBegan))
	assert.True(t, issueClosed.Equal(*book.DateEnded))
	require.NotNil(t, book.Metadata.WordCount)
	assert.Equal(t, store.EstimateWordCount(5, 8, 300), *book.Metadata.WordCount)

	start, err := s.GetEvent(ctx, "start:1:2026-01-06:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), start.Page)
	assert.Equal(t, domain.SourceComment, start.Source)
	assert.True(t, at("2026-01-06 21:00:00").Equal(start.Date))

	final, err := s.GetEvent(ctx, "final:1:300")
	require.NoError(t, err)
	assert.Equal(t, int64(300), final.Page)
	assert.Equal(t, domain.SourceAutoFinalize, final.Source)
	assert.True(t, issueClosed.Equal(final.Date))

	// A second pass finds nothing left to do and asks the tracker nothing.
	report, err = newEngine(s, issues, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 1, issues.calls)
	assert.Contains(t, report.Markdown(), "No changes were required.")
}

func TestEngine_ExistingDatesAreKept(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := completedBook()
	began := at("2026-01-02 08:00:00")
	b.DateBegan = &began
	seed(t, s, []*domain.Book{b})

	_, err := newEngine(s, defaultIssues(), Options{}).Run(ctx)
	require.NoError(t, err)

	book, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.True(t, began.Equal(*book.DateBegan))
	assert.True(t, issueClosed.Equal(*book.DateEnded))
}

func TestEngine_ReadingBookNeedsNoEndDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := completedBook()
	b.Status = domain.StatusReading
	seed(t, s, []*domain.Book{b})

	report, err := newEngine(s, defaultIssues(), Options{}).Run(ctx)
	require.NoError(t, err)

	book, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, book.DateBegan)
	assert.Nil(t, book.DateEnded)
	assert.Empty(t, report.Entries(RuleFinalPage))
}

func TestEngine_AbandonedBookGetsNoFinalPage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := completedBook()
	b.Status = domain.StatusAbandoned
	seed(t, s, []*domain.Book{b})

	_, err := newEngine(s, defaultIssues(), Options{}).Run(ctx)
	require.NoError(t, err)

	book, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, book.DateEnded, "abandoned books still get their closing date")

	_, err = s.GetEvent(ctx, "final:1:300")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_MissingIssueIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := completedBook()
	b.IssueNumber = 99
	seed(t, s, []*domain.Book{b})

	report, err := newEngine(s, defaultIssues(), Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Entries(RuleBookDates))
	assert.Empty(t, report.Entries(RuleFatal))
}

func TestEngine_Dedupe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := at("2026-01-06 00:00:00")
	seed(t, s, nil,
		domain.ReadingEvent{SourceID: "start:2:2026-01-06:1", IssueID: 2, Date: d, Page: 1, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "comment:7:2026-01-06:40", IssueID: 2, Date: d, Page: 40, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "comment:8:2026-01-06:40", IssueID: 2, Date: d, Page: 40, Source: domain.SourceComment},
		domain.ReadingEvent{SourceID: "comment:9:2026-01-06:30", IssueID: 2, Date: d, Page: 30, Source: domain.SourceComment},
	)

	report, err := newEngine(s, defaultIssues(), Options{}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries(RuleDedupe), 1)
	assert.Equal(t, "source_id=comment:8:2026-01-06:40", report.Entries(RuleDedupe)[0].Row)

	events, err := s.ListEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 3, "rows that differ in page are kept")
}

func TestEngine_DryRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, []*domain.Book{completedBook()})
	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	report, err := newEngine(s, defaultIssues(), Options{DryRun: true}).Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Entries(RuleBookDates))
	assert.Contains(t, report.Markdown(), "Dry run")

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_FailureIsReported(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, []*domain.Book{completedBook()})
	issues := &fakeIssues{err: &tracker.Error{Op: "getIssue", Number: 11, Status: 502, Err: tracker.ErrServer}}

	path := filepath.Join(t.TempDir(), "data", "validation_report.md")
	report, err := newEngine(s, issues, Options{}).RunAndWrite(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrServer)
	assert.ErrorIs(t, err, errors.ErrUpstream)

	fatal := report.Entries(RuleFatal)
	require.Len(t, fatal, 1)
	assert.Equal(t, "N/A", fatal[0].Table)
	assert.Equal(t, "exception", fatal[0].Column)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## FATAL")
	assert.Contains(t, string(data), "tracker: server error")

	// Later rules did not run.
	book, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, book.Metadata.WordCount)
}

func TestEngine_RunAndWriteSuccess(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "report.md")

	report, err := newEngine(s, defaultIssues(), Options{}).RunAndWrite(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, report.Empty())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Database Validation Report")
	assert.Contains(t, string(data), "_Generated: 2026-03-01 12:00:00 UTC_")
	assert.Contains(t, string(data), "No changes were required.")
}
