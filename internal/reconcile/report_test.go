package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/store"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

func TestReport_Markdown(t *testing.T) {
	r := NewReport("reconcile-abc", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r.Record(RuleBookDates,
		store.Change{Table: "books", Row: "issue_id=1", Column: "date_began", New: time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)},
	)
	r.Record(RuleWordCount,
		store.Change{Table: "books", Row: "issue_id=1", Column: "word_count", New: 1234567.0},
	)
	r.Record(RuleBookDates,
		store.Change{Table: "books", Row: "issue_id=2", Column: "date_ended", Old: nil, New: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	)

	want := "# Database Validation Report\n\n" +
		"_Generated: 2026-03-01 12:00:00 UTC_\n\n" +
		"_Run: `reconcile-abc`_\n\n" +
		"## Book dates\n\n" +
		"- **Table:** `books`\n" +
		"  - **Row:** `issue_id=1`\n" +
		"  - `date_began`: `NULL` to `2026-01-05 14:00:00`\n" +
		"- **Table:** `books`\n" +
		"  - **Row:** `issue_id=2`\n" +
		"  - `date_ended`: `NULL` to `2026-02-01 00:00:00`\n" +
		"\n" +
		"## Word count\n\n" +
		"- **Table:** `books`\n" +
		"  - **Row:** `issue_id=1`\n" +
		"  - `word_count`: `NULL` to `1234567`\n" +
		"\n"
	assert.Equal(t, want, r.Markdown())
	assert.Equal(t, 3, r.Count())
}

func TestReport_Empty(t *testing.T) {
	r := NewReport("", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.True(t, r.Empty())
	assert.Equal(t,
		"# Database Validation Report\n\n_Generated: 2026-03-01 12:00:00 UTC_\n\nNo changes were required.\n",
		r.Markdown())
}

func TestReport_Fatal(t *testing.T) {
	r := NewReport("", time.Now())
	r.Fatal(RuleWordCount, errors.New("disk I/O error"))

	md := r.Markdown()
	assert.Contains(t, md, "## FATAL")
	assert.Contains(t, md, "- **Table:** `N/A`")
	assert.Contains(t, md, "  - **Row:** `Word count`")
	assert.Contains(t, md, "  - `exception`: `none` to `disk I/O error`")
}

func TestIssueCache(t *testing.T) {
	ctx := context.Background()
	src := defaultIssues()
	cache := NewIssueCache(src)

	for range 3 {
		issue, err := cache.Get(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, int64(11), issue.Number)
	}
	for range 2 {
		_, err := cache.Get(ctx, 404)
		assert.ErrorIs(t, err, tracker.ErrNotFound)
	}
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 2, cache.Len())
}

func TestIssueCache_CanceledLookupIsNotCached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := defaultIssues()
	cache := NewIssueCache(src)

	_, _ = cache.Get(ctx, 11)
	assert.Equal(t, 0, cache.Len())
}
