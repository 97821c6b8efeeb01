// Package reconcile repairs the reading store against the tracker: it
// backfills dates and word counts, repairs event keys, synthesizes first
// and last page events, removes duplicate events and reports every change
// as Markdown.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagetrail/pagetrail/internal/domain"
	domainerrors "github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/id"
	"github.com/pagetrail/pagetrail/internal/identity"
	"github.com/pagetrail/pagetrail/internal/store"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

// Rule names as they appear in the report.
const (
	RuleBookDates       = "Book dates"
	RuleWordCount       = "Word count"
	RuleEventTimestamps = "Event timestamps"
	RuleSourceIDs       = "Event source ids"
	RulePageOne         = "Page one events"
	RuleFinalPage       = "Final page events"
	RuleDedupe          = "Duplicate events"
)

var errDryRun = errors.New("dry run")

// Options configures an Engine.
type Options struct {
	// DryRun rolls back every rule after recording its changes. Later rules
	// then see the store as it was, not as earlier rules would leave it.
	DryRun bool
}

type rule struct {
	name string
	run  func(ctx context.Context, tx *store.Tx) ([]store.Change, error)
}

// Engine runs the reconciliation rules in order, each in its own
// transaction.
type Engine struct {
	store  *store.Store
	issues IssueSource
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an engine. issues answers the tracker lookups of the
// book date rule.
func NewEngine(st *store.Store, issues IssueSource, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		issues: issues,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run applies every rule. Rules committed before a failure stay
// committed; the failure is recorded in the report as a FATAL entry and
// returned.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	runID, err := id.Generate(id.PrefixReconcile)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate run id")
	}
	report := NewReport(runID, e.now())
	report.DryRun = e.opts.DryRun
	log := e.logger.With("run_id", runID)

	cache := NewIssueCache(e.issues)
	rules := []rule{
		{RuleBookDates, func(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
			return fixBookDates(ctx, tx, cache, log)
		}},
		{RuleWordCount, func(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
			return tx.FillWordCounts(ctx)
		}},
		{RuleEventTimestamps, func(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
			return tx.FillEventTimestamps(ctx, e.now())
		}},
		{RuleSourceIDs, func(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
			return tx.RepairSourceIDs(ctx)
		}},
		{RulePageOne, ensurePageOne},
		{RuleFinalPage, ensureFinalPage},
		{RuleDedupe, func(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
			return tx.DeleteExactDuplicates(ctx)
		}},
	}

	if err := e.store.EnsureSchema(ctx); err != nil {
		report.Fatal("schema", err)
		return report, err
	}

	for _, r := range rules {
		var changes []store.Change
		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			changes, err = r.run(ctx, tx)
			if err != nil {
				return err
			}
			if e.opts.DryRun {
				return errDryRun
			}
			return nil
		})
		if err != nil && !errors.Is(err, errDryRun) {
			err = fmt.Errorf("%s: %w", r.name, err)
			report.Fatal(r.name, err)
			log.Error("reconcile rule failed", "rule", r.name, "error", err)
			return report, err
		}
		report.Record(r.name, changes...)
		log.Info("reconcile rule done", "rule", r.name, "changes", len(changes))
	}

	log.Info("reconcile complete", "changes", report.Count(), "issues_fetched", cache.Len(), "dry_run", e.opts.DryRun)
	return report, nil
}

// RunAndWrite runs the rules and writes the report to path whatever the
// outcome.
func (e *Engine) RunAndWrite(ctx context.Context, path string) (*Report, error) {
	report, err := e.Run(ctx)
	if report == nil {
		return nil, err
	}
	if werr := report.WriteFile(path); werr != nil {
		return report, errors.Join(err, werr)
	}
	e.logger.Info("validation report written", "path", path)
	return report, err
}

// fixBookDates fills NULL book dates from the tracker and the book's
// events. Existing values are never overwritten.
func fixBookDates(ctx context.Context, tx *store.Tx, cache *IssueCache, log *slog.Logger) ([]store.Change, error) {
	books, err := tx.ListBookDates(ctx)
	if err != nil {
		return nil, err
	}

	var changes []store.Change
	set := func(b store.BookDates, column string, value time.Time) error {
		if err := tx.SetBookDate(ctx, b.IssueID, column, value); err != nil {
			return err
		}
		changes = append(changes, store.Change{
			Table: "books", Row: fmt.Sprintf("issue_id=%d", b.IssueID), Column: column, New: value,
		})
		return nil
	}

	for _, b := range books {
		needsEnd := b.DateEnded == nil && (b.Status == domain.StatusCompleted || b.Status == domain.StatusAbandoned)
		if b.DateBegan == nil || needsEnd {
			issue, err := lookupIssue(ctx, cache, b, log)
			if err != nil {
				return changes, err
			}
			if issue != nil {
				if b.DateBegan == nil {
					began := issue.CreatedAt.UTC()
					if err := set(b, "date_began", began); err != nil {
						return changes, err
					}
					b.DateBegan = &began
				}
				if needsEnd && issue.ClosedAt != nil {
					ended := issue.ClosedAt.UTC()
					if err := set(b, "date_ended", ended); err != nil {
						return changes, err
					}
					b.DateEnded = &ended
				}
			}
		}

		if b.CreatedOn == nil {
			if created := earliest(b.DateBegan, b.EarliestEvent); created != nil {
				if err := set(b, "created_on", *created); err != nil {
					return changes, err
				}
			}
		}
		if b.UpdatedOn == nil {
			updated := b.LatestEvent
			if b.Status == domain.StatusCompleted {
				updated = b.DateEnded
			}
			if updated != nil {
				if err := set(b, "updated_on", *updated); err != nil {
					return changes, err
				}
			}
		}

		if b.DateBegan != nil && b.DateEnded != nil && b.DateBegan.After(*b.DateEnded) {
			log.Warn("book began after it ended", "issue_id", b.IssueID,
				"date_began", domain.FormatTime(*b.DateBegan), "date_ended", domain.FormatTime(*b.DateEnded))
		}
	}
	return changes, nil
}

// lookupIssue fetches the issue behind a book. A book without an issue
// number, or whose issue is gone, is logged and left alone.
func lookupIssue(ctx context.Context, cache *IssueCache, b store.BookDates, log *slog.Logger) (*tracker.Issue, error) {
	if b.IssueNumber <= 0 {
		log.Warn("book has no issue number; dates left as they are", "issue_id", b.IssueID)
		return nil, nil
	}
	issue, err := cache.Get(ctx, b.IssueNumber)
	if errors.Is(err, tracker.ErrNotFound) {
		log.Warn("issue not found; dates left as they are", "issue_id", b.IssueID, "number", b.IssueNumber)
		return nil, nil
	}
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeUpstream, "fetch issue #%d", b.IssueNumber)
	}
	return issue, nil
}

func earliest(times ...*time.Time) *time.Time {
	var first *time.Time
	for _, t := range times {
		if t != nil && (first == nil || t.Before(*first)) {
			first = t
		}
	}
	return first
}

// ensurePageOne adds a page 1 event on the day of the earliest event of
// every book that has none.
func ensurePageOne(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
	firsts, err := tx.EarliestEventsWithoutPageOne(ctx)
	if err != nil {
		return nil, err
	}

	var changes []store.Change
	for _, first := range firsts {
		start := identity.Start(first.IssueID, first.Date, first.Source)
		if _, exists, err := tx.GetEvent(ctx, start.SourceID); err != nil {
			return changes, err
		} else if exists {
			continue
		}
		if err := tx.UpsertEvent(ctx, start); err != nil {
			return changes, err
		}
		changes = append(changes, store.Change{
			Table: "reading_events", Row: "source_id=" + start.SourceID, Column: "page", New: start.Page,
		})
	}
	return changes, nil
}

// ensureFinalPage places the last page of every finished book on its end
// date, updating the final event in place when the end date or page count
// moved.
func ensureFinalPage(ctx context.Context, tx *store.Tx) ([]store.Change, error) {
	books, err := tx.ListFinishedBooks(ctx)
	if err != nil {
		return nil, err
	}

	var changes []store.Change
	for _, b := range books {
		final := identity.Final(b.IssueID, b.TotalPages, b.DateEnded)
		existing, exists, err := tx.GetEvent(ctx, final.SourceID)
		if err != nil {
			return changes, err
		}
		if exists && existing.Date.Equal(final.Date) && existing.Page == final.Page {
			continue
		}
		if err := tx.UpsertEvent(ctx, final); err != nil {
			return changes, err
		}
		change := store.Change{
			Table: "reading_events", Row: "source_id=" + final.SourceID, Column: "date", New: final.Date,
		}
		if exists {
			change.Old = existing.Date
		}
		changes = append(changes, change)
	}
	return changes, nil
}
