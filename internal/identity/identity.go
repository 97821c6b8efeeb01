// Package identity assigns deterministic source ids to reading events so
// that re-ingesting the same history rewrites rows instead of adding them.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/parse"
)

// ItemSourceID identifies a page signal from the issue body.
func ItemSourceID(itemID int64, day string, page int64) string {
	return fmt.Sprintf("item:%d:%s:%d", itemID, day, page)
}

// CommentSourceID identifies a page signal first seen in a comment.
func CommentSourceID(commentID int64, day string, page int64) string {
	return fmt.Sprintf("comment:%d:%s:%d", commentID, day, page)
}

// FinalSourceID identifies the synthesized last-page event of a book.
func FinalSourceID(issueID, totalPages int64) string {
	return fmt.Sprintf("final:%d:%d", issueID, totalPages)
}

// StartSourceID identifies the synthesized page-one event of a book.
func StartSourceID(issueID int64, day string) string {
	return fmt.Sprintf("start:%d:%s:1", issueID, day)
}

// Lookup finds the source id already stored for a comment event on the
// given issue and calendar day.
type Lookup interface {
	FindCommentSourceID(ctx context.Context, issueID int64, day string) (sourceID string, found bool, err error)
}

type dayKey struct {
	issueID int64
	day     string
}

// Resolver turns raw events into keyed reading events for one ingestion run.
// It is not safe for concurrent use.
type Resolver struct {
	lookup Lookup
	seen   map[dayKey]string
}

// NewResolver creates a resolver backed by lookup. A nil lookup treats the
// store as empty.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup, seen: make(map[dayKey]string)}
}

// Item keys an issue-body event.
func (r *Resolver) Item(issueID int64, e parse.RawEvent) domain.ReadingEvent {
	return domain.ReadingEvent{
		SourceID: ItemSourceID(issueID, e.Day(), e.Page),
		IssueID:  issueID,
		Date:     e.Date,
		Page:     e.Page,
		Source:   domain.SourceIssueBody,
	}
}

// Comment keys a comment event. A comment event on a day that already has
// one, stored or seen earlier in this run, takes over that event's id so an
// edited comment updates the row in place.
func (r *Resolver) Comment(ctx context.Context, issueID, commentID int64, e parse.RawEvent) (domain.ReadingEvent, error) {
	key := dayKey{issueID: issueID, day: e.Day()}

	id, ok := r.seen[key]
	if !ok && r.lookup != nil {
		stored, found, err := r.lookup.FindCommentSourceID(ctx, issueID, key.day)
		if err != nil {
			return domain.ReadingEvent{}, fmt.Errorf("look up comment event %d/%s: %w", issueID, key.day, err)
		}
		if found {
			id, ok = stored, true
		}
	}
	if !ok {
		id = CommentSourceID(commentID, key.day, e.Page)
	}
	r.seen[key] = id

	return domain.ReadingEvent{
		SourceID: id,
		IssueID:  issueID,
		Date:     e.Date,
		Page:     e.Page,
		Source:   domain.SourceComment,
	}, nil
}

// Final builds the auto-finalize event placing the last page at date.
func Final(issueID, totalPages int64, date time.Time) domain.ReadingEvent {
	return domain.ReadingEvent{
		SourceID: FinalSourceID(issueID, totalPages),
		IssueID:  issueID,
		Date:     date,
		Page:     totalPages,
		Source:   domain.SourceAutoFinalize,
	}
}

// Start builds the synthesized page-one event at date.
func Start(issueID int64, date time.Time, source domain.Source) domain.ReadingEvent {
	return domain.ReadingEvent{
		SourceID: StartSourceID(issueID, domain.FormatDay(date)),
		IssueID:  issueID,
		Date:     date,
		Page:     1,
		Source:   source,
	}
}

// Collapse keeps the last event for every source id, in first-seen order.
func Collapse(events []domain.ReadingEvent) []domain.ReadingEvent {
	index := make(map[string]int, len(events))
	out := make([]domain.ReadingEvent, 0, len(events))
	for _, e := range events {
		if i, ok := index[e.SourceID]; ok {
			out[i] = e
			continue
		}
		index[e.SourceID] = len(out)
		out = append(out, e)
	}
	return out
}
