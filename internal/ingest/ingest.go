// Package ingest turns one tracker change notification into book, event,
// rating and review rows, and closes issues whose comments abandon the book.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/id"
	"github.com/pagetrail/pagetrail/internal/identity"
	"github.com/pagetrail/pagetrail/internal/normalize"
	"github.com/pagetrail/pagetrail/internal/parse"
	"github.com/pagetrail/pagetrail/internal/schema"
	"github.com/pagetrail/pagetrail/internal/store"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

// Tracker is the part of the tracker client ingestion needs.
type Tracker interface {
	GetIssue(ctx context.Context, number int64) (*tracker.Issue, error)
	ListComments(ctx context.Context, number int64) ([]tracker.Comment, error)
	CloseIssue(ctx context.Context, number int64, reason string) error
	AddLabels(ctx context.Context, number int64, labels ...string) error
}

// Options configures a Service.
type Options struct {
	// Live re-fetches the issue and its comments and allows tracker writes.
	// Off, the payload is used as delivered and nothing is written back.
	Live bool

	AutoClosedLabel string
	AbandonKeywords []string
	StateReason     string
	DebugPayloadDir string
}

// Result describes one ingestion run.
type Result struct {
	RunID       string
	IssueID     int64
	IssueNumber int64
	Skipped     bool
	Reason      string
	Status      domain.Status
	Events      int
	AutoClosed  bool
}

// Service runs ingestion against one store.
type Service struct {
	store   *store.Store
	tracker Tracker
	opts    Options
	logger  *slog.Logger
}

// NewService creates an ingestion service. tracker may be nil when Live is
// off.
func NewService(st *store.Store, tr Tracker, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AutoClosedLabel == "" {
		opts.AutoClosedLabel = "auto-closed"
	}
	if opts.StateReason == "" {
		opts.StateReason = "not_planned"
	}
	return &Service{store: st, tracker: tr, opts: opts, logger: logger}
}

// Run ingests ev. Skips are reported in the Result, not as errors.
func (s *Service) Run(ctx context.Context, ev *tracker.Event) (*Result, error) {
	runID, err := id.Generate(id.PrefixIngest)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate run id")
	}
	res := &Result{RunID: runID, IssueID: ev.Issue.ID, IssueNumber: ev.Issue.Number}
	log := s.logger.With("run_id", runID, "issue", ev.Issue.Number)

	if s.opts.DebugPayloadDir != "" {
		if err := tracker.DumpPayload(s.opts.DebugPayloadDir, ev); err != nil {
			log.Warn("payload dump failed", "dir", s.opts.DebugPayloadDir, "error", err)
		}
	}

	if ev.Issue.HasLabel(s.opts.AutoClosedLabel) {
		return s.skip(log, res, "issue carries the "+s.opts.AutoClosedLabel+" label"), nil
	}

	issue, comments, err := s.load(ctx, ev)
	if err != nil {
		return nil, err
	}
	if issue.HasLabel(s.opts.AutoClosedLabel) {
		return s.skip(log, res, "issue carries the "+s.opts.AutoClosedLabel+" label"), nil
	}

	title, author := parse.ParseTitle(issue.Title)
	if author == nil {
		return s.skip(log, res, "title has no author"), nil
	}

	abandoned := false
	for _, c := range comments {
		if parse.IsAbandoned(c.Body, s.opts.AbandonKeywords...) {
			abandoned = true
			break
		}
	}

	book := &domain.Book{
		IssueID:     issue.ID,
		Title:       title,
		Author:      author,
		IssueNumber: issue.Number,
		Status:      domain.DeriveStatus(issue.Closed(), abandoned),
		Metadata: domain.MetadataFromValues(
			parse.ExtractMetadata(issue.Body, schema.Books.ByRole(schema.RoleMetadata))),
	}
	normalize.Metadata(&book.Metadata)
	if issue.Closed() && issue.ClosedAt != nil {
		ended := issue.ClosedAt.UTC()
		book.DateEnded = &ended
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.EnsureSchema(ctx); err != nil {
			return err
		}

		events, err := resolveEvents(ctx, identity.NewResolver(tx), issue, comments)
		if err != nil {
			return err
		}

		began := issue.CreatedAt.UTC()
		for _, e := range events {
			if e.Date.Before(began) {
				began = e.Date
			}
		}
		book.DateBegan = &began
		if book.DateEnded != nil && began.After(*book.DateEnded) {
			log.Warn("book began after it ended",
				"date_began", domain.FormatTime(began), "date_ended", domain.FormatTime(*book.DateEnded))
		}

		if err := tx.UpsertBook(ctx, book); err != nil {
			return err
		}
		for _, e := range events {
			if err := tx.UpsertEvent(ctx, e); err != nil {
				return err
			}
		}
		res.Events = len(events)

		if book.Status == domain.StatusCompleted {
			return upsertFeedback(ctx, tx, issue.ID, comments)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest issue #%d: %w", issue.Number, err)
	}
	res.Status = book.Status

	if abandoned && !issue.Closed() {
		closed, err := s.autoClose(ctx, log, issue.Number)
		if err != nil {
			return res, err
		}
		res.AutoClosed = closed
	}

	log.Info("issue ingested",
		"status", res.Status, "events", res.Events, "auto_closed", res.AutoClosed)
	return res, nil
}

func (s *Service) skip(log *slog.Logger, res *Result, reason string) *Result {
	res.Skipped = true
	res.Reason = reason
	log.Info("issue skipped", "reason", reason)
	return res
}

// load returns the issue and comments to ingest: fetched from the tracker
// in live mode, otherwise as embedded in the payload.
func (s *Service) load(ctx context.Context, ev *tracker.Event) (*tracker.Issue, []tracker.Comment, error) {
	if !s.opts.Live {
		issue := ev.Issue
		comments := issue.Comments.Items
		if ev.Comment != nil && !containsComment(comments, ev.Comment.ID) {
			comments = append(comments, *ev.Comment)
		}
		return &issue, comments, nil
	}

	issue, err := s.tracker.GetIssue(ctx, ev.Issue.Number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.CodeUpstream, "fetch issue #%d", ev.Issue.Number)
	}
	comments, err := s.tracker.ListComments(ctx, ev.Issue.Number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.CodeUpstream, "fetch comments of issue #%d", ev.Issue.Number)
	}
	return issue, comments, nil
}

func containsComment(comments []tracker.Comment, id int64) bool {
	for _, c := range comments {
		if c.ID == id {
			return true
		}
	}
	return false
}

// resolveEvents extracts page events from the issue body and every comment
// and keys them. Body lines fall back to the issue's creation time, comment
// lines to the comment's.
func resolveEvents(ctx context.Context, r *identity.Resolver, issue *tracker.Issue, comments []tracker.Comment) ([]domain.ReadingEvent, error) {
	var events []domain.ReadingEvent
	for _, raw := range parse.ExtractAllEvents(issue.Body, issue.CreatedAt, domain.SourceIssueBody) {
		events = append(events, r.Item(issue.ID, raw))
	}
	for _, c := range comments {
		for _, raw := range parse.ExtractAllEvents(c.Body, c.CreatedAt, domain.SourceComment) {
			e, err := r.Comment(ctx, issue.ID, c.ID, raw)
			if err != nil {
				return nil, err
			}
			events = append(events, e)
		}
	}
	return identity.Collapse(events), nil
}

// upsertFeedback stores the last rating and the last review found in the
// comments.
func upsertFeedback(ctx context.Context, tx *store.Tx, issueID int64, comments []tracker.Comment) error {
	var (
		rating *float64
		review *string
	)
	for _, c := range comments {
		if r := parse.ExtractRating(c.Body); r != nil {
			rating = r
		}
		if r := parse.ExtractReview(c.Body); r != nil {
			review = r
		}
	}
	if rating != nil {
		if err := tx.UpsertRating(ctx, domain.Rating{IssueID: issueID, Rating: *rating}); err != nil {
			return err
		}
	}
	if review != nil {
		if err := tx.UpsertReview(ctx, domain.Review{IssueID: issueID, Review: *review}); err != nil {
			return err
		}
	}
	return nil
}

// autoClose closes and labels an abandoned issue. Without a live tracker it
// only logs.
func (s *Service) autoClose(ctx context.Context, log *slog.Logger, number int64) (bool, error) {
	if !s.opts.Live {
		log.Info("book abandoned; no tracker credential, leaving issue open")
		return false, nil
	}
	if err := s.tracker.CloseIssue(ctx, number, s.opts.StateReason); err != nil {
		return false, errors.Wrapf(err, errors.CodeUpstream, "close abandoned issue #%d", number)
	}
	if err := s.tracker.AddLabels(ctx, number, s.opts.AutoClosedLabel); err != nil {
		return false, errors.Wrapf(err, errors.CodeUpstream, "label abandoned issue #%d", number)
	}
	log.Info("abandoned issue closed", "label", s.opts.AutoClosedLabel, "reason", s.opts.StateReason)
	return true, nil
}
