package domain

import "time"

// Source records where a reading event came from.
type Source string

// Event sources.
const (
	SourceIssueBody    Source = "issue-body"
	SourceComment      Source = "comment"
	SourceAutoFinalize Source = "auto-finalize"
)

// ReadingEvent is a single "page N reached at time T" observation.
// SourceID is the idempotency key: re-processing the same signal always
// yields the same id.
type ReadingEvent struct {
	SourceID string
	IssueID  int64
	Date     time.Time
	Page     int64
	Source   Source
}

// Day returns the calendar day the event belongs to.
func (e ReadingEvent) Day() string {
	return FormatDay(e.Date)
}
