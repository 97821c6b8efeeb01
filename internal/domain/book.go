package domain

import "time"

// Stored timestamp layouts. Every timestamp is UTC.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DayLayout  = "2006-01-02"
)

// FormatTime renders t in the stored layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatDay renders the calendar day of t.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseTime accepts the stored layout, a bare day, or RFC3339.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, DayLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Parse(TimeLayout, s)
}

// Status is the reading status of a book.
type Status string

// Book statuses.
const (
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReading, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// DeriveStatus maps the tracker state and the abandonment signal to a status.
func DeriveStatus(closed, abandoned bool) Status {
	switch {
	case abandoned:
		return StatusAbandoned
	case closed:
		return StatusCompleted
	default:
		return StatusReading
	}
}

// Book is one tracked book. IssueID is the tracker's global issue id.
type Book struct {
	IssueID     int64
	Title       string
	Author      *string
	IssueNumber int64
	Status      Status
	DateBegan   *time.Time
	DateEnded   *time.Time
	Metadata    Metadata

	CreatedOn *time.Time
	UpdatedOn *time.Time
}

// Rating is the numeric score left on a completed book.
type Rating struct {
	IssueID int64
	Rating  float64
}

// Review is the free-text review left on a completed book.
type Review struct {
	IssueID int64
	Review  string
}
