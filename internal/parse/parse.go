// Package parse turns fixed-format issue and comment text into titles,
// metadata values and page events.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/schema"
)

// DefaultAbandonKeywords mark a comment as abandoning the book.
var DefaultAbandonKeywords = []string{"abandon", "give_up"}

var (
	datedPageRe = regexp.MustCompile(`^\s*(\d{8})\s*:\s*(\d+)\s*$`)
	pageOnlyRe  = regexp.MustCompile(`^\s*(\d+)\s*$`)
	numberRe    = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	ratingRe    = regexp.MustCompile(`(?i)^\s*rating\s*:\s*(\d+(?:\.\d+)?)`)
	reviewRe    = regexp.MustCompile(`(?is)^\s*review\s*:\s*(.*)`)
)

// ParseTitle splits an issue title into title and author. The first em-dash
// separates them; failing that, the first hyphen. Without a separator the
// author is nil.
func ParseTitle(text string) (title string, author *string) {
	text = norm.NFC.String(text)
	sep := "—"
	if !strings.Contains(text, sep) {
		sep = "-"
	}
	before, after, found := strings.Cut(text, sep)
	if !found {
		return strings.TrimSpace(text), nil
	}
	a := strings.TrimSpace(after)
	return strings.TrimSpace(before), &a
}

// ExtractMetadata reads "key: value" lines for the given columns. Every
// column name is present in the result, nil unless a line set it; later
// lines win. Lines without a colon or starting with a digit are skipped.
func ExtractMetadata(body string, columns []schema.Column) map[string]any {
	byName := make(map[string]schema.Column, len(columns))
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
		out[c.Name] = nil
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] >= '0' && line[0] <= '9' {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		col, known := byName[strings.ToLower(strings.TrimSpace(key))]
		if !known {
			continue
		}
		out[col.Name] = coerce(col.Type, strings.TrimSpace(value))
	}
	return out
}

func coerce(typ schema.Type, value string) any {
	switch typ {
	case schema.Real:
		m := numberRe.FindString(value)
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return f
	case schema.Integer:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil
		}
		return n
	default:
		if value == "" {
			return nil
		}
		return value
	}
}

// RawEvent is a page signal before identity resolution.
type RawEvent struct {
	Date   time.Time
	Page   int64
	Source domain.Source
	// Dated is true when the line carried its own MMDDYYYY date.
	Dated bool
}

// Day returns the calendar day of the event.
func (e RawEvent) Day() string {
	return domain.FormatDay(e.Date)
}

// ExtractEvents parses one line. "MMDDYYYY: N" yields page N at midnight UTC
// of that day; a bare "N" yields page N at fallback. Anything else, or an
// impossible calendar date, yields nothing.
func ExtractEvents(line string, fallback time.Time, origin domain.Source) []RawEvent {
	if m := datedPageRe.FindStringSubmatch(line); m != nil {
		day, err := time.Parse("01022006", m[1])
		if err != nil {
			return nil
		}
		page, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil
		}
		return []RawEvent{{Date: day.UTC(), Page: page, Source: origin, Dated: true}}
	}
	if m := pageOnlyRe.FindStringSubmatch(line); m != nil {
		page, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil
		}
		return []RawEvent{{Date: fallback.UTC(), Page: page, Source: origin}}
	}
	return nil
}

// ExtractAllEvents runs ExtractEvents over every line of text.
func ExtractAllEvents(text string, fallback time.Time, origin domain.Source) []RawEvent {
	var events []RawEvent
	for _, line := range strings.Split(text, "\n") {
		events = append(events, ExtractEvents(line, fallback, origin)...)
	}
	return events
}

// IsAbandoned reports whether text contains any keyword, ignoring case.
// Without keywords DefaultAbandonKeywords apply.
func IsAbandoned(text string, keywords ...string) bool {
	if len(keywords) == 0 {
		keywords = DefaultAbandonKeywords
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ExtractRating returns the score of a "rating: N" comment when it lies in
// [0, 10].
func ExtractRating(text string) *float64 {
	m := ratingRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	r, err := strconv.ParseFloat(m[1], 64)
	if err != nil || r < 0 || r > 10 {
		return nil
	}
	return &r
}

// ExtractReview returns the text of a "review: ..." comment, which may span
// several lines.
func ExtractReview(text string) *string {
	m := reviewRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	review := strings.TrimSpace(m[1])
	if review == "" {
		return nil
	}
	return &review
}
