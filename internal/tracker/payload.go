package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/validation"
)

// Issue states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Event is a change notification: an issues or issue_comment webhook
// payload as delivered to the ingest command.
type Event struct {
	Issue   Issue    `json:"issue"`
	Comment *Comment `json:"comment,omitempty"`
}

// Issue is one tracked book.
type Issue struct {
	ID          int64       `json:"id" validate:"gt=0"`
	Number      int64       `json:"number" validate:"gt=0"`
	Title       string      `json:"title" validate:"required"`
	Body        string      `json:"body"`
	State       string      `json:"state" validate:"required,oneof=open closed"`
	CreatedAt   time.Time   `json:"created_at" validate:"required"`
	ClosedAt    *time.Time  `json:"closed_at"`
	Labels      []Label     `json:"labels" validate:"dive"`
	URL         string      `json:"url,omitempty" validate:"omitempty,url"`
	CommentsURL string      `json:"comments_url,omitempty" validate:"omitempty,url"`
	Comments    CommentList `json:"comments"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name" validate:"required"`
}

// Comment is one issue comment.
type Comment struct {
	ID        int64     `json:"id" validate:"gt=0"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
}

// CommentList is the issue "comments" field: the embedded comments of a
// test payload, or only their count in a real webhook payload.
type CommentList struct {
	Items    []Comment `validate:"dive"`
	Count    int
	Embedded bool
}

// UnmarshalJSON accepts either an array of comments or a number.
func (c *CommentList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = CommentList{}
		return nil
	case data[0] == '[':
		var items []Comment
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("comments array: %w", err)
		}
		*c = CommentList{Items: items, Count: len(items), Embedded: true}
		return nil
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("comments must be an array or a count: %w", err)
		}
		*c = CommentList{Count: n}
		return nil
	}
}

// MarshalJSON writes the embedded comments when present, else the count.
func (c CommentList) MarshalJSON() ([]byte, error) {
	if c.Embedded {
		items := c.Items
		if items == nil {
			items = []Comment{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(c.Count)
}

// Closed reports whether the issue is closed.
func (i *Issue) Closed() bool {
	return i.State == StateClosed
}

// HasLabel reports whether the issue carries the named label.
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// LoadEvent reads and validates the event payload at path.
func LoadEvent(path string, v *validation.Validator) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "read event payload %s", path)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "decode event payload %s", path)
	}
	if err := v.Validate(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DumpPayload writes issue.json and comment.json into dir for debugging.
// comment.json holds null when the event carries no comment.
func DumpPayload(dir string, ev *Event) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create payload dir: %w", err)
	}
	files := []struct {
		name string
		v    any
	}{
		{"issue.json", ev.Issue},
		{"comment.json", ev.Comment},
	}
	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}
