package reconcile

import (
	"context"
	"sync"

	"github.com/pagetrail/pagetrail/internal/tracker"
)

// IssueSource fetches one issue from the tracker.
type IssueSource interface {
	GetIssue(ctx context.Context, number int64) (*tracker.Issue, error)
}

// IssueCache memoizes issue lookups for one reconcile run, errors
// included, so every issue is requested at most once.
type IssueCache struct {
	src IssueSource

	mu      sync.Mutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	issue *tracker.Issue
	err   error
}

// NewIssueCache wraps src.
func NewIssueCache(src IssueSource) *IssueCache {
	return &IssueCache{src: src, entries: make(map[int64]cacheEntry)}
}

// Get returns the issue with the given number.
func (c *IssueCache) Get(ctx context.Context, number int64) (*tracker.Issue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[number]; ok {
		return e.issue, e.err
	}
	issue, err := c.src.GetIssue(ctx, number)
	if ctx.Err() == nil {
		c.entries[number] = cacheEntry{issue: issue, err: err}
	}
	return issue, err
}

// Len returns the number of cached lookups.
func (c *IssueCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
