// Package tracker is a small GitHub Issues client: it reads an issue and its
// comments, and closes and labels issues on behalf of the ingest command.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pagetrail/pagetrail/internal/ratelimit"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRate     = 5.0
	defaultBurst    = 10
	commentsPerPage = 100
	maxCommentPages = 50
	apiVersion      = "2022-11-28"
	userAgent       = "pagetrail"

	limitRead  = "read"
	limitWrite = "write"
)

// Options configures a Client.
type Options struct {
	BaseURL string // API root, e.g. https://api.github.com
	Token   string // Bearer credential; empty makes every write fail with ErrReadOnly
	Owner   string
	Repo    string
	Timeout time.Duration

	// Requests per second and burst per call class (reads, writes). Zero
	// picks the default rate; a negative rate disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to one repository's issues.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	owner   string
	repo    string
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates a client. Zero options fall back to a 30s timeout and a
// modest request rate.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = defaultRate
	}
	if opts.Burst == 0 {
		opts.Burst = defaultBurst
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		owner:   opts.Owner,
		repo:    opts.Repo,
		limiter: ratelimit.New(opts.RequestsPerSecond, opts.Burst),
		logger:  logger,
	}
}

// Close stops the rate limiter.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Shutdown lets the DI container close the client.
func (c *Client) Shutdown() error {
	c.Close()
	return nil
}

// Writable reports whether the client carries a credential.
func (c *Client) Writable() bool {
	return c.token != ""
}

func (c *Client) issueURL(number int64) string {
	return fmt.Sprintf("%s/repos/%s/%s/issues/%d",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), number)
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, number int64) (*Issue, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, c.issueURL(number), nil)
	if err != nil {
		return nil, wrapError("getIssue", number, err)
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, wrapError("getIssue", number, fmt.Errorf("parse response: %w", err))
	}
	return &issue, nil
}

// ListComments fetches every comment of an issue, following the Link
// header's rel="next" page.
func (c *Client) ListComments(ctx context.Context, number int64) ([]Comment, error) {
	next := fmt.Sprintf("%s/comments?per_page=%d", c.issueURL(number), commentsPerPage)

	var all []Comment
	for page := 1; next != ""; page++ {
		if page > maxCommentPages {
			return nil, wrapError("listComments", number, fmt.Errorf("more than %d pages of comments", maxCommentPages))
		}
		body, header, err := c.doRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, wrapError("listComments", number, err)
		}
		var batch []Comment
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, wrapError("listComments", number, fmt.Errorf("parse page %d: %w", page, err))
		}
		all = append(all, batch...)
		next = nextLink(header.Get("Link"))
	}
	return all, nil
}

// CloseIssue closes an issue with the given state reason.
func (c *Client) CloseIssue(ctx context.Context, number int64, reason string) error {
	if !c.Writable() {
		return wrapError("closeIssue", number, ErrReadOnly)
	}
	payload := map[string]string{"state": StateClosed}
	if reason != "" {
		payload["state_reason"] = reason
	}
	if _, _, err := c.doRequest(ctx, http.MethodPatch, c.issueURL(number), payload); err != nil {
		return wrapError("closeIssue", number, err)
	}
	c.logger.Info("closed issue", "number", number, "reason", reason)
	return nil
}

// AddLabels adds labels to an issue.
func (c *Client) AddLabels(ctx context.Context, number int64, labels ...string) error {
	if !c.Writable() {
		return wrapError("addLabels", number, ErrReadOnly)
	}
	payload := map[string][]string{"labels": labels}
	if _, _, err := c.doRequest(ctx, http.MethodPost, c.issueURL(number)+"/labels", payload); err != nil {
		return wrapError("addLabels", number, err)
	}
	c.logger.Info("labeled issue", "number", number, "labels", labels)
	return nil
}

// doRequest performs one rate-limited call and maps error statuses to
// sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload any) ([]byte, http.Header, error) {
	key := limitRead
	if method != http.MethodGet {
		key = limitWrite
	}
	if err := c.limiter.Wait(ctx, key); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("tracker request", "method", method, "url", reqURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, resp.Header, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, &Error{Status: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil, &Error{Status: resp.StatusCode, Err: ErrUnauthorized}
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return nil, nil, &Error{Status: resp.StatusCode, Err: ErrRateLimited}
	case resp.StatusCode == http.StatusForbidden:
		return nil, nil, &Error{Status: resp.StatusCode, Err: ErrUnauthorized}
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrBadRequest, truncate(body))}
	case resp.StatusCode >= 500:
		return nil, nil, &Error{Status: resp.StatusCode, Err: ErrServer}
	default:
		return nil, nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))}
	}
}

// nextLink returns the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok {
			continue
		}
		for _, p := range strings.Split(params, ";") {
			name, value, _ := strings.Cut(strings.TrimSpace(p), "=")
			if name == "rel" && strings.Trim(value, `"`) == "next" {
				return strings.Trim(strings.TrimSpace(target), "<>")
			}
		}
	}
	return ""
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
