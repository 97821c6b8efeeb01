// Package trackertest runs an in-memory GitHub Issues API for tests. It
// serves issues and paginated comments, applies PATCH and label writes to
// its own state and records every write it receives.
package trackertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagetrail/pagetrail/internal/tracker"
)

// Fixed repository served by the fake.
const (
	Owner = "reader"
	Repo  = "books"
	Token = "test-token"
)

// Call is one write received by the server.
type Call struct {
	Method string
	Number int64
	Body   map[string]any
}

// Server is a fake tracker. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	issues   map[int64]*tracker.Issue
	comments map[int64][]tracker.Comment
	calls    []Call
	pageSize int
	failWith int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		issues:   make(map[int64]*tracker.Issue),
		comments: make(map[int64][]tracker.Comment),
		pageSize: 100,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requireAuth)
	r.Use(s.injectFailure)
	r.Route("/repos/{owner}/{repo}/issues/{number}", func(r chi.Router) {
		r.Get("/", s.handleGetIssue)
		r.Patch("/", s.handlePatchIssue)
		r.Get("/comments", s.handleListComments)
		r.Post("/labels", s.handleAddLabels)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Options returns client options pointing at this server.
func (s *Server) Options() tracker.Options {
	return tracker.Options{
		BaseURL:           s.URL,
		Token:             Token,
		Owner:             Owner,
		Repo:              Repo,
		Timeout:           5 * time.Second,
		RequestsPerSecond: -1,
	}
}

// AddIssue stores an issue and its comments.
func (s *Server) AddIssue(issue tracker.Issue, comments ...tracker.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue.Comments = tracker.CommentList{Count: len(comments)}
	s.issues[issue.Number] = &issue
	s.comments[issue.Number] = comments
}

// Issue returns the current state of an issue.
func (s *Server) Issue(number int64) (tracker.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[number]
	if !ok {
		return tracker.Issue{}, false
	}
	return *issue, true
}

// SetPageSize caps the comments served per page regardless of per_page.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// FailWith makes every following request answer with status. Zero restores
// normal service.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

// Calls returns the recorded writes with the given method, or all writes
// for an empty method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Requires authentication"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failWith
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request) (*tracker.Issue, bool) {
	if chi.URLParam(r, "owner") != Owner || chi.URLParam(r, "repo") != Repo {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil, false
	}
	number, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil, false
	}
	issue, ok := s.issues[number]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil, false
	}
	return issue, true
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issue(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issue(w, r)
	if !ok {
		return
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 || perPage > s.pageSize {
		perPage = s.pageSize
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	all := s.comments[issue.Number]
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	if end < len(all) {
		next := fmt.Sprintf("%s%s?per_page=%d&page=%d", s.URL, r.URL.Path, perPage, page+1)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}
	writeJSON(w, http.StatusOK, all[start:end])
}

func (s *Server) handlePatchIssue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issue(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	s.calls = append(s.calls, Call{Method: r.Method, Number: issue.Number, Body: body})

	if state, _ := body["state"].(string); state != "" {
		issue.State = state
		if state == tracker.StateClosed && issue.ClosedAt == nil {
			now := time.Now().UTC().Truncate(time.Second)
			issue.ClosedAt = &now
		}
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleAddLabels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issue(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	s.calls = append(s.calls, Call{Method: r.Method, Number: issue.Number, Body: body})

	labels, _ := body["labels"].([]any)
	for _, l := range labels {
		name, _ := l.(string)
		if name != "" && !issue.HasLabel(name) {
			issue.Labels = append(issue.Labels, tracker.Label{Name: name})
		}
	}
	writeJSON(w, http.StatusOK, issue.Labels)
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
