package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pagetrail/pagetrail/internal/domain"
	"github.com/pagetrail/pagetrail/internal/store"
)

// RuleFatal names the entry recorded when a run aborts.
const RuleFatal = "FATAL"

// Entry is one recorded change.
type Entry struct {
	Rule   string
	Table  string
	Row    string
	Column string
	Old    any
	New    any
}

// Report collects the changes of one run, grouped by rule in the order
// rules first recorded something.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	DryRun      bool

	rules   []string
	entries map[string][]Entry
}

// NewReport starts an empty report.
func NewReport(runID string, generatedAt time.Time) *Report {
	return &Report{RunID: runID, GeneratedAt: generatedAt, entries: make(map[string][]Entry)}
}

// Record adds store changes under rule.
func (r *Report) Record(rule string, changes ...store.Change) {
	for _, c := range changes {
		r.add(Entry{Rule: rule, Table: c.Table, Row: c.Row, Column: c.Column, Old: c.Old, New: c.New})
	}
}

// Fatal records the error that aborted the run.
func (r *Report) Fatal(source string, err error) {
	r.add(Entry{Rule: RuleFatal, Table: "N/A", Row: source, Column: "exception", Old: "none", New: err.Error()})
}

func (r *Report) add(e Entry) {
	if _, ok := r.entries[e.Rule]; !ok {
		r.rules = append(r.rules, e.Rule)
	}
	r.entries[e.Rule] = append(r.entries[e.Rule], e)
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	return len(r.rules) == 0
}

// Count returns the number of entries.
func (r *Report) Count() int {
	n := 0
	for _, es := range r.entries {
		n += len(es)
	}
	return n
}

// Entries returns the entries recorded under rule.
func (r *Report) Entries(rule string) []Entry {
	return r.entries[rule]
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Database Validation Report\n\n")
	fmt.Fprintf(&b, "_Generated: %s UTC_\n\n", domain.FormatTime(r.GeneratedAt))
	if r.RunID != "" {
		fmt.Fprintf(&b, "_Run: `%s`_\n\n", r.RunID)
	}
	if r.DryRun {
		b.WriteString("_Dry run: no changes were committed._\n\n")
	}

	if r.Empty() {
		b.WriteString("No changes were required.\n")
		return b.String()
	}

	for _, rule := range r.rules {
		fmt.Fprintf(&b, "## %s\n\n", rule)
		for _, e := range r.entries[rule] {
			fmt.Fprintf(&b, "- **Table:** `%s`\n", e.Table)
			fmt.Fprintf(&b, "  - **Row:** `%s`\n", e.Row)
			fmt.Fprintf(&b, "  - `%s`: `%s` to `%s`\n", e.Column, formatValue(e.Old), formatValue(e.New))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteFile writes the Markdown report to path, creating its directory.
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.Markdown()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return domain.FormatTime(v)
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return domain.FormatTime(*v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
