// Package sqlgen renders DDL and upsert statements from schema descriptors.
package sqlgen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pagetrail/pagetrail/internal/schema"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnDef renders a column definition for CREATE TABLE.
func ColumnDef(c schema.Column) string {
	parts := []string{c.Name, string(c.Type)}
	if c.Constraints != "" {
		parts = append(parts, c.Constraints)
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+wrapDefault(c.Default))
	}
	return strings.Join(parts, " ")
}

// AddColumn renders ALTER TABLE ADD COLUMN for c. SQLite rejects
// non-constant defaults, key constraints and NOT NULL without a default on
// an added column, so those are dropped.
func AddColumn(table string, c schema.Column) string {
	def := c.Name + " " + string(c.Type)
	constant := c.Default != "" && isConstant(c.Default)
	if constant {
		def += " DEFAULT " + c.Default
	}
	if cons := alterConstraints(c.Constraints, constant); cons != "" {
		def += " " + cons
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def)
}

// CreateTable renders CREATE TABLE IF NOT EXISTS for t.
func CreateTable(t schema.Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = "    " + ColumnDef(c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", t.Name, strings.Join(defs, ",\n"))
}

// ExistingColumns returns the physical column names of table, in order.
// A missing table yields no columns.
func ExistingColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EnsureColumns adds every registry column t declares that the physical
// table lacks. It returns the names of the columns it added.
func EnsureColumns(ctx context.Context, q Querier, t schema.Table) ([]string, error) {
	existing, err := ExistingColumns(ctx, q, t.Name)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	var added []string
	for _, c := range t.Columns {
		if have[c.Name] {
			continue
		}
		if _, err := q.ExecContext(ctx, AddColumn(t.Name, c)); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", t.Name, c.Name, err)
		}
		added = append(added, c.Name)
	}
	return added, nil
}

// Statement is a rendered parameterized statement. Columns lists the bind
// order of its placeholders.
type Statement struct {
	SQL     string
	Columns []string
}

// Args orders values by the statement's columns. Missing keys bind NULL.
func (s Statement) Args(values map[string]any) []any {
	args := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		args[i] = values[c]
	}
	return args
}

// Upsert renders INSERT ... ON CONFLICT(key) DO UPDATE for t. System
// columns are left to their defaults on insert, and updated_on is refreshed
// on every conflict.
func Upsert(t schema.Table) Statement {
	var cols, sets []string
	for _, c := range t.Columns {
		if c.Role == schema.RoleSystem {
			continue
		}
		cols = append(cols, c.Name)
		if c.Name == t.ConflictKey {
			continue
		}
		switch c.Merge {
		case schema.MergeCoalesce:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(excluded.%s, %s)", c.Name, c.Name, c.Name))
		default:
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.Name, c.Name))
		}
	}
	if t.Has("updated_on") {
		sets = append(sets, "updated_on = DATETIME('now')")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), placeholders)
	if len(sets) > 0 {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", t.ConflictKey, strings.Join(sets, ", "))
	} else {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", t.ConflictKey)
	}
	return Statement{SQL: query, Columns: cols}
}

// wrapDefault parenthesizes expression defaults, which CREATE TABLE requires.
func wrapDefault(d string) string {
	if isConstant(d) || strings.HasPrefix(d, "(") {
		return d
	}
	return "(" + d + ")"
}

// isConstant reports whether d is a literal SQLite accepts as an ALTER
// TABLE default: a number, a quoted string or NULL.
func isConstant(d string) bool {
	d = strings.TrimSpace(d)
	switch {
	case d == "":
		return false
	case strings.EqualFold(d, "NULL"):
		return true
	case strings.HasPrefix(d, "'") && strings.HasSuffix(d, "'") && len(d) >= 2:
		return true
	}
	for i, r := range d {
		if (r < '0' || r > '9') && r != '.' && !(i == 0 && (r == '-' || r == '+')) {
			return false
		}
	}
	return true
}

// alterConstraints keeps the parts of a constraint string that ADD COLUMN
// accepts.
func alterConstraints(cons string, hasDefault bool) string {
	upper := strings.ToUpper(cons)
	if strings.Contains(upper, "PRIMARY KEY") || strings.Contains(upper, "UNIQUE") {
		return ""
	}
	if !hasDefault {
		cons = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(cons, "NOT NULL", ""), "not null", ""))
	}
	return cons
}
