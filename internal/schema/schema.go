// Package schema is the declarative registry of every table pagetrail owns.
//
// A Table lists typed Column descriptors in physical order. The same
// descriptor drives CREATE TABLE, the additive ALTER TABLE path and the
// upsert statement (see package sqlgen), so adding a metadata field is a
// one-line change here followed by an ensure-columns pass.
package schema

import "slices"

// Version identifies the registry revision. Bump it whenever a column is
// added; ensure-columns brings existing stores forward without a numbered
// migration.
const Version = 2

// Type is the SQLite storage class a column is declared with.
type Type string

// Column types.
const (
	Text     Type = "TEXT"
	Integer  Type = "INTEGER"
	Real     Type = "REAL"
	DateTime Type = "DATETIME" // stored as "YYYY-MM-DD HH:MM:SS" UTC text
)

// Role classifies what a column is for.
type Role int

// Column roles.
const (
	// RoleKey is the conflict target of the table.
	RoleKey Role = iota
	// RoleCore columns are derived on every ingestion run.
	RoleCore
	// RoleMetadata columns come from free-form "key: value" body lines.
	RoleMetadata
	// RoleSystem columns are assigned by storage defaults.
	RoleSystem
)

// Merge says how an upsert treats a column when the row already exists.
type Merge int

// Merge policies.
const (
	// MergeOverwrite replaces the stored value, NULL included.
	MergeOverwrite Merge = iota
	// MergeCoalesce keeps the stored value when the incoming one is NULL.
	MergeCoalesce
)

// Column describes one physical column.
type Column struct {
	Name        string
	Type        Type
	Constraints string // e.g. "PRIMARY KEY", "NOT NULL CHECK(rating >= 0)"
	Default     string // SQL expression without the DEFAULT keyword
	Role        Role
	Merge       Merge
}

// Table describes one table.
type Table struct {
	Name        string
	ConflictKey string
	Columns     []Column
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	i := slices.IndexFunc(t.Columns, func(c Column) bool { return c.Name == name })
	if i < 0 {
		return Column{}, false
	}
	return t.Columns[i], true
}

// Names returns the column names in physical order.
func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ByRole returns the columns with the given role, in physical order.
func (t Table) ByRole(role Role) []Column {
	var cols []Column
	for _, c := range t.Columns {
		if c.Role == role {
			cols = append(cols, c)
		}
	}
	return cols
}

// Has reports whether the table declares the named column.
func (t Table) Has(name string) bool {
	_, ok := t.Column(name)
	return ok
}

const nowDefault = "DATETIME('now')"

func systemColumns() []Column {
	return []Column{
		{Name: "created_on", Type: DateTime, Default: nowDefault, Role: RoleSystem},
		{Name: "updated_on", Type: DateTime, Default: nowDefault, Role: RoleSystem},
	}
}

func metadata(name string, typ Type) Column {
	return Column{Name: name, Type: typ, Role: RoleMetadata, Merge: MergeCoalesce}
}

func core(name string, typ Type) Column {
	return Column{Name: name, Type: typ, Role: RoleCore}
}

// Books is one row per tracked book, keyed by the tracker issue id.
var Books = Table{
	Name:        "books",
	ConflictKey: "issue_id",
	Columns: append([]Column{
		{Name: "issue_id", Type: Integer, Constraints: "PRIMARY KEY", Role: RoleKey},
		core("title", Text),
		core("author", Text),
		core("issue_number", Integer),
		core("status", Text),
		core("date_began", DateTime),
		core("date_ended", DateTime),
		metadata("publisher", Text),
		metadata("year_published", Text),
		metadata("year_edition", Text),
		metadata("isbn", Text),
		metadata("width", Real),
		metadata("length", Real),
		metadata("height", Real),
		metadata("total_pages", Integer),
		metadata("word_count", Real),
		metadata("library", Text),
		metadata("translator", Text),
		metadata("collection", Integer),
		metadata("language", Text),
		metadata("genre", Text),
	}, systemColumns()...),
}

// ReadingEvents is one row per observed page signal, keyed by a
// deterministic source id.
var ReadingEvents = Table{
	Name:        "reading_events",
	ConflictKey: "source_id",
	Columns: append([]Column{
		{Name: "source_id", Type: Text, Constraints: "PRIMARY KEY", Role: RoleKey},
		core("issue_id", Integer),
		core("date", DateTime),
		core("page", Integer),
		core("source", Text),
	}, systemColumns()...),
}

// Ratings holds the 0-10 rating left in a closing comment.
var Ratings = Table{
	Name:        "ratings",
	ConflictKey: "issue_id",
	Columns: append([]Column{
		{Name: "issue_id", Type: Integer, Constraints: "PRIMARY KEY", Role: RoleKey},
		{Name: "rating", Type: Real, Constraints: "NOT NULL CHECK(rating >= 0 AND rating <= 10)", Role: RoleCore},
	}, systemColumns()...),
}

// Reviews holds the free-text review left in a closing comment.
var Reviews = Table{
	Name:        "reviews",
	ConflictKey: "issue_id",
	Columns: append([]Column{
		{Name: "issue_id", Type: Integer, Constraints: "PRIMARY KEY", Role: RoleKey},
		{Name: "review", Type: Text, Constraints: "NOT NULL", Role: RoleCore},
	}, systemColumns()...),
}

// Registry returns every table, in creation order.
func Registry() []Table {
	return []Table{Books, ReadingEvents, Ratings, Reviews}
}
