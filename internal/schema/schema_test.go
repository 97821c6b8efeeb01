package schema

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func TestRegistry_WellFormed(t *testing.T) {
	for _, table := range Registry() {
		t.Run(table.Name, func(t *testing.T) {
			require.Regexp(t, identifier, table.Name)

			key, ok := table.Column(table.ConflictKey)
			require.True(t, ok, "conflict key %q must be a column", table.ConflictKey)
			assert.Equal(t, RoleKey, key.Role)
			assert.Len(t, table.ByRole(RoleKey), 1)

			seen := map[string]bool{}
			for _, c := range table.Columns {
				assert.Regexp(t, identifier, c.Name)
				assert.False(t, seen[c.Name], "duplicate column %q", c.Name)
				seen[c.Name] = true
				assert.Contains(t, []Type{Text, Integer, Real, DateTime}, c.Type)
			}

			assert.True(t, table.Has("created_on"))
			assert.True(t, table.Has("updated_on"))
		})
	}
}

func TestBooks_MergePolicy(t *testing.T) {
	for _, c := range Books.Columns {
		switch c.Role {
		case RoleMetadata:
			assert.Equal(t, MergeCoalesce, c.Merge, c.Name)
		default:
			assert.Equal(t, MergeOverwrite, c.Merge, c.Name)
		}
	}
	for _, c := range ReadingEvents.Columns {
		assert.Equal(t, MergeOverwrite, c.Merge, c.Name)
	}
}

func TestBooks_MetadataColumns(t *testing.T) {
	cols := Books.ByRole(RoleMetadata)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	assert.Equal(t, []string{
		"publisher", "year_published", "year_edition", "isbn",
		"width", "length", "height", "total_pages", "word_count",
		"library", "translator", "collection", "language", "genre",
	}, names)

	width, _ := Books.Column("width")
	assert.Equal(t, Real, width.Type)
	pages, _ := Books.Column("total_pages")
	assert.Equal(t, Integer, pages.Type)
}

func TestTable_Column(t *testing.T) {
	_, ok := ReadingEvents.Column("nope")
	assert.False(t, ok)

	c, ok := ReadingEvents.Column("page")
	require.True(t, ok)
	assert.Equal(t, Integer, c.Type)
	assert.Equal(t, []string{"source_id", "issue_id", "date", "page", "source", "created_on", "updated_on"}, ReadingEvents.Names())
}
