package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pagetrail/pagetrail/internal/domain"
	domainerrors "github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/schema"
	"github.com/pagetrail/pagetrail/internal/sqlgen"
)

var bookUpsert = sqlgen.Upsert(schema.Books)

// bookCoreColumns must match the scan order in scanBook before the
// metadata columns.
const bookCoreColumns = `issue_id, title, author, issue_number, status, date_began, date_ended`

func bookSelectColumns() string {
	cols := []string{bookCoreColumns}
	for _, c := range schema.Books.ByRole(schema.RoleMetadata) {
		cols = append(cols, c.Name)
	}
	cols = append(cols, "created_on", "updated_on")
	return strings.Join(cols, ", ")
}

// UpsertBook inserts or updates a book. Metadata fields left nil keep the
// stored value; every other column is overwritten.
func (t *Tx) UpsertBook(ctx context.Context, b *domain.Book) error {
	if !b.Status.Valid() {
		return domainerrors.Validation(fmt.Sprintf("book %d has unknown status %q", b.IssueID, b.Status))
	}
	values := b.Metadata.Values()
	values["issue_id"] = b.IssueID
	values["title"] = b.Title
	values["author"] = nullableString(b.Author)
	values["issue_number"] = b.IssueNumber
	values["status"] = string(b.Status)
	values["date_began"] = nullTimeString(b.DateBegan)
	values["date_ended"] = nullTimeString(b.DateEnded)

	if _, err := t.tx.ExecContext(ctx, bookUpsert.SQL, bookUpsert.Args(values)...); err != nil {
		return fmt.Errorf("upsert book %d: %w", b.IssueID, err)
	}
	return nil
}

// GetBook returns a book by issue id.
func (s *Store) GetBook(ctx context.Context, issueID int64) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookSelectColumns()+" FROM books WHERE issue_id = ?", issueID)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", issueID, err)
	}
	return b, nil
}

// ListBooks returns every book ordered by issue id.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+bookSelectColumns()+" FROM books ORDER BY issue_id")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// scanBook scans a sql.Row (or sql.Rows) selected with bookSelectColumns.
func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var (
		b         domain.Book
		author    sql.NullString
		number    sql.NullInt64
		status    sql.NullString
		began     sql.NullString
		ended     sql.NullString
		createdOn sql.NullString
		updatedOn sql.NullString
	)

	metaCols := schema.Books.ByRole(schema.RoleMetadata)
	metaDest := make([]any, len(metaCols))
	for i, c := range metaCols {
		switch c.Type {
		case schema.Real:
			metaDest[i] = new(sql.NullFloat64)
		case schema.Integer:
			metaDest[i] = new(sql.NullInt64)
		default:
			metaDest[i] = new(sql.NullString)
		}
	}

	dest := []any{&b.IssueID, &b.Title, &author, &number, &status, &began, &ended}
	dest = append(dest, metaDest...)
	dest = append(dest, &createdOn, &updatedOn)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	if author.Valid {
		b.Author = &author.String
	}
	b.IssueNumber = number.Int64
	b.Status = domain.Status(status.String)

	var err error
	if b.DateBegan, err = parseNullableTime(began); err != nil {
		return nil, fmt.Errorf("parse date_began: %w", err)
	}
	if b.DateEnded, err = parseNullableTime(ended); err != nil {
		return nil, fmt.Errorf("parse date_ended: %w", err)
	}
	if b.CreatedOn, err = parseNullableTime(createdOn); err != nil {
		return nil, fmt.Errorf("parse created_on: %w", err)
	}
	if b.UpdatedOn, err = parseNullableTime(updatedOn); err != nil {
		return nil, fmt.Errorf("parse updated_on: %w", err)
	}

	values := make(map[string]any, len(metaCols))
	for i, c := range metaCols {
		switch v := metaDest[i].(type) {
		case *sql.NullFloat64:
			if v.Valid {
				values[c.Name] = v.Float64
			}
		case *sql.NullInt64:
			if v.Valid {
				values[c.Name] = v.Int64
			}
		case *sql.NullString:
			if v.Valid {
				values[c.Name] = v.String
			}
		}
	}
	b.Metadata = domain.MetadataFromValues(values)

	return &b, nil
}
