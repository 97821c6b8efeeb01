package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type columnInfo struct {
	name string
	typ  string
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]columnInfo, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid     int
			c       columnInfo
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.name, &c.typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// rebuild recreates table from createSQL, which must create a table named
// table+"_new". Columns present in both shapes are copied, through
// transform[column] when set (an SQL expression over the old row). Columns
// only the old table has are appended to the new one and copied as-is, so
// columns added outside the migrations survive.
func rebuild(ctx context.Context, tx *sql.Tx, table, createSQL string, transform map[string]string) error {
	oldCols, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if len(oldCols) == 0 {
		return fmt.Errorf("rebuild %s: table does not exist", table)
	}

	tmp := table + "_new"
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	newCols, err := tableColumns(ctx, tx, tmp)
	if err != nil {
		return err
	}
	inNew := make(map[string]bool, len(newCols))
	for _, c := range newCols {
		inNew[c.name] = true
	}

	var names, exprs []string
	for _, c := range oldCols {
		if !inNew[c.name] {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", tmp, c.name, c.typ)); err != nil {
				return fmt.Errorf("carry column %s.%s: %w", table, c.name, err)
			}
		}
		names = append(names, c.name)
		if expr, ok := transform[c.name]; ok {
			exprs = append(exprs, expr)
		} else {
			exprs = append(exprs, c.name)
		}
	}

	copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		tmp, strings.Join(names, ", "), strings.Join(exprs, ", "), table)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+table); err != nil {
		return fmt.Errorf("drop old %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, table)); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// fullDateTime widens a YYYY-MM-DD value to YYYY-MM-DD 00:00:00.
func fullDateTime(column string) string {
	return fmt.Sprintf("CASE WHEN length(%s) = 10 THEN %s || ' 00:00:00' ELSE %s END", column, column, column)
}
