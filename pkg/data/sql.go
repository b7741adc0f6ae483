package data

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// Dialect captures the SQL differences the datastore cares about
type Dialect struct {
	Quote string
	// LimitAll is the LIMIT clause used when only an offset is requested
	LimitAll string
}

var (
	DialectSQLite   = Dialect{Quote: `"`, LimitAll: "LIMIT -1"}
	DialectPostgres = Dialect{Quote: `"`, LimitAll: "LIMIT ALL"}
)

// SQLDatastore reads rows of one table through database/sql. The driver
// must be registered by the caller (sqlite3, postgres).
type SQLDatastore struct {
	name    string
	db      *sql.DB
	table   string
	dialect Dialect
}

// NewSQLDatastore creates a datastore over table
func NewSQLDatastore(name string, db *sql.DB, table string, dialect Dialect) *SQLDatastore {
	if dialect.Quote == "" {
		dialect = DialectSQLite
	}
	return &SQLDatastore{name: name, db: db, table: table, dialect: dialect}
}

func (s *SQLDatastore) Name() string { return s.name }

func (s *SQLDatastore) ident(name string) string {
	q := s.dialect.Quote
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func (s *SQLDatastore) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.ident(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", s.table, err)
	}
	return n, nil
}

// SelectStatement renders the query for q
func (s *SQLDatastore) SelectStatement(q Query) (string, error) {
	if len(q.Columns) == 0 {
		return "", fmt.Errorf("query selects no columns")
	}
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		if !c.IsPhysical() {
			return "", fmt.Errorf("column %q is not a physical column", c.Name())
		}
		cols[i] = s.ident(c.Name())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), s.ident(s.table))
	offset, limit := q.Window()
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	} else if offset > 0 {
		b.WriteString(" " + s.dialect.LimitAll)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String(), nil
}

func (s *SQLDatastore) Open(ctx context.Context, q Query) (Cursor, error) {
	stmt, err := s.SelectStatement(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	return &sqlCursor{rows: rows, width: len(q.Columns)}, nil
}

type sqlCursor struct {
	rows  *sql.Rows
	width int
}

func (c *sqlCursor) Next(ctx context.Context) ([]interface{}, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	values := make([]interface{}, c.width)
	ptrs := make([]interface{}, c.width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}
