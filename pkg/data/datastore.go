package data

import (
	"context"
	"io"
)

// Query selects the physical columns and the row window to read
type Query struct {
	Columns []*Column
	// FirstRow is the 1-based number of the first row to read. Zero means 1.
	FirstRow int64
	// MaxRows bounds the number of rows read. Zero means unbounded.
	MaxRows int64
}

// Window returns the 0-based offset and the row limit of the query
func (q Query) Window() (offset, limit int64) {
	if q.FirstRow > 1 {
		offset = q.FirstRow - 1
	}
	return offset, q.MaxRows
}

// Datastore is a source of rows. Implementations must allow concurrent Open calls.
type Datastore interface {
	Name() string
	Open(ctx context.Context, query Query) (Cursor, error)
}

// Cursor iterates the records of a query. Next returns io.EOF after the last record.
// Values are aligned with the query columns.
type Cursor interface {
	Next(ctx context.Context) ([]interface{}, error)
	Close() error
}

// RowCounter is implemented by datastores that can count their rows.
// Partitioned execution requires it.
type RowCounter interface {
	CountRows(ctx context.Context) (int64, error)
}

// ReadAll drains a cursor. Intended for tests and small datastores.
func ReadAll(ctx context.Context, c Cursor) ([][]interface{}, error) {
	defer c.Close()
	var rows [][]interface{}
	for {
		values, err := c.Next(ctx)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, values)
	}
}

type sliceDatastore struct {
	Datastore
	firstRow int64
	maxRows  int64
}

// Slice returns a view of ds restricted to maxRows rows starting at the
// 1-based firstRow. Queries against the view are intersected with the window.
func Slice(ds Datastore, firstRow, maxRows int64) Datastore {
	if firstRow < 1 {
		firstRow = 1
	}
	return &sliceDatastore{Datastore: ds, firstRow: firstRow, maxRows: maxRows}
}

func (s *sliceDatastore) Open(ctx context.Context, q Query) (Cursor, error) {
	offset, limit := q.Window()
	inner := q
	inner.FirstRow = s.firstRow + offset
	inner.MaxRows = s.maxRows
	if s.maxRows > 0 {
		inner.MaxRows = s.maxRows - offset
		if inner.MaxRows <= 0 {
			return emptyCursor{}, nil
		}
	}
	if limit > 0 && (inner.MaxRows == 0 || limit < inner.MaxRows) {
		inner.MaxRows = limit
	}
	return s.Datastore.Open(ctx, inner)
}

func (s *sliceDatastore) CountRows(ctx context.Context) (int64, error) {
	counter, ok := s.Datastore.(RowCounter)
	if !ok {
		return s.maxRows, nil
	}
	total, err := counter.CountRows(ctx)
	if err != nil {
		return 0, err
	}
	remaining := total - (s.firstRow - 1)
	if remaining < 0 {
		remaining = 0
	}
	if s.maxRows > 0 && remaining > s.maxRows {
		remaining = s.maxRows
	}
	return remaining, nil
}

// FirstRowOffset reports the 0-based offset of the view's first row in the
// underlying datastore. Row IDs read through the view keep their global numbering.
func (s *sliceDatastore) FirstRowOffset() int64 {
	return s.firstRow - 1
}

// RowOffsetter is implemented by datastore views whose rows start past row 1
type RowOffsetter interface {
	FirstRowOffset() int64
}

type emptyCursor struct{}

func (emptyCursor) Next(context.Context) ([]interface{}, error) { return nil, io.EOF }
func (emptyCursor) Close() error                                { return nil }
