package data

import (
	"fmt"
	"sync"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// InputRow maps columns to values for one logical row
type InputRow interface {
	// ID is the row number within the datastore, starting at 1
	ID() int64
	Value(col *Column) interface{}
	Values(cols ...*Column) []interface{}
	// Columns lists the columns that carry a value in this row
	Columns() []*Column
}

// Header is the shared column layout of the source rows of a cursor
type Header struct {
	columns []*Column
	index   map[*Column]int
}

// NewHeader builds a header for the given physical columns
func NewHeader(columns []*Column) *Header {
	h := &Header{columns: append([]*Column(nil), columns...), index: make(map[*Column]int, len(columns))}
	for i, c := range columns {
		h.index[c] = i
	}
	return h
}

// Columns returns the header columns
func (h *Header) Columns() []*Column {
	return append([]*Column(nil), h.columns...)
}

// SourceRow holds the physical values of one datastore record
type SourceRow struct {
	id     int64
	header *Header
	values []interface{}
}

// NewSourceRow creates a physical row. values must be aligned with the header columns.
func NewSourceRow(id int64, header *Header, values []interface{}) *SourceRow {
	return &SourceRow{id: id, header: header, values: values}
}

func (r *SourceRow) ID() int64 { return r.id }

func (r *SourceRow) Value(col *Column) interface{} {
	if i, ok := r.header.index[col]; ok && i < len(r.values) {
		return r.values[i]
	}
	return nil
}

func (r *SourceRow) Values(cols ...*Column) []interface{} {
	return valuesOf(r, cols)
}

func (r *SourceRow) Columns() []*Column {
	return r.header.Columns()
}

// RawValues returns the physical values in header order
func (r *SourceRow) RawValues() []interface{} {
	return r.values
}

func (r *SourceRow) String() string {
	return fmt.Sprintf("SourceRow[id=%d,values=%v]", r.id, r.values)
}

// TransformedRow decorates a parent row with values of virtual columns.
// Virtual columns are invisible until added; physical values always come
// from the parent.
type TransformedRow struct {
	parent InputRow
	added  []*Column
	values map[*Column]interface{}
}

// NewTransformedRow wraps parent. Wrapping a TransformedRow keeps a single
// layer so lookups stay flat.
func NewTransformedRow(parent InputRow) *TransformedRow {
	if tr, ok := parent.(*TransformedRow); ok {
		clone := &TransformedRow{
			parent: tr.parent,
			added:  append([]*Column(nil), tr.added...),
			values: make(map[*Column]interface{}, len(tr.values)+2),
		}
		for k, v := range tr.values {
			clone.values[k] = v
		}
		return clone
	}
	return &TransformedRow{parent: parent, values: make(map[*Column]interface{}, 2)}
}

// Add stores the value of a virtual column. Physical columns are rejected.
func (r *TransformedRow) Add(col *Column, value interface{}) error {
	if col == nil {
		return dcerrors.Configuration("cannot add a value for a nil column")
	}
	if col.IsPhysical() {
		return dcerrors.Configuration("cannot add value for physical column %q to a transformed row", col.Name())
	}
	if _, exists := r.values[col]; !exists {
		r.added = append(r.added, col)
	}
	r.values[col] = value
	return nil
}

func (r *TransformedRow) ID() int64 { return r.parent.ID() }

func (r *TransformedRow) Value(col *Column) interface{} {
	if col == nil {
		return nil
	}
	if !col.IsPhysical() {
		if v, ok := r.values[col]; ok {
			return v
		}
		return nil
	}
	return r.parent.Value(col)
}

func (r *TransformedRow) Values(cols ...*Column) []interface{} {
	return valuesOf(r, cols)
}

func (r *TransformedRow) Columns() []*Column {
	return append(r.parent.Columns(), r.added...)
}

// Parent returns the wrapped row
func (r *TransformedRow) Parent() InputRow { return r.parent }

func (r *TransformedRow) String() string {
	return fmt.Sprintf("TransformedRow[parent=%v,added=%d]", r.parent, len(r.added))
}

// MapRow is a free-standing row, used when a component evaluates a
// synthetic row of its own.
type MapRow struct {
	id      int64
	mu      sync.RWMutex
	columns []*Column
	values  map[*Column]interface{}
}

// NewMapRow creates an empty map row
func NewMapRow(id int64) *MapRow {
	return &MapRow{id: id, values: make(map[*Column]interface{})}
}

// Put sets the value of col and returns the row for chaining
func (r *MapRow) Put(col *Column, value interface{}) *MapRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[col]; !ok {
		r.columns = append(r.columns, col)
	}
	r.values[col] = value
	return r
}

func (r *MapRow) ID() int64 { return r.id }

func (r *MapRow) Value(col *Column) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[col]
}

func (r *MapRow) Values(cols ...*Column) []interface{} {
	return valuesOf(r, cols)
}

func (r *MapRow) Columns() []*Column {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Column(nil), r.columns...)
}

func valuesOf(row InputRow, cols []*Column) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = row.Value(c)
	}
	return out
}
