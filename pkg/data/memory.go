package data

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryDatastore keeps its records in memory. It is safe for concurrent use.
type MemoryDatastore struct {
	name    string
	mu      sync.RWMutex
	fields  []string
	index   map[string]int
	records [][]interface{}
}

// NewMemoryDatastore creates a datastore with the given field names
func NewMemoryDatastore(name string, fields ...string) *MemoryDatastore {
	ds := &MemoryDatastore{name: name, fields: append([]string(nil), fields...), index: make(map[string]int, len(fields))}
	for i, f := range fields {
		ds.index[f] = i
	}
	return ds
}

// Add appends a record. values must be aligned with the field names.
func (m *MemoryDatastore) Add(values ...interface{}) *MemoryDatastore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, append([]interface{}(nil), values...))
	return m
}

func (m *MemoryDatastore) Name() string { return m.name }

// Fields returns the field names
func (m *MemoryDatastore) Fields() []string {
	return append([]string(nil), m.fields...)
}

func (m *MemoryDatastore) CountRows(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryDatastore) Open(ctx context.Context, q Query) (Cursor, error) {
	positions, err := resolveFields(m.index, m.name, q.Columns)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	snapshot := m.records
	m.mu.RUnlock()

	offset, limit := q.Window()
	end := int64(len(snapshot))
	if offset > end {
		offset = end
	}
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return &memoryCursor{records: snapshot[offset:end], positions: positions}, nil
}

type memoryCursor struct {
	records   [][]interface{}
	positions []int
	next      int
}

func (c *memoryCursor) Next(ctx context.Context) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.next >= len(c.records) {
		return nil, io.EOF
	}
	record := c.records[c.next]
	c.next++
	return project(record, c.positions), nil
}

func (c *memoryCursor) Close() error { return nil }

func resolveFields(index map[string]int, datastore string, cols []*Column) ([]int, error) {
	positions := make([]int, len(cols))
	for i, c := range cols {
		if !c.IsPhysical() {
			return nil, fmt.Errorf("column %q is not a physical column", c.Name())
		}
		p, ok := index[c.Name()]
		if !ok {
			return nil, fmt.Errorf("no field %q in datastore %q", c.Name(), datastore)
		}
		positions[i] = p
	}
	return positions, nil
}

func project(record []interface{}, positions []int) []interface{} {
	out := make([]interface{}, len(positions))
	for i, p := range positions {
		if p < len(record) {
			out[i] = record[p]
		}
	}
	return out
}
