// Package data holds the row-level model of the engine: columns, rows and
// the datastores rows are read from.
package data

import (
	"fmt"

	"github.com/google/uuid"
)

// DataType is the declared value type of a column
type DataType string

const (
	TypeString  DataType = "STRING"
	TypeNumber  DataType = "NUMBER"
	TypeBoolean DataType = "BOOLEAN"
	TypeDate    DataType = "DATE"
	TypeAny     DataType = "ANY"
)

// ColumnKind distinguishes physical datastore columns from virtual ones
type ColumnKind int

const (
	// Physical columns delegate to the datastore cursor
	Physical ColumnKind = iota
	// Transformed columns are produced by transformers and stored row-locally
	Transformed
)

func (k ColumnKind) String() string {
	if k == Physical {
		return "physical"
	}
	return "transformed"
}

// Column identifies a value slot of a row. Columns are compared by pointer
// identity; two columns with the same name are still different columns.
type Column struct {
	id       string
	name     string
	dataType DataType
	kind     ColumnKind
}

// NewPhysicalColumn creates a column backed by the datastore field of the same name
func NewPhysicalColumn(name string, dataType DataType) *Column {
	return &Column{id: name, name: name, dataType: normalizeType(dataType), kind: Physical}
}

// NewTransformedColumn creates a virtual column with a generated identity
func NewTransformedColumn(name string, dataType DataType) *Column {
	return &Column{id: uuid.NewString(), name: name, dataType: normalizeType(dataType), kind: Transformed}
}

func normalizeType(t DataType) DataType {
	if t == "" {
		return TypeAny
	}
	return t
}

// ID returns the column identity. Physical columns use their name.
func (c *Column) ID() string { return c.id }

// Name returns the display name
func (c *Column) Name() string { return c.name }

// DataType returns the declared value type
func (c *Column) DataType() DataType { return c.dataType }

// Kind returns whether the column is physical or transformed
func (c *Column) Kind() ColumnKind { return c.kind }

// IsPhysical reports whether the column is read from the datastore
func (c *Column) IsPhysical() bool { return c.kind == Physical }

func (c *Column) String() string {
	return fmt.Sprintf("%s column[%s]", c.kind, c.name)
}

// ColumnNames returns the names of cols in order
func ColumnNames(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}
