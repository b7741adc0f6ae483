// Package component defines the capability contract of job components
// (transformers, filters and analyzers), their descriptors, configuration
// property bags and the registry that maps component names to descriptors.
package component

import (
	"context"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Kind is the capability family of a component
type Kind string

const (
	KindTransformer Kind = "transformer"
	KindFilter      Kind = "filter"
	KindAnalyzer    Kind = "analyzer"
)

// Component is an instance created from a descriptor. It implements the
// capability interface matching its descriptor kind.
type Component interface{}

// OutputColumn declares a column produced by a transformer
type OutputColumn struct {
	Name     string
	DataType data.DataType
}

// Transformer derives new column values from a row. Transform returns one
// value per declared output column.
type Transformer interface {
	OutputColumns() []OutputColumn
	Transform(row data.InputRow) ([]interface{}, error)
}

// Filter assigns every row to exactly one of the descriptor categories
type Filter interface {
	Categorize(row data.InputRow) (string, error)
}

// Analyzer accumulates rows into a result. distinctCount is the number of
// times the logical row occurred.
type Analyzer interface {
	Run(row data.InputRow, distinctCount int) error
	Result() (result.AnalyzerResult, error)
}

// Validator is implemented by components that check their own
// configuration. Validate runs before initialization and before any row.
type Validator interface {
	Validate() error
}

// Initializer is implemented by components that acquire resources before
// the row loop. Initialize may block.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Closer is implemented by components that release resources after a run
type Closer interface {
	Close() error
}

// ConcurrencyAware lets an instance override the concurrency default of
// its descriptor, e.g. a scripting transformer with a concurrent toggle.
type ConcurrencyAware interface {
	Concurrent() bool
}
