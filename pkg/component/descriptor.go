package component

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Concurrency declares whether instances may receive rows from several
// workers at once
type Concurrency int

const (
	// ConcurrencyDefault makes transformers and filters concurrent and analyzers serial
	ConcurrencyDefault Concurrency = iota
	ConcurrencySafe
	ConcurrencyUnsafe
)

// Config is handed to a descriptor's constructor
type Config struct {
	// Name of the component job
	Name          string
	Inputs        []*data.Column
	Properties    Properties
	ReferenceData *refdata.Catalog
	Logger        *zap.Logger
}

// Creator builds a component instance
type Creator func(cfg Config) (Component, error)

// Descriptor is the metadata of a component type
type Descriptor struct {
	Name        string
	Aliases     []string
	Kind        Kind
	Description string
	// Categories are the outcomes of a filter, in declaration order
	Categories []string
	Properties []PropertySpec
	// MinInputs and MaxInputs bound the input column count. MaxInputs 0 means unbounded.
	MinInputs   int
	MaxInputs   int
	Concurrency Concurrency
	// NotDistributable marks components that need to see every row, e.g. a max rows filter
	NotDistributable bool
	// RowIDSensitive marks components whose outcome depends on row identity.
	// Runs containing one never compact duplicate rows.
	RowIDSensitive bool
	// Reducer merges partial results of an analyzer. Nil means the analyzer cannot run partitioned.
	Reducer func() result.Reducer
	Create  Creator
}

// Validate checks the descriptor itself
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor has no name")
	}
	if d.Create == nil {
		return fmt.Errorf("descriptor %s has no constructor", d.Name)
	}
	switch d.Kind {
	case KindTransformer, KindAnalyzer:
	case KindFilter:
		if len(d.Categories) == 0 {
			return fmt.Errorf("filter %s declares no categories", d.Name)
		}
	default:
		return fmt.Errorf("descriptor %s has unknown kind %q", d.Name, d.Kind)
	}
	if d.MaxInputs > 0 && d.MaxInputs < d.MinInputs {
		return fmt.Errorf("descriptor %s: max inputs %d below min inputs %d", d.Name, d.MaxInputs, d.MinInputs)
	}
	return nil
}

// HasCategory reports whether category is an outcome of the filter
func (d *Descriptor) HasCategory(category string) bool {
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Concurrent resolves the concurrency default for the descriptor kind
func (d *Descriptor) Concurrent() bool {
	switch d.Concurrency {
	case ConcurrencySafe:
		return true
	case ConcurrencyUnsafe:
		return false
	}
	return d.Kind != KindAnalyzer
}

// Distributable reports whether the component can run on row partitions
func (d *Descriptor) Distributable() bool {
	if d.NotDistributable {
		return false
	}
	return d.Kind != KindAnalyzer || d.Reducer != nil
}

// CheckInputs validates the input column count
func (d *Descriptor) CheckInputs(n int) error {
	if n < d.MinInputs {
		return dcerrors.Configuration("%s requires at least %d input column(s), got %d", d.Name, d.MinInputs, n)
	}
	if d.MaxInputs > 0 && n > d.MaxInputs {
		return dcerrors.Configuration("%s accepts at most %d input column(s), got %d", d.Name, d.MaxInputs, n)
	}
	return nil
}

// NewInstance creates a component and checks that it implements the
// capability of the descriptor kind
func (d *Descriptor) NewInstance(cfg Config) (Component, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, err := d.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", d.Name, err)
	}
	var ok bool
	switch d.Kind {
	case KindTransformer:
		_, ok = c.(Transformer)
	case KindFilter:
		_, ok = c.(Filter)
	case KindAnalyzer:
		_, ok = c.(Analyzer)
	}
	if !ok {
		return nil, fmt.Errorf("component %s (%T) does not implement the %s capability", d.Name, c, d.Kind)
	}
	return c, nil
}

// IsConcurrent resolves the concurrency of an instance
func IsConcurrent(d *Descriptor, c Component) bool {
	if aware, ok := c.(ConcurrencyAware); ok {
		return aware.Concurrent()
	}
	return d.Concurrent()
}
