package filters

import (
	"fmt"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names of the max rows filter
const (
	PropertyFirstRow = "first row"
	PropertyMaxRows  = "max rows"
)

// MaxRowsFilter accepts a window of rows selected by their row number.
// The window is defined over the whole datastore, so the filter cannot run
// on partitions.
type MaxRowsFilter struct {
	firstRow int64
	maxRows  int64
}

func MaxRowsDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:             "Max rows",
		Aliases:          []string{"Row range"},
		Kind:             component.KindFilter,
		Description:      "Sets a maximum number of rows to process.",
		Categories:       []string{Valid, Invalid},
		MinInputs:        0,
		NotDistributable: true,
		RowIDSensitive:   true,
		Properties: []component.PropertySpec{
			{Name: PropertyFirstRow, Type: component.PropertyInt, Default: 1, Description: "Row number of the first accepted row"},
			{Name: PropertyMaxRows, Type: component.PropertyInt, Default: 1000, Description: "Number of rows to accept"},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			return &MaxRowsFilter{
				firstRow: cfg.Properties.Int64(PropertyFirstRow),
				maxRows:  cfg.Properties.Int64(PropertyMaxRows),
			}, nil
		},
	}
}

func (f *MaxRowsFilter) Validate() error {
	if f.firstRow < 1 {
		return fmt.Errorf("%s must be positive, got %d", PropertyFirstRow, f.firstRow)
	}
	if f.maxRows < 1 {
		return fmt.Errorf("%s must be positive, got %d", PropertyMaxRows, f.maxRows)
	}
	return nil
}

func (f *MaxRowsFilter) Categorize(row data.InputRow) (string, error) {
	id := row.ID()
	if id < f.firstRow || id >= f.firstRow+f.maxRows {
		return Invalid, nil
	}
	return Valid, nil
}

// Window returns the accepted row range as first row and row count
func (f *MaxRowsFilter) Window() (firstRow, maxRows int64) {
	return f.firstRow, f.maxRows
}
