package transformers

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names of the concatenator
const (
	PropertySeparator    = "separator"
	PropertyOutputColumn = "output column"
)

// ConcatenatorTransformer joins its inputs into a single value. Null
// inputs are skipped and a row of nulls yields null.
type ConcatenatorTransformer struct {
	inputs    []*data.Column
	separator string
	output    string
}

func ConcatenatorDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Concatenator",
		Kind:        component.KindTransformer,
		Description: "Concatenates several values into one.",
		MinInputs:   1,
		Properties: []component.PropertySpec{
			{Name: PropertySeparator, Type: component.PropertyString, Default: ""},
			{Name: PropertyOutputColumn, Type: component.PropertyString, Description: "Defaults to \"Concat of <inputs>\""},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			t := &ConcatenatorTransformer{
				inputs:    cfg.Inputs,
				separator: cfg.Properties.String(PropertySeparator),
				output:    cfg.Properties.String(PropertyOutputColumn),
			}
			if t.output == "" {
				t.output = "Concat of " + strings.Join(data.ColumnNames(cfg.Inputs), ",")
			}
			return t, nil
		},
	}
}

func (t *ConcatenatorTransformer) OutputColumns() []component.OutputColumn {
	return []component.OutputColumn{{Name: t.output, DataType: data.TypeString}}
}

func (t *ConcatenatorTransformer) Transform(row data.InputRow) ([]interface{}, error) {
	parts := make([]string, 0, len(t.inputs))
	for _, col := range t.inputs {
		if v := row.Value(col); v != nil {
			parts = append(parts, cast.ToString(v))
		}
	}
	if len(parts) == 0 {
		return []interface{}{nil}, nil
	}
	return []interface{}{strings.Join(parts, t.separator)}, nil
}
