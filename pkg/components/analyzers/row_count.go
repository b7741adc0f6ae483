package analyzers

import (
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// RowCountAnalyzer counts the rows it receives
type RowCountAnalyzer struct {
	count int64
}

func RowCountDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Row count",
		Aliases:     []string{"Count"},
		Kind:        component.KindAnalyzer,
		Description: "Counts the number of rows.",
		Reducer:     sumReducer,
		Create: func(cfg component.Config) (component.Component, error) {
			return &RowCountAnalyzer{}, nil
		},
	}
}

func (a *RowCountAnalyzer) Run(_ data.InputRow, distinctCount int) error {
	a.count += int64(distinctCount)
	return nil
}

func (a *RowCountAnalyzer) Result() (result.AnalyzerResult, error) {
	return &result.NumberResult{Value: float64(a.count)}, nil
}
