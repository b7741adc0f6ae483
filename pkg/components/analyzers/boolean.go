package analyzers

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

const (
	valueTrue  = "true"
	valueFalse = "false"
	valueNull  = "null"
)

// booleanCounter accumulates the statistics of a boolean analysis over
// named columns
type booleanCounter struct {
	columns []string
	stats   *result.Crosstab
	combos  map[string]*result.ValueCombination
}

func newBooleanCounter(columns []string) *booleanCounter {
	c := &booleanCounter{
		columns: columns,
		stats:   result.NewCrosstab(result.DimensionColumn, result.DimensionMeasure),
		combos:  make(map[string]*result.ValueCombination),
	}
	for _, col := range columns {
		for _, m := range []string{result.MeasureRowCount, result.MeasureNullCount, result.MeasureTrueCount, result.MeasureFalseCount} {
			_ = c.stats.Where(result.DimensionColumn, col).Where(result.DimensionMeasure, m).Put(0)
		}
	}
	return c
}

// add counts one row. values are "true", "false" or "null" per column.
func (c *booleanCounter) add(values []string, distinctCount int) {
	n := float64(distinctCount)
	for i, col := range c.columns {
		cell := c.stats.Where(result.DimensionColumn, col)
		_ = cell.Where(result.DimensionMeasure, result.MeasureRowCount).Add(n)
		switch values[i] {
		case valueTrue:
			_ = cell.Where(result.DimensionMeasure, result.MeasureTrueCount).Add(n)
		case valueFalse:
			_ = cell.Where(result.DimensionMeasure, result.MeasureFalseCount).Add(n)
		default:
			_ = cell.Where(result.DimensionMeasure, result.MeasureNullCount).Add(n)
		}
	}

	// combinations only say something beyond the column statistics for several columns
	if len(c.columns) < 2 {
		return
	}
	key := strings.Join(values, ",")
	if combo, ok := c.combos[key]; ok {
		combo.Count += n
		return
	}
	c.combos[key] = &result.ValueCombination{Values: append([]string(nil), values...), Count: n}
}

func (c *booleanCounter) result() *result.BooleanResult {
	var combos []result.ValueCombination
	for _, combo := range c.combos {
		combos = append(combos, *combo)
	}
	result.SortCombinations(combos)
	return &result.BooleanResult{
		ColumnStatistics:  c.stats.Clone(),
		ValueCombinations: combos,
		Columns:           append([]string(nil), c.columns...),
	}
}

func booleanValue(v interface{}) string {
	if v == nil {
		return valueNull
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return valueNull
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return valueNull
	}
	if b {
		return valueTrue
	}
	return valueFalse
}

// BooleanAnalyzer counts true, false and null values per column and the
// combinations of values across columns
type BooleanAnalyzer struct {
	inputs  []*data.Column
	counter *booleanCounter
}

func BooleanDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Boolean analyzer",
		Kind:        component.KindAnalyzer,
		Description: "Inspects boolean values and their combinations.",
		MinInputs:   1,
		Reducer:     booleanReducer,
		Create: func(cfg component.Config) (component.Component, error) {
			return &BooleanAnalyzer{
				inputs:  cfg.Inputs,
				counter: newBooleanCounter(data.ColumnNames(cfg.Inputs)),
			}, nil
		},
	}
}

func (a *BooleanAnalyzer) Run(row data.InputRow, distinctCount int) error {
	values := make([]string, len(a.inputs))
	for i, col := range a.inputs {
		values[i] = booleanValue(row.Value(col))
	}
	a.counter.add(values, distinctCount)
	return nil
}

func (a *BooleanAnalyzer) Result() (result.AnalyzerResult, error) {
	return a.counter.result(), nil
}
