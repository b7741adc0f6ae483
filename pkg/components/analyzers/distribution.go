package analyzers

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Crosstab dimensions of the distribution analyzers
const (
	DimensionColumn  = "Column"
	DimensionWeekday = "Weekday"
	DimensionValue   = "Value"
)

// Placeholder categories of the value distribution
const (
	NullValue  = "<null>"
	BlankValue = "<blank>"
)

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// WeekdayDistributionAnalyzer counts the dates of every input per weekday.
// Values that are neither dates nor date strings are skipped.
type WeekdayDistributionAnalyzer struct {
	inputs []*data.Column
	tab    *result.Crosstab
}

func WeekdayDistributionDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Weekday distribution",
		Kind:        component.KindAnalyzer,
		Description: "Shows the distribution of dates over the days of the week.",
		MinInputs:   1,
		Reducer:     crosstabReducer,
		Create: func(cfg component.Config) (component.Component, error) {
			a := &WeekdayDistributionAnalyzer{
				inputs: cfg.Inputs,
				tab:    result.NewCrosstab(DimensionColumn, DimensionWeekday),
			}
			for _, col := range cfg.Inputs {
				for _, d := range weekdays {
					_ = a.tab.Where(DimensionColumn, col.Name()).Where(DimensionWeekday, d.String()).Put(0)
				}
			}
			return a, nil
		},
	}
}

func (a *WeekdayDistributionAnalyzer) Run(row data.InputRow, distinctCount int) error {
	for _, col := range a.inputs {
		d, ok := toDate(row.Value(col))
		if !ok {
			continue
		}
		_ = a.tab.Where(DimensionColumn, col.Name()).Where(DimensionWeekday, d.Weekday().String()).Add(float64(distinctCount))
	}
	return nil
}

func (a *WeekdayDistributionAnalyzer) Result() (result.AnalyzerResult, error) {
	return &result.CrosstabResult{Crosstab: a.tab.Clone()}, nil
}

// toDate accepts dates and date strings
func toDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		if strings.TrimSpace(t) == "" {
			return time.Time{}, false
		}
		d, err := cast.ToTimeE(strings.TrimSpace(t))
		return d, err == nil
	}
	return time.Time{}, false
}

// ValueDistributionAnalyzer counts the occurrences of every distinct value
// per input
type ValueDistributionAnalyzer struct {
	inputs []*data.Column
	tab    *result.Crosstab
}

func ValueDistributionDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Value distribution",
		Kind:        component.KindAnalyzer,
		Description: "Counts the occurrences of distinct values.",
		MinInputs:   1,
		Reducer:     crosstabReducer,
		Create: func(cfg component.Config) (component.Component, error) {
			return &ValueDistributionAnalyzer{
				inputs: cfg.Inputs,
				tab:    result.NewCrosstab(DimensionColumn, DimensionValue),
			}, nil
		},
	}
}

func (a *ValueDistributionAnalyzer) Run(row data.InputRow, distinctCount int) error {
	for _, col := range a.inputs {
		_ = a.tab.Where(DimensionColumn, col.Name()).Where(DimensionValue, valueCategory(row.Value(col))).Add(float64(distinctCount))
	}
	return nil
}

func (a *ValueDistributionAnalyzer) Result() (result.AnalyzerResult, error) {
	return &result.CrosstabResult{Crosstab: a.tab.Clone()}, nil
}

func valueCategory(v interface{}) string {
	if v == nil {
		return NullValue
	}
	s := cast.ToString(v)
	if strings.TrimSpace(s) == "" {
		return BlankValue
	}
	return s
}
