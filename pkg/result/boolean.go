package result

import (
	"fmt"
	"sort"
	"strings"
)

// Boolean analyzer crosstab layout
const (
	DimensionColumn  = "Column"
	DimensionMeasure = "Measure"

	MeasureRowCount   = "Row count"
	MeasureNullCount  = "Null count"
	MeasureTrueCount  = "True count"
	MeasureFalseCount = "False count"

	MeasureFrequency     = "Frequency"
	MeasureMostFrequent  = "Most frequent"
	MeasureLeastFrequent = "Least frequent"
)

// ValueCombination counts how often a tuple of boolean values occurred.
// Values hold "true", "false" or "null" per analyzed column.
type ValueCombination struct {
	Values []string `json:"values"`
	Count  float64  `json:"count"`
}

// Key identifies the combination
func (v ValueCombination) Key() string {
	return strings.Join(v.Values, ",")
}

// BooleanResult holds per column statistics and, for more than one column,
// the frequency of value combinations.
type BooleanResult struct {
	ColumnStatistics  *Crosstab          `json:"columnStatistics"`
	ValueCombinations []ValueCombination `json:"valueCombinations,omitempty"`
	Columns           []string           `json:"columns"`
}

const KindBoolean = "boolean"

func (r *BooleanResult) Kind() string { return KindBoolean }

// Statistic returns one measure of one column
func (r *BooleanResult) Statistic(column, measure string) float64 {
	v, _ := r.ColumnStatistics.Where(DimensionColumn, column).Where(DimensionMeasure, measure).Get()
	return v
}

// SortCombinations orders combinations by descending count, then by key
func SortCombinations(combos []ValueCombination) {
	sort.SliceStable(combos, func(i, j int) bool {
		if combos[i].Count != combos[j].Count {
			return combos[i].Count > combos[j].Count
		}
		return combos[i].Key() < combos[j].Key()
	})
}

// ValueCombinationCrosstab renders the combinations as a crosstab with one
// row per combination ("Most frequent", "Combination 1", ..., "Least frequent")
// and one column per analyzed column plus the frequency.
func (r *BooleanResult) ValueCombinationCrosstab() *Crosstab {
	if len(r.ValueCombinations) == 0 {
		return nil
	}
	tab := NewCrosstab(DimensionColumn, DimensionMeasure)
	last := len(r.ValueCombinations) - 1
	for i, combo := range r.ValueCombinations {
		label := fmt.Sprintf("Combination %d", i)
		switch {
		case i == 0:
			label = MeasureMostFrequent
		case i == last:
			label = MeasureLeastFrequent
		}
		for c, column := range r.Columns {
			var v float64
			if c < len(combo.Values) && combo.Values[c] == "true" {
				v = 1
			}
			_ = tab.Where(DimensionColumn, column).Where(DimensionMeasure, label).Put(v)
		}
		_ = tab.Where(DimensionColumn, MeasureFrequency).Where(DimensionMeasure, label).Put(combo.Count)
	}
	return tab
}

// BooleanReducer reduces BooleanResult partials
type BooleanReducer struct{}

func (BooleanReducer) Reduce(partials []AnalyzerResult) (AnalyzerResult, error) {
	if len(partials) == 0 {
		return nil, nil
	}
	typed, err := castAll[*BooleanResult](KindBoolean, partials)
	if err != nil {
		return nil, err
	}

	tabs := make([]*Crosstab, len(typed))
	for i, r := range typed {
		tabs[i] = r.ColumnStatistics
	}
	stats, err := MergeCrosstabs(tabs)
	if err != nil {
		return nil, err
	}

	columns := append([]string(nil), typed[0].Columns...)
	counts := make(map[string]*ValueCombination)
	for _, r := range typed {
		if strings.Join(r.Columns, ",") != strings.Join(columns, ",") {
			return nil, incompatible(KindBoolean, r)
		}
		for _, combo := range r.ValueCombinations {
			key := combo.Key()
			if existing, ok := counts[key]; ok {
				existing.Count += combo.Count
				continue
			}
			counts[key] = &ValueCombination{Values: append([]string(nil), combo.Values...), Count: combo.Count}
		}
	}

	var combos []ValueCombination
	for _, c := range counts {
		combos = append(combos, *c)
	}
	SortCombinations(combos)
	return &BooleanResult{ColumnStatistics: stats, ValueCombinations: combos, Columns: columns}, nil
}
