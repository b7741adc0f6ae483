package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

func booleanPartial(rows, trues float64, combos ...ValueCombination) *BooleanResult {
	tab := NewCrosstab(DimensionColumn, DimensionMeasure)
	for _, col := range []string{"a", "b"} {
		_ = tab.Where(DimensionColumn, col).Where(DimensionMeasure, MeasureRowCount).Put(rows)
		_ = tab.Where(DimensionColumn, col).Where(DimensionMeasure, MeasureTrueCount).Put(trues)
	}
	return &BooleanResult{ColumnStatistics: tab, ValueCombinations: combos, Columns: []string{"a", "b"}}
}

func TestBooleanReducer(t *testing.T) {
	p1 := booleanPartial(3, 1,
		ValueCombination{Values: []string{"true", "false"}, Count: 1},
		ValueCombination{Values: []string{"false", "false"}, Count: 2})
	p2 := booleanPartial(2, 2,
		ValueCombination{Values: []string{"true", "false"}, Count: 2})

	out, err := BooleanReducer{}.Reduce([]AnalyzerResult{p1, p2})
	require.NoError(t, err)
	br := out.(*BooleanResult)

	assert.Equal(t, 5.0, br.Statistic("a", MeasureRowCount))
	assert.Equal(t, 3.0, br.Statistic("b", MeasureTrueCount))
	require.Len(t, br.ValueCombinations, 2)
	assert.Equal(t, []string{"true", "false"}, br.ValueCombinations[0].Values)
	assert.Equal(t, 3.0, br.ValueCombinations[0].Count)

	tab := br.ValueCombinationCrosstab()
	freq, _ := tab.Where(DimensionColumn, MeasureFrequency).Where(DimensionMeasure, MeasureMostFrequent).Get()
	assert.Equal(t, 3.0, freq)
	least, _ := tab.Where(DimensionColumn, MeasureFrequency).Where(DimensionMeasure, MeasureLeastFrequent).Get()
	assert.Equal(t, 2.0, least)

	// commutative
	rev, err := BooleanReducer{}.Reduce([]AnalyzerResult{p2, p1})
	require.NoError(t, err)
	assert.True(t, br.ColumnStatistics.Equal(rev.(*BooleanResult).ColumnStatistics))
	assert.Equal(t, br.ValueCombinations, rev.(*BooleanResult).ValueCombinations)

	// first partial not mutated
	assert.Equal(t, 1.0, p1.ValueCombinations[0].Count)
}

func TestAnnotatedRowsReducer(t *testing.T) {
	a := &AnnotatedRowsResult{Columns: []string{"name"}, HighlightedColumns: []string{"name"},
		Rows: []AnnotatedRow{{ID: 4, Values: []interface{}{nil}, Count: 1}}}
	b := &AnnotatedRowsResult{Columns: []string{"name"}, HighlightedColumns: []string{"name"},
		Rows: []AnnotatedRow{{ID: 1, Values: []interface{}{nil}, Count: 2}, {ID: 4, Values: []interface{}{nil}, Count: 1}}}

	out, err := AnnotatedRowsReducer{}.Reduce([]AnalyzerResult{a, b})
	require.NoError(t, err)
	ar := out.(*AnnotatedRowsResult)
	require.Len(t, ar.Rows, 2)
	assert.Equal(t, int64(1), ar.Rows[0].ID)
	assert.Equal(t, 3, ar.RowCount())

	mismatch := &AnnotatedRowsResult{HighlightedColumns: []string{"city"}}
	_, err = AnnotatedRowsReducer{}.Reduce([]AnalyzerResult{a, mismatch})
	assert.Error(t, err)
}

func TestAnnotatedRowsReducerRejectsConflictingRows(t *testing.T) {
	partial := func(value string, count int) *AnnotatedRowsResult {
		return &AnnotatedRowsResult{Columns: []string{"name"}, HighlightedColumns: []string{"name"},
			Rows: []AnnotatedRow{{ID: 7, Values: []interface{}{value}, Count: count}}}
	}
	a, b := partial("x", 1), partial("y", 3)

	for _, order := range [][]AnalyzerResult{{a, b}, {b, a}} {
		_, err := AnnotatedRowsReducer{}.Reduce(order)
		assert.True(t, errors.Is(err, dcerrors.ErrIncompatibleResults), "got %v", err)
	}

	same := partial("x", 1)
	ab, err := AnnotatedRowsReducer{}.Reduce([]AnalyzerResult{a, same})
	require.NoError(t, err)
	ba, err := AnnotatedRowsReducer{}.Reduce([]AnalyzerResult{same, a})
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, 1, ab.(*AnnotatedRowsResult).RowCount())
}

func TestSumReducer(t *testing.T) {
	out, err := SumReducer{}.Reduce([]AnalyzerResult{&NumberResult{Value: 2}, &NumberResult{Value: 3}})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.(*NumberResult).Value)
}

func TestCodecAnalysisResultRoundTrip(t *testing.T) {
	codec := NewCodec()
	snapshot := &AnalysisResult{
		RunID:   "run-1",
		JobName: "customers",
		Status:  StatusSuccess,
		Results: map[string]AnalyzerResult{
			"count":    &NumberResult{Value: 2},
			"weekdays": weekdays(map[string]float64{"Monday": 1}),
		},
	}

	raw, err := codec.MarshalAnalysisResult(snapshot)
	require.NoError(t, err)
	decoded, err := codec.UnmarshalAnalysisResult(raw)
	require.NoError(t, err)

	assert.Equal(t, "run-1", decoded.RunID)
	count, ok := decoded.Result("count")
	require.True(t, ok)
	assert.Equal(t, 2.0, count.(*NumberResult).Value)
	days, _ := decoded.Result("weekdays")
	assert.True(t, days.(*CrosstabResult).Crosstab.Equal(snapshot.Results["weekdays"].(*CrosstabResult).Crosstab))

	_, err = codec.Decode(Envelope{Kind: "mystery"})
	assert.Error(t, err)
}
