package analyzers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

func configure(t *testing.T, d *component.Descriptor, inputs []*data.Column, catalog *refdata.Catalog, pairs ...interface{}) component.Component {
	t.Helper()
	props, err := component.NewProperties(pairs...).Validate(d.Name, d.Properties)
	require.NoError(t, err)
	c, err := d.NewInstance(component.Config{Name: d.Name, Inputs: inputs, Properties: props, ReferenceData: catalog})
	require.NoError(t, err)
	return c
}

func newAnalyzer(t *testing.T, d *component.Descriptor, inputs []*data.Column, pairs ...interface{}) component.Analyzer {
	t.Helper()
	c := configure(t, d, inputs, nil, pairs...)
	if v, ok := c.(component.Validator); ok {
		require.NoError(t, v.Validate())
	}
	return c.(component.Analyzer)
}

func run(t *testing.T, a component.Analyzer, rows ...data.InputRow) result.AnalyzerResult {
	t.Helper()
	for _, row := range rows {
		require.NoError(t, a.Run(row, 1))
	}
	r, err := a.Result()
	require.NoError(t, err)
	return r
}

func TestRowCount(t *testing.T) {
	a := newAnalyzer(t, RowCountDescriptor(), nil)
	require.NoError(t, a.Run(data.NewMapRow(1), 1))
	require.NoError(t, a.Run(data.NewMapRow(2), 3))
	r, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, &result.NumberResult{Value: 4}, r)
}

func TestBooleanAnalyzer(t *testing.T) {
	x := data.NewPhysicalColumn("x", data.TypeBoolean)
	y := data.NewPhysicalColumn("y", data.TypeBoolean)
	a := newAnalyzer(t, BooleanDescriptor(), []*data.Column{x, y})

	r := run(t, a,
		data.NewMapRow(1).Put(x, true).Put(y, false),
		data.NewMapRow(2).Put(x, true).Put(y, nil),
		data.NewMapRow(3).Put(x, "false").Put(y, "maybe"),
		data.NewMapRow(4).Put(x, true).Put(y, false),
	).(*result.BooleanResult)

	assert.Equal(t, []string{"x", "y"}, r.Columns)
	assert.Equal(t, 4.0, r.Statistic("x", result.MeasureRowCount))
	assert.Equal(t, 3.0, r.Statistic("x", result.MeasureTrueCount))
	assert.Equal(t, 1.0, r.Statistic("x", result.MeasureFalseCount))
	assert.Equal(t, 0.0, r.Statistic("x", result.MeasureNullCount))
	assert.Equal(t, 2.0, r.Statistic("y", result.MeasureFalseCount))
	assert.Equal(t, 2.0, r.Statistic("y", result.MeasureNullCount))

	require.Len(t, r.ValueCombinations, 3)
	assert.Equal(t, result.ValueCombination{Values: []string{"true", "false"}, Count: 2}, r.ValueCombinations[0])
}

func TestBooleanAnalyzerSingleColumnHasNoCombinations(t *testing.T) {
	x := data.NewPhysicalColumn("x", data.TypeBoolean)
	a := newAnalyzer(t, BooleanDescriptor(), []*data.Column{x})
	r := run(t, a, data.NewMapRow(1).Put(x, true), data.NewMapRow(2).Put(x, false)).(*result.BooleanResult)
	assert.Empty(t, r.ValueCombinations)
	assert.Equal(t, 2.0, r.Statistic("x", result.MeasureRowCount))
}

func matcherCatalog(t *testing.T) *refdata.Catalog {
	t.Helper()
	digits, err := refdata.NewRegexStringPattern("digits", `\d+`, true)
	require.NoError(t, err)
	return refdata.NewCatalog().
		AddDictionary(refdata.NewSimpleDictionary("greetings", false, "hello", "hi")).
		AddSynonymCatalog(refdata.NewSimpleSynonymCatalog("countries", false, map[string][]string{"Denmark": {"DK", "Danmark"}})).
		AddStringPattern(digits)
}

func TestReferenceDataMatcher(t *testing.T) {
	name := data.NewPhysicalColumn("name", data.TypeString)
	c := configure(t, ReferenceDataMatcherDescriptor(), []*data.Column{name}, matcherCatalog(t),
		PropertyDictionaries, []string{"greetings"},
		PropertySynonymCatalogs, []string{"countries"},
		PropertyStringPatterns, []string{"digits"})
	require.NoError(t, c.(component.Validator).Validate())

	a := c.(*ReferenceDataMatcherAnalyzer)
	assert.Equal(t, []string{"name in greetings", "name in countries", "name in digits"}, a.MatchColumns())

	r := run(t, a,
		data.NewMapRow(1).Put(name, "Hello"),
		data.NewMapRow(2).Put(name, "dk"),
		data.NewMapRow(3).Put(name, "123"),
		data.NewMapRow(4).Put(name, nil),
	).(*result.BooleanResult)

	for _, col := range a.MatchColumns() {
		assert.Equal(t, 4.0, r.Statistic(col, result.MeasureRowCount), col)
		assert.Equal(t, 1.0, r.Statistic(col, result.MeasureTrueCount), col)
		assert.Equal(t, 2.0, r.Statistic(col, result.MeasureFalseCount), col)
		assert.Equal(t, 1.0, r.Statistic(col, result.MeasureNullCount), col)
	}
	assert.Len(t, r.ValueCombinations, 4)
}

func TestReferenceDataMatcherNeedsReferenceData(t *testing.T) {
	name := data.NewPhysicalColumn("name", data.TypeString)
	c := configure(t, ReferenceDataMatcherDescriptor(), []*data.Column{name}, matcherCatalog(t))
	err := c.(component.Validator).Validate()
	require.ErrorIs(t, err, ErrNoReferenceData)
	assert.Equal(t, "No dictionaries, synonym catalogs or string patterns selected", err.Error())

	c = configure(t, ReferenceDataMatcherDescriptor(), []*data.Column{name}, matcherCatalog(t),
		PropertyDictionaries, []string{"missing"})
	assert.Error(t, c.(component.Validator).Validate())
}

func TestWeekdayDistribution(t *testing.T) {
	when := data.NewPhysicalColumn("when", data.TypeDate)
	a := newAnalyzer(t, WeekdayDistributionDescriptor(), []*data.Column{when})

	r := run(t, a,
		data.NewMapRow(1).Put(when, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)),
		data.NewMapRow(2).Put(when, "2024-03-18"),
		data.NewMapRow(3).Put(when, nil),
		data.NewMapRow(4).Put(when, "garbage"),
	).(*result.CrosstabResult)

	tab := r.Crosstab
	assert.Equal(t, 7, tab.Len())
	friday, _ := tab.Value("when", "Friday")
	monday, _ := tab.Value("when", "Monday")
	sunday, ok := tab.Value("when", "Sunday")
	assert.Equal(t, 1.0, friday)
	assert.Equal(t, 1.0, monday)
	assert.True(t, ok)
	assert.Equal(t, 0.0, sunday)
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		tab.Dimension(DimensionWeekday).Categories())
}

func TestValueDistribution(t *testing.T) {
	v := data.NewPhysicalColumn("v", data.TypeString)
	a := newAnalyzer(t, ValueDistributionDescriptor(), []*data.Column{v})

	r := run(t, a,
		data.NewMapRow(1).Put(v, "a"),
		data.NewMapRow(2).Put(v, "a"),
		data.NewMapRow(3).Put(v, "b"),
		data.NewMapRow(4).Put(v, nil),
		data.NewMapRow(5).Put(v, " "),
	).(*result.CrosstabResult)

	for value, want := range map[string]float64{"a": 2, "b": 1, NullValue: 1, BlankValue: 1} {
		got, ok := r.Crosstab.Value("v", value)
		assert.True(t, ok, value)
		assert.Equal(t, want, got, value)
	}
}

func completenessRows(a, b *data.Column) []data.InputRow {
	return []data.InputRow{
		data.NewMapRow(1).Put(a, nil).Put(b, nil),
		data.NewMapRow(2).Put(a, "").Put(b, "x"),
		data.NewMapRow(3).Put(a, "a").Put(b, nil),
		data.NewMapRow(4).Put(a, "a").Put(b, "b"),
	}
}

func TestCompletenessAnalyzer(t *testing.T) {
	a := data.NewPhysicalColumn("a", data.TypeString)
	b := data.NewPhysicalColumn("b", data.TypeString)
	inputs := []*data.Column{a, b}

	tests := []struct {
		name    string
		pairs   []interface{}
		invalid []int64
	}{
		{"any field", nil, []int64{1, 2, 3}},
		{"all fields", []interface{}{PropertyEvaluationMode, EvaluationAllFields}, []int64{1}},
		{"not null", []interface{}{PropertyConditions, []string{ConditionNotNull}}, []int64{1, 3}},
		{"per input", []interface{}{PropertyConditions, []string{ConditionNotNull, ConditionNotBlankOrNull}}, []int64{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := newAnalyzer(t, CompletenessDescriptor(), inputs, tt.pairs...)
			r := run(t, an, completenessRows(a, b)...).(*result.AnnotatedRowsResult)

			var ids []int64
			for _, row := range r.Rows {
				ids = append(ids, row.ID)
			}
			assert.Equal(t, tt.invalid, ids)
			assert.Equal(t, []string{"a", "b"}, r.HighlightedColumns)
			assert.Equal(t, int64(4), an.(*CompletenessAnalyzer).Total())
		})
	}
}

func TestCompletenessRejectsConditionMismatch(t *testing.T) {
	a := data.NewPhysicalColumn("a", data.TypeString)
	b := data.NewPhysicalColumn("b", data.TypeString)
	c := data.NewPhysicalColumn("c", data.TypeString)
	an := configure(t, CompletenessDescriptor(), []*data.Column{a, b, c}, nil,
		PropertyConditions, []string{ConditionNotNull, ConditionNotNull})
	assert.Error(t, an.(component.Validator).Validate())
}

func TestDescriptorsAreDistributable(t *testing.T) {
	for _, d := range Descriptors() {
		assert.Equal(t, component.KindAnalyzer, d.Kind, d.Name)
		assert.True(t, d.Distributable(), d.Name)
		assert.NoError(t, d.Validate(), d.Name)
	}
}
