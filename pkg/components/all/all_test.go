package all

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/datacleaner/pkg/components/analyzers"
	"github.com/wehubfusion/datacleaner/pkg/components/filters"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/runner"
)

func run(t *testing.T, aj *job.AnalysisJob) *runner.ResultFuture {
	t.Helper()
	return runWith(t, aj, runner.DefaultOptions().WithWorkers(2))
}

func runWith(t *testing.T, aj *job.AnalysisJob, opts runner.Options) *runner.ResultFuture {
	t.Helper()
	r, err := runner.NewRunner(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	f, err := r.RunAndAwait(context.Background(), aj)
	require.NoError(t, err)
	require.True(t, f.IsSuccessful(), "errors: %v", f.Errors())
	return f
}

func TestRegistryHasEveryComponent(t *testing.T) {
	reg := NewRegistry()
	for _, d := range Descriptors() {
		got, err := reg.Lookup(d.Name)
		require.NoError(t, err)
		assert.Equal(t, d.Name, got.Name)
		for _, alias := range d.Aliases {
			got, err := reg.Lookup(alias)
			require.NoError(t, err, alias)
			assert.Equal(t, d.Name, got.Name)
		}
	}
	assert.True(t, reg.Has("JavaScript transformer"))
	assert.True(t, reg.Has("Reference data matcher"))
}

func TestReferenceDataMatcherScenario(t *testing.T) {
	digits, err := refdata.NewRegexStringPattern("digits", `\d+`, true)
	require.NoError(t, err)
	catalog := refdata.NewCatalog().
		AddDictionary(refdata.NewSimpleDictionary("greetings", false, "hello", "hi")).
		AddStringPattern(digits).
		AddStringPattern(refdata.NewSimpleStringPattern("lower word", "aaaa"))

	ds := data.NewMemoryDatastore("words", "name").Add("hello").Add("123").Add("world").Add("Hi")
	b := job.NewBuilder(NewRegistry()).WithName("matching").WithDatastore(ds).WithReferenceData(catalog)
	name := b.AddSourceColumn("name", data.TypeString)
	matcher := b.AddAnalyzer("matcher", "Reference data matcher").WithInputs(name).
		WithProperty(analyzers.PropertyDictionaries, []string{"greetings"}).
		WithProperty(analyzers.PropertyStringPatterns, []string{"digits", "lower word"})
	aj, err := b.Build()
	require.NoError(t, err)

	f := run(t, aj)
	r, ok := f.Result(matcher.Job())
	require.True(t, ok)
	br := r.(*result.BooleanResult)

	assert.Equal(t, []string{"name in greetings", "name in digits", "name in lower word"}, br.Columns)
	for _, col := range br.Columns {
		assert.Equal(t, 4.0, br.Statistic(col, result.MeasureRowCount), col)
	}
	assert.Equal(t, 2.0, br.Statistic("name in greetings", result.MeasureTrueCount))
	assert.Equal(t, 1.0, br.Statistic("name in digits", result.MeasureTrueCount))
	assert.Equal(t, 2.0, br.Statistic("name in lower word", result.MeasureTrueCount))
}

func TestWeekdayPartitionsReduceToFullRun(t *testing.T) {
	ds := data.NewMemoryDatastore("events", "when")
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		ds.Add(start.AddDate(0, 0, i*3))
	}

	b := job.NewBuilder(NewRegistry()).WithName("weekdays").WithDatastore(ds)
	when := b.AddSourceColumn("when", data.TypeDate)
	dist := b.AddAnalyzer("weekdays", "Weekday distribution").WithInputs(when)
	aj, err := b.Build()
	require.NoError(t, err)
	cj := dist.Job()

	full, ok := run(t, aj).Result(cj)
	require.True(t, ok)

	var partials []result.AnalyzerResult
	for _, window := range [][2]int64{{1, 7}, {8, 7}, {15, 6}} {
		r, ok := run(t, aj.WithDatastore(data.Slice(ds, window[0], window[1]))).Result(cj)
		require.True(t, ok)
		partials = append(partials, r)
	}
	reduced, err := cj.Descriptor().Reducer().Reduce(partials)
	require.NoError(t, err)

	assert.True(t, full.(*result.CrosstabResult).Crosstab.Equal(reduced.(*result.CrosstabResult).Crosstab),
		"full %v, reduced %v", full, reduced)
}

func TestFilterTransformerAnalyzerPipeline(t *testing.T) {
	ds := data.NewMemoryDatastore("people", "name").
		Add("alice").Add("bob smith").Add("alice").Add(nil).Add("carol")

	b := job.NewBuilder(NewRegistry()).WithName("people").WithDatastore(ds)
	name := b.AddSourceColumn("name", data.TypeString)
	notNull := b.AddFilter("not null", "Null check").WithInputs(name)
	single := b.AddFilter("single", "Single word").WithInputs(name).
		WithRequirement(job.Requires(notNull.Outcome(filters.NotNull)))
	upper := b.AddTransformer("upper", "Case").WithInputs(name).WithProperty("mode", "upper").
		WithRequirement(job.Requires(single.Outcome(filters.Valid)))
	values := b.AddAnalyzer("values", "Value distribution").WithInputs(upper.Output(0))
	invalid := b.AddAnalyzer("multi words", "Row count").WithInputs(name).
		WithRequirement(job.Requires(single.Outcome(filters.Invalid)))
	aj, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "name (upper)", upper.Output(0).Name())

	f := run(t, aj)

	r, ok := f.Result(values.Job())
	require.True(t, ok)
	tab := r.(*result.CrosstabResult).Crosstab
	alice, _ := tab.Value("name (upper)", "ALICE")
	carol, _ := tab.Value("name (upper)", "CAROL")
	assert.Equal(t, 2.0, alice)
	assert.Equal(t, 1.0, carol)
	assert.Equal(t, 2, tab.Len())

	r, ok = f.Result(invalid.Job())
	require.True(t, ok)
	assert.Equal(t, 1.0, r.(*result.NumberResult).Value)
}

func TestMaxRowsIgnoresDuplicateCompaction(t *testing.T) {
	build := func() (*job.AnalysisJob, job.ComponentJob) {
		ds := data.NewMemoryDatastore("letters", "letter").
			Add("a").Add("b").Add("c").Add("d").Add("a")
		b := job.NewBuilder(NewRegistry()).WithName("window").WithDatastore(ds)
		letter := b.AddSourceColumn("letter", data.TypeString)
		window := b.AddFilter("window", "Max rows").WithInputs(letter).
			WithProperty(filters.PropertyFirstRow, 1).
			WithProperty(filters.PropertyMaxRows, 2)
		count := b.AddAnalyzer("count", "Row count").WithInputs(letter).
			WithRequirement(job.Requires(window.Outcome(filters.Valid)))
		aj, err := b.Build()
		require.NoError(t, err)
		return aj, count.Job()
	}

	for _, compact := range []bool{false, true} {
		aj, count := build()
		opts := runner.DefaultOptions().WithWorkers(1).WithCompactDuplicates(compact)
		f := runWith(t, aj, opts)
		r, ok := f.Result(count)
		require.True(t, ok)
		assert.Equal(t, 2.0, r.(*result.NumberResult).Value, "compact=%v", compact)
		assert.Equal(t, int64(5), f.RowsProcessed(), "compact=%v", compact)
	}
}
