package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

type wordFilter struct{ input *data.Column }

func (f *wordFilter) Categorize(row data.InputRow) (string, error) {
	s, _ := row.Value(f.input).(string)
	if strings.Contains(strings.TrimSpace(s), " ") {
		return "INVALID", nil
	}
	return "VALID", nil
}

type upperTransformer struct{ inputs []*data.Column }

func (t *upperTransformer) OutputColumns() []component.OutputColumn {
	out := make([]component.OutputColumn, len(t.inputs))
	for i, c := range t.inputs {
		out[i] = component.OutputColumn{Name: c.Name() + " (upper)", DataType: data.TypeString}
	}
	return out
}

func (t *upperTransformer) Transform(row data.InputRow) ([]interface{}, error) {
	out := make([]interface{}, len(t.inputs))
	for i, c := range t.inputs {
		s, _ := row.Value(c).(string)
		out[i] = strings.ToUpper(s)
	}
	return out, nil
}

// hookAnalyzer counts rows and lets tests plug into every lifecycle step
type hookAnalyzer struct {
	n          int
	calls      int
	onRun      func(row data.InputRow) error
	onValidate func() error
	onInit     func(ctx context.Context) error
	onClose    func() error
}

func (a *hookAnalyzer) Run(row data.InputRow, distinctCount int) error {
	if a.onRun != nil {
		if err := a.onRun(row); err != nil {
			return err
		}
	}
	a.calls++
	a.n += distinctCount
	return nil
}

func (a *hookAnalyzer) Result() (result.AnalyzerResult, error) {
	return &result.NumberResult{Value: float64(a.n)}, nil
}

func (a *hookAnalyzer) Validate() error {
	if a.onValidate != nil {
		return a.onValidate()
	}
	return nil
}

func (a *hookAnalyzer) Initialize(ctx context.Context) error {
	if a.onInit != nil {
		return a.onInit(ctx)
	}
	return nil
}

func (a *hookAnalyzer) Close() error {
	if a.onClose != nil {
		return a.onClose()
	}
	return nil
}

func hookDescriptor(name string, newAnalyzer func() *hookAnalyzer) *component.Descriptor {
	return &component.Descriptor{
		Name:    name,
		Kind:    component.KindAnalyzer,
		Reducer: func() result.Reducer { return result.SumReducer{} },
		Create: func(component.Config) (component.Component, error) {
			return newAnalyzer(), nil
		},
	}
}

func testRegistry(extra ...*component.Descriptor) *component.Registry {
	r := component.NewRegistry().MustRegister(
		&component.Descriptor{
			Name:       "Word filter",
			Kind:       component.KindFilter,
			Categories: []string{"VALID", "INVALID"},
			MinInputs:  1,
			MaxInputs:  1,
			Create: func(cfg component.Config) (component.Component, error) {
				return &wordFilter{input: cfg.Inputs[0]}, nil
			},
		},
		&component.Descriptor{
			Name:      "Upper",
			Kind:      component.KindTransformer,
			MinInputs: 1,
			Create: func(cfg component.Config) (component.Component, error) {
				return &upperTransformer{inputs: cfg.Inputs}, nil
			},
		},
		hookDescriptor("Count", func() *hookAnalyzer { return &hookAnalyzer{} }),
	)
	return r.MustRegister(extra...)
}

func names(values ...string) *data.MemoryDatastore {
	ds := data.NewMemoryDatastore("people", "name")
	for _, v := range values {
		ds.Add(v)
	}
	return ds
}

func numbered(n int) *data.MemoryDatastore {
	ds := data.NewMemoryDatastore("numbers", "name")
	for i := 1; i <= n; i++ {
		ds.Add(fmt.Sprintf("row %d", i))
	}
	return ds
}

// wordJob: filter on name, upper requiring VALID, count on the upper column
func wordJob(t *testing.T, ds data.Datastore) (*job.AnalysisJob, *job.AnalyzerJob) {
	t.Helper()
	b := job.NewBuilder(testRegistry()).WithName("words").WithDatastore(ds)
	name := b.AddSourceColumn("name", data.TypeString)
	filter := b.AddFilter("single word", "Word filter").WithInputs(name)
	upper := b.AddTransformer("upper", "Upper").WithInputs(name).WithRequirement(job.Requires(filter.Outcome("VALID")))
	count := b.AddAnalyzer("count", "Count").WithInputs(upper.Output(0))
	aj, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return aj, count.Job().(*job.AnalyzerJob)
}

// singleAnalyzerJob runs one analyzer of the given component over name
func singleAnalyzerJob(t *testing.T, ds data.Datastore, reg *component.Registry, componentName string) (*job.AnalysisJob, *job.AnalyzerJob) {
	t.Helper()
	b := job.NewBuilder(reg).WithName("single").WithDatastore(ds)
	name := b.AddSourceColumn("name", data.TypeString)
	a := b.AddAnalyzer("target", componentName).WithInputs(name)
	aj, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return aj, a.Job().(*job.AnalyzerJob)
}

func numberOf(t *testing.T, f *ResultFuture, aj job.ComponentJob) float64 {
	t.Helper()
	r, ok := f.Result(aj)
	if !ok {
		t.Fatalf("no result for %s", aj.Name())
	}
	n, ok := r.(*result.NumberResult)
	if !ok {
		t.Fatalf("expected a number result for %s, got %T", aj.Name(), r)
	}
	return n.Value
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

// recordingListener keeps the names of the events it received
type recordingListener struct {
	ListenerAdaptor
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) JobBegin(*job.AnalysisJob, JobMetrics) {
	l.add("JobBegin")
}

func (l *recordingListener) JobSuccess(*job.AnalysisJob, JobMetrics) {
	l.add("JobSuccess")
}

func (l *recordingListener) JobFailed(*job.AnalysisJob, JobMetrics, error) {
	l.add("JobFailed")
}

func (l *recordingListener) JobCancelled(*job.AnalysisJob, JobMetrics) {
	l.add("JobCancelled")
}

func (l *recordingListener) RowProcessingBegin(_ *job.AnalysisJob, expected int64) {
	l.add("RowProcessingBegin:%d", expected)
}

func (l *recordingListener) RowProcessingSuccess(_ *job.AnalysisJob, rows int64) {
	l.add("RowProcessingSuccess:%d", rows)
}

func (l *recordingListener) ComponentBegin(_ *job.AnalysisJob, cj job.ComponentJob) {
	l.add("ComponentBegin:%s", cj.Name())
}

func (l *recordingListener) ComponentSuccess(_ *job.AnalysisJob, cj job.ComponentJob, _ result.AnalyzerResult) {
	l.add("ComponentSuccess:%s", cj.Name())
}

func (l *recordingListener) ErrorInComponent(_ *job.AnalysisJob, cj job.ComponentJob, _ data.InputRow, _ error) {
	l.add("ErrorInComponent:%s", cj.Name())
}

func (l *recordingListener) ErrorUnknown(*job.AnalysisJob, error) {
	l.add("ErrorUnknown")
}
