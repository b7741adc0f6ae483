package job

import (
	"strings"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
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

type countAnalyzer struct{ n int }

func (a *countAnalyzer) Run(row data.InputRow, distinctCount int) error {
	a.n += distinctCount
	return nil
}

func (a *countAnalyzer) Result() (result.AnalyzerResult, error) {
	return &result.NumberResult{Value: float64(a.n)}, nil
}

func testRegistry() *component.Registry {
	return component.NewRegistry().MustRegister(
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
		&component.Descriptor{
			Name:       "Count",
			Kind:       component.KindAnalyzer,
			Properties: []component.PropertySpec{{Name: "label", Type: component.PropertyString, Default: "rows"}},
			Reducer:    func() result.Reducer { return result.SumReducer{} },
			Create: func(cfg component.Config) (component.Component, error) {
				return &countAnalyzer{}, nil
			},
		},
		&component.Descriptor{
			Name:       "Threshold",
			Kind:       component.KindAnalyzer,
			Properties: []component.PropertySpec{{Name: "limit", Type: component.PropertyInt, Required: true}},
			Create: func(cfg component.Config) (component.Component, error) {
				return &countAnalyzer{}, nil
			},
		},
	)
}

// wordJob builds: filter on name, upper transformer requiring VALID, count on the upper column
func wordJob() (*Builder, *ComponentBuilder, *ComponentBuilder, *ComponentBuilder) {
	b := NewBuilder(testRegistry()).
		WithName("words").
		WithDatastore(data.NewMemoryDatastore("mem", "name"))
	name := b.AddSourceColumn("name", data.TypeString)

	filter := b.AddFilter("single word", "Word filter").WithInputs(name)
	upper := b.AddTransformer("upper", "Upper").WithInputs(name).WithRequirement(Requires(filter.Outcome("VALID")))
	count := b.AddAnalyzer("count", "Count").WithInputs(upper.Output(0))
	return b, filter, upper, count
}
