package analyzers

import (
	"fmt"
	"strings"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Property names of the completeness analyzer
const (
	PropertyConditions     = "conditions"
	PropertyEvaluationMode = "evaluation mode"
)

// Completeness conditions
const (
	ConditionNotNull        = "NOT_NULL"
	ConditionNotBlankOrNull = "NOT_BLANK_OR_NULL"
)

// Evaluation modes
const (
	EvaluationAnyField  = "ANY_FIELD"
	EvaluationAllFields = "ALL_FIELDS"
)

// CompletenessAnalyzer keeps the rows that miss values. In ANY_FIELD mode
// one failing input makes a row incomplete, in ALL_FIELDS mode every input
// must fail. The result highlights the inputs; the number of analyzed rows
// is available through Total.
type CompletenessAnalyzer struct {
	inputs     []*data.Column
	conditions []string
	allFields  bool

	total   int64
	invalid []result.AnnotatedRow
}

func CompletenessDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:           "Completeness analyzer",
		Kind:           component.KindAnalyzer,
		Description:    "Finds records with missing values.",
		MinInputs:      1,
		RowIDSensitive: true,
		Reducer:        annotatedReducer,
		Properties: []component.PropertySpec{
			{Name: PropertyConditions, Type: component.PropertyStringList, Default: []string{ConditionNotBlankOrNull},
				Description: "One condition per input, or a single condition for all inputs"},
			{Name: PropertyEvaluationMode, Type: component.PropertyString, Default: EvaluationAnyField,
				Choices: []string{EvaluationAnyField, EvaluationAllFields}},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			return &CompletenessAnalyzer{
				inputs:     cfg.Inputs,
				conditions: cfg.Properties.StringList(PropertyConditions),
				allFields:  cfg.Properties.String(PropertyEvaluationMode) == EvaluationAllFields,
			}, nil
		},
	}
}

func (a *CompletenessAnalyzer) Validate() error {
	if len(a.conditions) != 1 && len(a.conditions) != len(a.inputs) {
		return fmt.Errorf("%d conditions given for %d inputs", len(a.conditions), len(a.inputs))
	}
	for _, c := range a.conditions {
		if c != ConditionNotNull && c != ConditionNotBlankOrNull {
			return fmt.Errorf("unknown completeness condition %q", c)
		}
	}
	return nil
}

func (a *CompletenessAnalyzer) condition(i int) string {
	if len(a.conditions) == 1 {
		return a.conditions[0]
	}
	return a.conditions[i]
}

func (a *CompletenessAnalyzer) Run(row data.InputRow, distinctCount int) error {
	a.total += int64(distinctCount)
	failed := 0
	for i, col := range a.inputs {
		if !satisfies(a.condition(i), row.Value(col)) {
			failed++
		}
	}
	incomplete := failed > 0
	if a.allFields {
		incomplete = failed == len(a.inputs)
	}
	if incomplete {
		a.invalid = append(a.invalid, result.AnnotatedRow{
			ID:     row.ID(),
			Values: row.Values(a.inputs...),
			Count:  distinctCount,
		})
	}
	return nil
}

func satisfies(condition string, v interface{}) bool {
	if v == nil {
		return false
	}
	if condition == ConditionNotBlankOrNull {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s) != ""
		}
	}
	return true
}

// Total returns the number of analyzed rows
func (a *CompletenessAnalyzer) Total() int64 { return a.total }

func (a *CompletenessAnalyzer) Result() (result.AnalyzerResult, error) {
	names := data.ColumnNames(a.inputs)
	return &result.AnnotatedRowsResult{
		Columns:            names,
		HighlightedColumns: append([]string(nil), names...),
		Rows:               append([]result.AnnotatedRow(nil), a.invalid...),
	}, nil
}
