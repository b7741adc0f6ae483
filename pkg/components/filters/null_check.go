package filters

import (
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names of the null check filter
const (
	PropertyEmptyAsNull    = "consider empty string as null"
	PropertyEvaluationMode = "evaluation mode"
)

// NullCheckFilter categorizes rows by the presence of values. In ANY_FIELD
// mode a single null makes the row NULL, in ALL_FIELDS mode every input
// must be null.
type NullCheckFilter struct {
	inputs      []*data.Column
	emptyAsNull bool
	allFields   bool
}

func NullCheckDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Null check",
		Aliases:     []string{"Not null"},
		Kind:        component.KindFilter,
		Description: "Filters rows with null values.",
		Categories:  []string{NotNull, Null},
		MinInputs:   1,
		Properties: []component.PropertySpec{
			{Name: PropertyEmptyAsNull, Type: component.PropertyBool, Default: false},
			{Name: PropertyEvaluationMode, Type: component.PropertyString, Default: EvaluationAnyField,
				Choices: []string{EvaluationAnyField, EvaluationAllFields}},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			return &NullCheckFilter{
				inputs:      cfg.Inputs,
				emptyAsNull: cfg.Properties.Bool(PropertyEmptyAsNull),
				allFields:   cfg.Properties.String(PropertyEvaluationMode) == EvaluationAllFields,
			}, nil
		},
	}
}

func (f *NullCheckFilter) Categorize(row data.InputRow) (string, error) {
	nulls := 0
	for _, col := range f.inputs {
		if f.isNull(row.Value(col)) {
			nulls++
		}
	}
	switch {
	case f.allFields && nulls == len(f.inputs):
		return Null, nil
	case !f.allFields && nulls > 0:
		return Null, nil
	}
	return NotNull, nil
}

func (f *NullCheckFilter) isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && f.emptyAsNull {
		return s == ""
	}
	return false
}
