package filters

import (
	"errors"
	"strings"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names of the equals filter
const (
	PropertyValues        = "values"
	PropertyCaseSensitive = "case sensitive"
)

// EqualsFilter accepts rows whose input value equals one of the configured
// values. Numbers compare numerically, so 1.0 equals "1".
type EqualsFilter struct {
	input         *data.Column
	values        []string
	numbers       []float64
	numeric       []bool
	caseSensitive bool
}

func EqualsDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Equals",
		Kind:        component.KindFilter,
		Description: "Filters values that are equal to one of the given values.",
		Categories:  []string{Equals, NotEquals},
		MinInputs:   1,
		MaxInputs:   1,
		Properties: []component.PropertySpec{
			{Name: PropertyValues, Type: component.PropertyStringList, Required: true},
			{Name: PropertyCaseSensitive, Type: component.PropertyBool, Default: true},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			f := &EqualsFilter{
				input:         cfg.Inputs[0],
				values:        cfg.Properties.StringList(PropertyValues),
				caseSensitive: cfg.Properties.Bool(PropertyCaseSensitive),
			}
			f.numbers = make([]float64, len(f.values))
			f.numeric = make([]bool, len(f.values))
			for i, v := range f.values {
				n, err := toNumber(v)
				f.numbers[i], f.numeric[i] = n, err == nil
			}
			return f, nil
		},
	}
}

func (f *EqualsFilter) Categorize(row data.InputRow) (string, error) {
	v := row.Value(f.input)
	if v == nil {
		return NotEquals, nil
	}
	n, nerr := toNumber(v)
	s := cast.ToString(v)
	for i, candidate := range f.values {
		if nerr == nil && f.numeric[i] {
			if n == f.numbers[i] {
				return Equals, nil
			}
			continue
		}
		if f.caseSensitive && s == candidate {
			return Equals, nil
		}
		if !f.caseSensitive && strings.EqualFold(s, candidate) {
			return Equals, nil
		}
	}
	return NotEquals, nil
}

var errNotNumber = errors.New("not a number")

func toNumber(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, errNotNumber
		}
		return cast.ToFloat64E(t)
	case bool:
		return 0, errNotNumber
	}
	return cast.ToFloat64E(v)
}
