package transformers

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Case modes
const (
	CaseUpper = "UPPER"
	CaseLower = "LOWER"
	CaseTitle = "TITLE"
)

// PropertyMode selects the case transformation
const PropertyMode = "mode"

// CaseTransformer changes the letter case of every input column. Each
// input produces one output column named "<input> (<mode>)".
type CaseTransformer struct {
	inputs []*data.Column
	mode   string
}

func CaseDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Case",
		Aliases:     []string{"Change case"},
		Kind:        component.KindTransformer,
		Description: "Changes the case of text values to upper, lower or title case.",
		MinInputs:   1,
		Properties: []component.PropertySpec{
			{Name: PropertyMode, Type: component.PropertyString, Default: CaseUpper,
				Choices: []string{CaseUpper, CaseLower, CaseTitle}},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			return &CaseTransformer{inputs: cfg.Inputs, mode: cfg.Properties.String(PropertyMode)}, nil
		},
	}
}

func (t *CaseTransformer) OutputColumns() []component.OutputColumn {
	out := make([]component.OutputColumn, len(t.inputs))
	for i, col := range t.inputs {
		out[i] = component.OutputColumn{
			Name:     fmt.Sprintf("%s (%s)", col.Name(), strings.ToLower(t.mode)),
			DataType: data.TypeString,
		}
	}
	return out
}

func (t *CaseTransformer) Transform(row data.InputRow) ([]interface{}, error) {
	// a Caser keeps state between calls and must not be shared across workers
	caser := t.caser()
	out := make([]interface{}, len(t.inputs))
	for i, col := range t.inputs {
		v := row.Value(col)
		if v == nil {
			continue
		}
		out[i] = caser.String(cast.ToString(v))
	}
	return out, nil
}

func (t *CaseTransformer) caser() cases.Caser {
	switch t.mode {
	case CaseLower:
		return cases.Lower(language.Und)
	case CaseTitle:
		return cases.Title(language.Und)
	}
	return cases.Upper(language.Und)
}
