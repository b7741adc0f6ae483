package filters

import (
	"strings"
	"unicode"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// SingleWordFilter accepts values consisting of exactly one word
type SingleWordFilter struct {
	input *data.Column
}

func SingleWordDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Single word",
		Kind:        component.KindFilter,
		Description: "Filters values that contain a single word, without whitespace.",
		Categories:  []string{Valid, Invalid},
		MinInputs:   1,
		MaxInputs:   1,
		Create: func(cfg component.Config) (component.Component, error) {
			return &SingleWordFilter{input: cfg.Inputs[0]}, nil
		},
	}
}

func (f *SingleWordFilter) Categorize(row data.InputRow) (string, error) {
	s, ok := toString(row.Value(f.input))
	if !ok {
		return Invalid, nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return Invalid, nil
	}
	return Valid, nil
}
