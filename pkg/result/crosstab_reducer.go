package result

import (
	"fmt"
	"strings"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// MergeCrosstabs sums overlapping cells and unions the categories of the
// given crosstabs into a fresh crosstab. All crosstabs must have the same
// dimension names in the same order.
func MergeCrosstabs(tabs []*Crosstab) (*Crosstab, error) {
	var template *Crosstab
	for _, tab := range tabs {
		if tab != nil {
			template = tab
			break
		}
	}
	if template == nil {
		return nil, nil
	}
	out := NewCrosstab(template.DimensionNames()...)
	want := strings.Join(out.DimensionNames(), ",")

	for _, tab := range tabs {
		if tab == nil {
			continue
		}
		if got := strings.Join(tab.DimensionNames(), ","); got != want {
			return nil, dcerrors.NewError(dcerrors.CodeReduction,
				fmt.Sprintf("crosstab dimensions [%s] do not match [%s]", got, want),
				dcerrors.ErrIncompatibleResults)
		}
		for i, d := range tab.dims {
			for _, cat := range d.categories {
				out.dims[i].AddCategory(cat)
			}
		}
		for k, v := range tab.cells {
			out.cells[k] += v
		}
	}
	return out, nil
}

// CrosstabResult wraps a single crosstab, e.g. a weekday or value distribution
type CrosstabResult struct {
	Crosstab *Crosstab `json:"crosstab"`
}

const KindCrosstab = "crosstab"

func (r *CrosstabResult) Kind() string { return KindCrosstab }

// CrosstabReducer reduces CrosstabResult partials
type CrosstabReducer struct{}

func (CrosstabReducer) Reduce(partials []AnalyzerResult) (AnalyzerResult, error) {
	if len(partials) == 0 {
		return nil, nil
	}
	typed, err := castAll[*CrosstabResult](KindCrosstab, partials)
	if err != nil {
		return nil, err
	}
	tabs := make([]*Crosstab, len(typed))
	for i, r := range typed {
		tabs[i] = r.Crosstab
	}
	merged, err := MergeCrosstabs(tabs)
	if err != nil {
		return nil, err
	}
	return &CrosstabResult{Crosstab: merged}, nil
}

// NumberResult is a single number, e.g. a row count
type NumberResult struct {
	Value float64 `json:"value"`
}

const KindNumber = "number"

func (r *NumberResult) Kind() string { return KindNumber }

// SumReducer adds NumberResult partials
type SumReducer struct{}

func (SumReducer) Reduce(partials []AnalyzerResult) (AnalyzerResult, error) {
	if len(partials) == 0 {
		return nil, nil
	}
	typed, err := castAll[*NumberResult](KindNumber, partials)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, r := range typed {
		sum += r.Value
	}
	return &NumberResult{Value: sum}, nil
}
