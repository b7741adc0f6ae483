// Package result defines analyzer results and the reducers that merge
// partial results of partitioned runs.
//
// Reducers never mutate their inputs and are order independent: reducing
// [A,B] yields a result equal to reducing [B,A], and
// reduce([reduce([A,B]), C]) equals reduce([A,B,C]).
package result

import (
	"fmt"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// AnalyzerResult is the outcome of one analyzer for one run or partition
type AnalyzerResult interface {
	// Kind identifies the concrete result type for encoding
	Kind() string
}

// Reducer combines partial results of the same kind into one result.
// Reduce returns nil when partials is empty.
type Reducer interface {
	Reduce(partials []AnalyzerResult) (AnalyzerResult, error)
}

// ReducerFunc adapts a function to the Reducer interface
type ReducerFunc func(partials []AnalyzerResult) (AnalyzerResult, error)

// Reduce calls f
func (f ReducerFunc) Reduce(partials []AnalyzerResult) (AnalyzerResult, error) {
	return f(partials)
}

// incompatible builds the reduction error for an unexpected partial
func incompatible(expected string, got AnalyzerResult) error {
	kind := "<nil>"
	if got != nil {
		kind = got.Kind()
	}
	return dcerrors.NewError(dcerrors.CodeReduction,
		fmt.Sprintf("cannot reduce %s result with %s partial", expected, kind),
		dcerrors.ErrIncompatibleResults)
}

// castAll asserts every partial to T
func castAll[T AnalyzerResult](expected string, partials []AnalyzerResult) ([]T, error) {
	out := make([]T, 0, len(partials))
	for _, p := range partials {
		typed, ok := p.(T)
		if !ok {
			return nil, incompatible(expected, p)
		}
		out = append(out, typed)
	}
	return out, nil
}
