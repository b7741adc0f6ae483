// Package analyzers contains the built-in analyzers. Analyzers are serial
// by default, so their accumulators are unguarded.
package analyzers

import (
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Descriptors returns the descriptors of all built-in analyzers
func Descriptors() []*component.Descriptor {
	return []*component.Descriptor{
		RowCountDescriptor(),
		BooleanDescriptor(),
		ReferenceDataMatcherDescriptor(),
		WeekdayDistributionDescriptor(),
		ValueDistributionDescriptor(),
		CompletenessDescriptor(),
	}
}

func sumReducer() result.Reducer       { return result.SumReducer{} }
func booleanReducer() result.Reducer   { return result.BooleanReducer{} }
func crosstabReducer() result.Reducer  { return result.CrosstabReducer{} }
func annotatedReducer() result.Reducer { return result.AnnotatedRowsReducer{} }
