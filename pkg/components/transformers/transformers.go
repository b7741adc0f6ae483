// Package transformers contains the built-in value transformers
package transformers

import (
	"github.com/wehubfusion/datacleaner/pkg/component"
)

// Descriptors returns the descriptors of all built-in transformers
func Descriptors() []*component.Descriptor {
	return []*component.Descriptor{
		CaseDescriptor(),
		ConcatenatorDescriptor(),
		ConvertToDateDescriptor(),
	}
}
