// Package filters contains the built-in row filters. Every filter assigns
// a row to one of the categories declared by its descriptor.
package filters

import (
	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
)

// Categories shared by the built-in filters
const (
	Valid     = "VALID"
	Invalid   = "INVALID"
	NotNull   = "NOT_NULL"
	Null      = "NULL"
	Equals    = "EQUALS"
	NotEquals = "NOT_EQUALS"
)

// Evaluation modes of multi column filters
const (
	EvaluationAnyField  = "ANY_FIELD"
	EvaluationAllFields = "ALL_FIELDS"
)

// Descriptors returns the descriptors of all built-in filters
func Descriptors() []*component.Descriptor {
	return []*component.Descriptor{
		SingleWordDescriptor(),
		MaxRowsDescriptor(),
		NullCheckDescriptor(),
		EqualsDescriptor(),
	}
}

// toString renders a value the way filters compare it. Nil stays nil.
func toString(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	return cast.ToString(v), true
}
