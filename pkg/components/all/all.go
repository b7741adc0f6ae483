// Package all wires the built-in components into a registry
package all

import (
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/components/analyzers"
	"github.com/wehubfusion/datacleaner/pkg/components/filters"
	"github.com/wehubfusion/datacleaner/pkg/components/script"
	"github.com/wehubfusion/datacleaner/pkg/components/transformers"
)

// Descriptors returns the descriptors of every built-in component
func Descriptors() []*component.Descriptor {
	var ds []*component.Descriptor
	ds = append(ds, filters.Descriptors()...)
	ds = append(ds, transformers.Descriptors()...)
	ds = append(ds, script.Descriptors()...)
	ds = append(ds, analyzers.Descriptors()...)
	return ds
}

// NewRegistry creates a new registry with all built-in components registered
func NewRegistry() *component.Registry {
	return component.NewRegistry().MustRegister(Descriptors()...)
}
