package job

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
)

// Definition is the YAML form of an analysis job
//
//	name: customers
//	datastore: crm
//	source-columns:
//	  - name
//	  - {name: created, type: DATE}
//	filters:
//	  - {name: single word, component: Single word, input: [name]}
//	transformers:
//	  - name: upper
//	    component: Case
//	    input: [name]
//	    properties: {mode: upper}
//	    requires: single word.VALID
//	analyzers:
//	  - {name: count, component: Row count, input: [name (upper)]}
//
// Transformers may only consume outputs of transformers declared before them.
type Definition struct {
	Name          string                `yaml:"name"`
	Datastore     string                `yaml:"datastore"`
	SourceColumns []ColumnDefinition    `yaml:"source-columns"`
	Transformers  []ComponentDefinition `yaml:"transformers"`
	Filters       []ComponentDefinition `yaml:"filters"`
	Analyzers     []ComponentDefinition `yaml:"analyzers"`
}

// ColumnDefinition declares a source column, either as a plain name or as a mapping
type ColumnDefinition struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func (c *ColumnDefinition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain ColumnDefinition
	return node.Decode((*plain)(c))
}

// ComponentDefinition declares one component job. requires lists outcomes
// of which at least one must hold; requires-all lists outcomes that must
// all hold. Outcomes are written "<filter>.<CATEGORY>"; "_any_" overrides
// inherited requirements.
type ComponentDefinition struct {
	Name        string                 `yaml:"name"`
	Component   string                 `yaml:"component"`
	Input       []string               `yaml:"input"`
	Properties  map[string]interface{} `yaml:"properties"`
	Requires    StringList             `yaml:"requires"`
	RequiresAll StringList             `yaml:"requires-all"`
}

// StringList accepts a scalar or a sequence of strings
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// DatastoreResolver looks up datastores by name
type DatastoreResolver func(name string) (data.Datastore, error)

// ParseDefinition decodes a YAML job definition
func ParseDefinition(r io.Reader) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, "invalid job definition", err)
	}
	return &def, nil
}

// ReadYAML parses a YAML job definition and builds the job
func ReadYAML(r io.Reader, registry *component.Registry, datastores DatastoreResolver, catalog *refdata.Catalog) (*AnalysisJob, error) {
	def, err := ParseDefinition(r)
	if err != nil {
		return nil, err
	}
	return def.Build(registry, datastores, catalog)
}

// Build turns the definition into an AnalysisJob
func (def *Definition) Build(registry *component.Registry, datastores DatastoreResolver, catalog *refdata.Catalog) (*AnalysisJob, error) {
	ds, err := datastores(def.Datastore)
	if err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, fmt.Sprintf("datastore %q", def.Datastore), err)
	}

	b := NewBuilder(registry).WithName(def.Name).WithDatastore(ds).WithReferenceData(catalog)
	columns := make(map[string]*data.Column)
	register := func(c *data.Column) error {
		if _, dup := columns[c.Name()]; dup {
			return dcerrors.Configuration("ambiguous column name %q", c.Name())
		}
		columns[c.Name()] = c
		return nil
	}
	for _, cd := range def.SourceColumns {
		if err := register(b.AddSourceColumn(cd.Name, data.DataType(strings.ToUpper(cd.Type)))); err != nil {
			return nil, err
		}
	}
	resolve := func(owner string, names []string) ([]*data.Column, error) {
		cols := make([]*data.Column, len(names))
		for i, n := range names {
			c, ok := columns[n]
			if !ok {
				return nil, dcerrors.Configuration("%s: unknown input column %q", owner, n)
			}
			cols[i] = c
		}
		return cols, nil
	}

	filters := make(map[string]*ComponentBuilder, len(def.Filters))
	for _, fd := range def.Filters {
		filters[fd.Name] = b.AddFilter(fd.Name, fd.Component).WithProperties(component.PropertiesFromMap(fd.Properties))
	}

	pending := make(map[*ComponentBuilder]ComponentDefinition)
	for _, td := range def.Transformers {
		tb := b.AddTransformer(td.Name, td.Component).WithProperties(component.PropertiesFromMap(td.Properties))
		inputs, err := resolve(td.Name, td.Input)
		if err != nil {
			return nil, err
		}
		tb.WithInputs(inputs...)
		outputs, err := tb.OutputColumns()
		if err != nil {
			return nil, err
		}
		for _, c := range outputs {
			if err := register(c); err != nil {
				return nil, err
			}
		}
		pending[tb] = td
	}

	for _, fd := range def.Filters {
		inputs, err := resolve(fd.Name, fd.Input)
		if err != nil {
			return nil, err
		}
		filters[fd.Name].WithInputs(inputs...)
		pending[filters[fd.Name]] = fd
	}

	for _, ad := range def.Analyzers {
		inputs, err := resolve(ad.Name, ad.Input)
		if err != nil {
			return nil, err
		}
		ab := b.AddAnalyzer(ad.Name, ad.Component).WithProperties(component.PropertiesFromMap(ad.Properties)).WithInputs(inputs...)
		pending[ab] = ad
	}

	for cb, cd := range pending {
		req, err := parseRequirement(cd, filters)
		if err != nil {
			return nil, err
		}
		if req != nil {
			cb.WithRequirement(req)
		}
	}
	return b.Build()
}

func parseRequirement(cd ComponentDefinition, filters map[string]*ComponentBuilder) (Requirement, error) {
	if len(cd.Requires) == 1 && cd.Requires[0] == AnyRequirementName && len(cd.RequiresAll) == 0 {
		return Any, nil
	}
	outcome := func(spec string) (Requirement, error) {
		i := strings.LastIndex(spec, ".")
		if i <= 0 || i == len(spec)-1 {
			return nil, dcerrors.Configuration("%s: malformed outcome %q, expected <filter>.<CATEGORY>", cd.Name, spec)
		}
		f, ok := filters[spec[:i]]
		if !ok {
			return nil, dcerrors.Configuration("%s: unknown filter %q", cd.Name, spec[:i])
		}
		return Requires(f.Outcome(spec[i+1:])), nil
	}

	var anyOf, allOf []Requirement
	for _, spec := range cd.Requires {
		r, err := outcome(spec)
		if err != nil {
			return nil, err
		}
		anyOf = append(anyOf, r)
	}
	for _, spec := range cd.RequiresAll {
		r, err := outcome(spec)
		if err != nil {
			return nil, err
		}
		allOf = append(allOf, r)
	}

	var parts []Requirement
	switch len(anyOf) {
	case 0:
	case 1:
		parts = append(parts, anyOf[0])
	default:
		parts = append(parts, AnyOf(anyOf...))
	}
	parts = append(parts, allOf...)

	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	}
	return AllOf(parts...), nil
}
