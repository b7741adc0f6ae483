package job

import (
	"errors"
	"fmt"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
)

// Builder assembles an AnalysisJob. Errors of the fluent calls are
// collected and reported by Build. A builder builds one job; it cannot be
// modified after Build.
type Builder struct {
	registry      *component.Registry
	referenceData *refdata.Catalog
	name          string
	datastore     data.Datastore
	sourceColumns []*data.Column
	components    []*ComponentBuilder
	errs          []error
	built         bool
}

// NewBuilder creates a builder resolving components through registry
func NewBuilder(registry *component.Registry) *Builder {
	return &Builder{registry: registry, referenceData: refdata.NewCatalog()}
}

func (b *Builder) mutable() bool {
	if b.built {
		b.errs = append(b.errs, fmt.Errorf("job %q already built", b.name))
		return false
	}
	return true
}

// WithName sets the job name
func (b *Builder) WithName(name string) *Builder {
	if b.mutable() {
		b.name = name
	}
	return b
}

// WithDatastore sets the datastore rows are read from
func (b *Builder) WithDatastore(ds data.Datastore) *Builder {
	if b.mutable() {
		b.datastore = ds
	}
	return b
}

// WithReferenceData sets the catalog handed to components
func (b *Builder) WithReferenceData(catalog *refdata.Catalog) *Builder {
	if b.mutable() && catalog != nil {
		b.referenceData = catalog
	}
	return b
}

// ReferenceData returns the catalog handed to components
func (b *Builder) ReferenceData() *refdata.Catalog { return b.referenceData }

// AddSourceColumn adds a physical column read from the datastore
func (b *Builder) AddSourceColumn(name string, dataType data.DataType) *data.Column {
	col := data.NewPhysicalColumn(name, dataType)
	if b.mutable() {
		b.sourceColumns = append(b.sourceColumns, col)
	}
	return col
}

// SourceColumn finds a source column by name
func (b *Builder) SourceColumn(name string) (*data.Column, bool) {
	for _, c := range b.sourceColumns {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// AddTransformer adds a transformer job using the named component
func (b *Builder) AddTransformer(name, componentName string) *ComponentBuilder {
	return b.add(name, componentName, component.KindTransformer)
}

// AddFilter adds a filter job using the named component
func (b *Builder) AddFilter(name, componentName string) *ComponentBuilder {
	return b.add(name, componentName, component.KindFilter)
}

// AddAnalyzer adds an analyzer job using the named component
func (b *Builder) AddAnalyzer(name, componentName string) *ComponentBuilder {
	return b.add(name, componentName, component.KindAnalyzer)
}

func (b *Builder) add(name, componentName string, kind component.Kind) *ComponentBuilder {
	d, err := b.registry.Lookup(componentName)
	if err == nil && d.Kind != kind {
		err = dcerrors.Configuration("component %q is a %s, not a %s", componentName, d.Kind, kind)
	}
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s %q: %w", kind, name, err))
		d = &component.Descriptor{Name: componentName, Kind: kind}
	}

	cb := &ComponentBuilder{builder: b, base: componentJob{name: name, descriptor: d}}
	switch kind {
	case component.KindTransformer:
		cb.transformer = &TransformerJob{}
	case component.KindFilter:
		cb.filter = &FilterJob{}
	default:
		cb.analyzer = &AnalyzerJob{}
	}
	cb.sync()
	if b.mutable() {
		b.components = append(b.components, cb)
	}
	return cb
}

// Component finds a component builder by job name
func (b *Builder) Component(name string) (*ComponentBuilder, bool) {
	for _, c := range b.components {
		if c.base.name == name {
			return c, true
		}
	}
	return nil, false
}

// Build validates the configuration and returns the immutable job
func (b *Builder) Build() (*AnalysisJob, error) {
	if b.built {
		return nil, fmt.Errorf("job %q already built", b.name)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.datastore == nil {
		return nil, dcerrors.Configuration("job %q has no datastore", b.name)
	}
	if len(b.sourceColumns) == 0 {
		return nil, dcerrors.Configuration("job %q has no source columns", b.name)
	}

	aj := &AnalysisJob{
		name:          b.name,
		datastore:     b.datastore,
		sourceColumns: append([]*data.Column(nil), b.sourceColumns...),
		referenceData: b.referenceData,
	}
	columnNames := make(map[string]struct{}, len(b.sourceColumns))
	for _, c := range b.sourceColumns {
		if _, dup := columnNames[c.Name()]; dup {
			return nil, dcerrors.Configuration("duplicate source column %q", c.Name())
		}
		columnNames[c.Name()] = struct{}{}
	}

	names := make(map[string]struct{}, len(b.components))
	for _, cb := range b.components {
		if cb.base.name == "" {
			return nil, dcerrors.Configuration("a %s job using %s has no name", cb.base.descriptor.Kind, cb.base.descriptor.Name)
		}
		if _, dup := names[cb.base.name]; dup {
			return nil, dcerrors.Configuration("duplicate component name %q", cb.base.name)
		}
		names[cb.base.name] = struct{}{}

		props, err := cb.base.properties.Validate(cb.base.name, cb.base.descriptor.Properties)
		if err != nil {
			return nil, err
		}
		if err := cb.base.descriptor.CheckInputs(len(cb.base.inputs)); err != nil {
			return nil, fmt.Errorf("%s: %w", cb.base.name, err)
		}
		cb.base.properties = props
		if cb.transformer != nil {
			if _, err := cb.OutputColumns(); err != nil {
				return nil, err
			}
		}
		cb.sync()

		switch {
		case cb.transformer != nil:
			aj.transformers = append(aj.transformers, cb.transformer)
			aj.order = append(aj.order, cb.transformer)
		case cb.filter != nil:
			aj.filters = append(aj.filters, cb.filter)
			aj.order = append(aj.order, cb.filter)
		default:
			aj.analyzers = append(aj.analyzers, cb.analyzer)
			aj.order = append(aj.order, cb.analyzer)
		}
	}

	if len(aj.analyzers) == 0 {
		return nil, dcerrors.Configuration("job %q has no analyzers", b.name)
	}
	if err := validateGraph(aj); err != nil {
		return nil, err
	}

	b.built = true
	return aj, nil
}

func validateGraph(aj *AnalysisJob) error {
	finder := NewSourceColumnFinder(aj)
	filters := make(map[*FilterJob]struct{}, len(aj.filters))
	for _, f := range aj.filters {
		filters[f] = struct{}{}
	}

	seenOutputs := make(map[*data.Column]string)
	for _, t := range aj.transformers {
		for _, c := range t.outputs {
			if owner, dup := seenOutputs[c]; dup {
				return dcerrors.Configuration("column %q is output by both %s and %s", c.Name(), owner, t.name)
			}
			seenOutputs[c] = t.name
		}
	}

	for _, cj := range aj.order {
		for _, c := range cj.Inputs() {
			if c == nil {
				return dcerrors.Configuration("%s has a nil input column", cj.Name())
			}
			if _, produced := finder.Producer(c); !produced && !finder.IsSourceColumn(c) {
				return dcerrors.Configuration("input column %q of %s is neither a source column nor produced by a transformer of the job", c.Name(), cj.Name())
			}
		}
		if err := validateRequirement(cj, cj.Requirement(), filters); err != nil {
			return err
		}
	}

	_, err := ProcessOrder(aj.order, finder)
	return err
}

func validateRequirement(cj ComponentJob, r Requirement, filters map[*FilterJob]struct{}) error {
	switch req := r.(type) {
	case nil:
		return nil
	case *OutcomeRequirement:
		o := req.Outcome()
		if o.filter == nil {
			return dcerrors.Configuration("requirement of %s names no filter", cj.Name())
		}
		if _, ok := filters[o.filter]; !ok {
			return dcerrors.Configuration("requirement of %s refers to filter %q outside the job", cj.Name(), o.filter.Name())
		}
		if !o.filter.descriptor.HasCategory(o.category) {
			return dcerrors.Configuration("requirement of %s: filter %q has no outcome %q", cj.Name(), o.filter.Name(), o.category)
		}
	case *CompoundRequirement:
		if len(req.children) == 0 {
			return dcerrors.Configuration("requirement of %s is an empty %s", cj.Name(), req.operator)
		}
		for _, child := range req.children {
			if err := validateRequirement(cj, child, filters); err != nil {
				return err
			}
		}
	}
	return nil
}

// ComponentBuilder configures one component job of a Builder
type ComponentBuilder struct {
	builder     *Builder
	base        componentJob
	transformer *TransformerJob
	filter      *FilterJob
	analyzer    *AnalyzerJob
	outputs     []*data.Column
}

// sync copies the builder state into the job value
func (c *ComponentBuilder) sync() {
	switch {
	case c.transformer != nil:
		c.transformer.componentJob = c.base
		c.transformer.outputs = append([]*data.Column(nil), c.outputs...)
	case c.filter != nil:
		c.filter.componentJob = c.base
	default:
		c.analyzer.componentJob = c.base
	}
}

// WithInputs appends input columns
func (c *ComponentBuilder) WithInputs(cols ...*data.Column) *ComponentBuilder {
	if c.builder.mutable() {
		c.base.inputs = append(c.base.inputs, cols...)
		c.sync()
	}
	return c
}

// WithProperty sets one configuration property
func (c *ComponentBuilder) WithProperty(name string, value interface{}) *ComponentBuilder {
	if c.builder.mutable() {
		c.base.properties = c.base.properties.Set(name, value)
		c.sync()
	}
	return c
}

// WithProperties merges a property bag
func (c *ComponentBuilder) WithProperties(p component.Properties) *ComponentBuilder {
	for _, name := range p.Names() {
		v, _ := p.Get(name)
		c.WithProperty(name, v)
	}
	return c
}

// WithRequirement makes the component conditional
func (c *ComponentBuilder) WithRequirement(r Requirement) *ComponentBuilder {
	if c.builder.mutable() {
		c.base.requirement = r
		c.sync()
	}
	return c
}

// Outcome returns an outcome of the filter being built
func (c *ComponentBuilder) Outcome(category string) FilterOutcome {
	if c.filter == nil {
		c.builder.errs = append(c.builder.errs, dcerrors.Configuration("%s is not a filter and has no outcomes", c.base.name))
		return FilterOutcome{}
	}
	return NewFilterOutcome(c.filter, category)
}

// OutputColumns resolves the output columns of the transformer being built
// from its current configuration. Columns keep their identity across calls
// as long as name and type stay the same.
func (c *ComponentBuilder) OutputColumns() ([]*data.Column, error) {
	if c.transformer == nil {
		return nil, nil
	}
	d := c.base.descriptor
	if d.Create == nil {
		return nil, fmt.Errorf("%s: %w: %s", c.base.name, dcerrors.ErrUnknownComponent, d.Name)
	}
	props, err := c.base.properties.Validate(c.base.name, d.Properties)
	if err != nil {
		return nil, err
	}
	instance, err := d.NewInstance(component.Config{
		Name:          c.base.name,
		Inputs:        c.base.Inputs(),
		Properties:    props,
		ReferenceData: c.builder.referenceData,
	})
	if err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, c.base.name, err)
	}
	specs := instance.(component.Transformer).OutputColumns()

	outputs := make([]*data.Column, len(specs))
	for i, s := range specs {
		if i < len(c.outputs) && c.outputs[i].Name() == s.Name && c.outputs[i].DataType() == normalizedType(s.DataType) {
			outputs[i] = c.outputs[i]
			continue
		}
		outputs[i] = data.NewTransformedColumn(s.Name, s.DataType)
	}
	c.outputs = outputs
	c.sync()
	return append([]*data.Column(nil), outputs...), nil
}

func normalizedType(t data.DataType) data.DataType {
	if t == "" {
		return data.TypeAny
	}
	return t
}

// Output returns the output column at index i, recording an error when it does not exist
func (c *ComponentBuilder) Output(i int) *data.Column {
	cols, err := c.OutputColumns()
	if err != nil {
		c.builder.errs = append(c.builder.errs, err)
		return nil
	}
	if i < 0 || i >= len(cols) {
		c.builder.errs = append(c.builder.errs, dcerrors.Configuration("%s has no output column %d", c.base.name, i))
		return nil
	}
	return cols[i]
}

// Job returns the component job under construction
func (c *ComponentBuilder) Job() ComponentJob {
	switch {
	case c.transformer != nil:
		return c.transformer
	case c.filter != nil:
		return c.filter
	default:
		return c.analyzer
	}
}

// Name returns the component job name
func (c *ComponentBuilder) Name() string { return c.base.name }
