// Package job models analysis jobs: an immutable graph of transformer,
// filter and analyzer jobs over the source columns of a datastore, the
// filter outcomes and requirements that make the graph conditional, and
// the builder and YAML reader that produce jobs.
package job

import (
	"fmt"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
)

// ComponentJob is the configured use of a component within a job
type ComponentJob interface {
	// Name is unique within the job
	Name() string
	Kind() component.Kind
	Descriptor() *component.Descriptor
	Properties() component.Properties
	Inputs() []*data.Column
	// Requirement returns nil for unconditional components
	Requirement() Requirement
	String() string
}

type componentJob struct {
	name        string
	descriptor  *component.Descriptor
	properties  component.Properties
	inputs      []*data.Column
	requirement Requirement
}

func (j *componentJob) Name() string                      { return j.name }
func (j *componentJob) Kind() component.Kind              { return j.descriptor.Kind }
func (j *componentJob) Descriptor() *component.Descriptor { return j.descriptor }
func (j *componentJob) Properties() component.Properties  { return j.properties }
func (j *componentJob) Requirement() Requirement          { return j.requirement }

func (j *componentJob) Inputs() []*data.Column {
	return append([]*data.Column(nil), j.inputs...)
}

func (j *componentJob) String() string {
	return fmt.Sprintf("%s[%s]", j.descriptor.Kind, j.name)
}

// TransformerJob produces virtual output columns
type TransformerJob struct {
	componentJob
	outputs []*data.Column
}

// Outputs returns the columns produced by the transformer
func (j *TransformerJob) Outputs() []*data.Column {
	return append([]*data.Column(nil), j.outputs...)
}

// FilterJob produces exactly one outcome per row
type FilterJob struct {
	componentJob
}

// Outcome returns the outcome of this filter for category
func (j *FilterJob) Outcome(category string) FilterOutcome {
	return NewFilterOutcome(j, category)
}

// Outcomes returns every possible outcome of the filter
func (j *FilterJob) Outcomes() []FilterOutcome {
	out := make([]FilterOutcome, len(j.descriptor.Categories))
	for i, c := range j.descriptor.Categories {
		out[i] = NewFilterOutcome(j, c)
	}
	return out
}

// AnalyzerJob produces a result
type AnalyzerJob struct {
	componentJob
}

// AnalysisJob is an immutable component graph over the source columns of a
// datastore. It carries no execution state and may be run many times.
type AnalysisJob struct {
	name          string
	datastore     data.Datastore
	sourceColumns []*data.Column
	transformers  []*TransformerJob
	filters       []*FilterJob
	analyzers     []*AnalyzerJob
	referenceData *refdata.Catalog
	// order keeps every component job in declaration order
	order []ComponentJob
}

func (a *AnalysisJob) Name() string              { return a.name }
func (a *AnalysisJob) Datastore() data.Datastore { return a.datastore }

// ReferenceData is the catalog components resolve dictionaries, synonym
// catalogs and string patterns from
func (a *AnalysisJob) ReferenceData() *refdata.Catalog { return a.referenceData }

func (a *AnalysisJob) SourceColumns() []*data.Column {
	return append([]*data.Column(nil), a.sourceColumns...)
}

func (a *AnalysisJob) Transformers() []*TransformerJob {
	return append([]*TransformerJob(nil), a.transformers...)
}

func (a *AnalysisJob) Filters() []*FilterJob {
	return append([]*FilterJob(nil), a.filters...)
}

func (a *AnalysisJob) Analyzers() []*AnalyzerJob {
	return append([]*AnalyzerJob(nil), a.analyzers...)
}

// ComponentJobs returns every component job in declaration order
func (a *AnalysisJob) ComponentJobs() []ComponentJob {
	return append([]ComponentJob(nil), a.order...)
}

// Component finds a component job by name
func (a *AnalysisJob) Component(name string) (ComponentJob, bool) {
	for _, cj := range a.order {
		if cj.Name() == name {
			return cj, true
		}
	}
	return nil, false
}

// WithDatastore returns a copy reading from ds. Component jobs are shared,
// so results of both jobs are keyed by the same component jobs.
func (a *AnalysisJob) WithDatastore(ds data.Datastore) *AnalysisJob {
	clone := *a
	clone.datastore = ds
	return &clone
}

func (a *AnalysisJob) String() string {
	return fmt.Sprintf("AnalysisJob[%s: %d transformers, %d filters, %d analyzers]",
		a.name, len(a.transformers), len(a.filters), len(a.analyzers))
}
