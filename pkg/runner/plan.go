package runner

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/component"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
)

// plan holds the component instances of one run and the row chain built
// over them
type plan struct {
	// instances are in process order
	instances []*instance
	// analyzers are in declaration order
	analyzers []*analyzerConsumer
	handler   *ConsumeRowHandler
	// compactable is false when a component depends on row identity
	compactable bool
}

// newPlan creates and validates one instance per component job. Failures
// are configuration errors. Nothing is initialized yet.
func newPlan(aj *job.AnalysisJob, logger *zap.Logger) (*plan, error) {
	finder := job.NewSourceColumnFinder(aj)
	ordered, err := job.ProcessOrder(aj.ComponentJobs(), finder)
	if err != nil {
		return nil, err
	}

	p := &plan{compactable: true}
	byJob := make(map[*job.AnalyzerJob]*analyzerConsumer)
	consumers := make([]rowConsumer, 0, len(ordered))
	for _, cj := range ordered {
		inst, err := newInstance(aj, cj, logger)
		if err != nil {
			return nil, err
		}
		p.instances = append(p.instances, inst)
		if cj.Descriptor().RowIDSensitive {
			p.compactable = false
		}

		g := requirementGate{requirement: cj.Requirement()}
		if g.requirement == nil {
			for _, src := range finder.InheritedRequirementJobs(cj) {
				g.inherited = append(g.inherited, src.Requirement())
			}
		}

		switch typed := cj.(type) {
		case *job.TransformerJob:
			t := inst.component.(component.Transformer)
			outputs := typed.Outputs()
			if declared := t.OutputColumns(); len(declared) != len(outputs) {
				return nil, dcerrors.Configuration("%s declares %d output columns but the job has %d", cj.Name(), len(declared), len(outputs))
			}
			consumers = append(consumers, &transformerConsumer{inst: inst, g: g, transformer: t, outputs: outputs})
		case *job.FilterJob:
			consumers = append(consumers, &filterConsumer{inst: inst, g: g, filter: inst.component.(component.Filter), fj: typed})
		case *job.AnalyzerJob:
			a := &analyzerConsumer{inst: inst, g: g, analyzer: inst.component.(component.Analyzer), aj: typed}
			byJob[typed] = a
			consumers = append(consumers, a)
		default:
			return nil, dcerrors.Configuration("unsupported component job %T", cj)
		}
	}

	for _, a := range aj.Analyzers() {
		p.analyzers = append(p.analyzers, byJob[a])
	}
	p.handler = &ConsumeRowHandler{consumers: batchAnalyzers(consumers)}
	return p, nil
}

func newInstance(aj *job.AnalysisJob, cj job.ComponentJob, logger *zap.Logger) (*instance, error) {
	d := cj.Descriptor()
	c, err := d.NewInstance(component.Config{
		Name:          cj.Name(),
		Inputs:        cj.Inputs(),
		Properties:    cj.Properties(),
		ReferenceData: aj.ReferenceData(),
		Logger:        logger.With(zap.String("component", cj.Name())),
	})
	if err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, fmt.Sprintf("cannot create %s", cj.Name()),
			newComponentError(cj, 0, PhaseValidate, err))
	}
	if v, ok := c.(component.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, dcerrors.NewError(dcerrors.CodeConfiguration, fmt.Sprintf("invalid configuration of %s", cj.Name()),
				newComponentError(cj, 0, PhaseValidate, err))
		}
	}
	inst := &instance{job: cj, component: c}
	if !component.IsConcurrent(d, c) {
		inst.mu = &sync.Mutex{}
	}
	return inst, nil
}
