package runner

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
)

// instance is a component created for one run
type instance struct {
	job       job.ComponentJob
	component component.Component
	// mu guards components that are not safe for concurrent rows
	mu          *sync.Mutex
	initialized bool
}

func (i *instance) invoke(fn func() error) error {
	if i.mu != nil {
		i.mu.Lock()
		defer i.mu.Unlock()
	}
	return fn()
}

// requirementGate decides whether a consumer runs on a row. A component
// without a requirement of its own inherits the requirements of the
// transformers its inputs come from: it runs when any of them is satisfied.
type requirementGate struct {
	requirement job.Requirement
	inherited   []job.Requirement
}

func (g requirementGate) satisfied(row data.InputRow, outcomes *job.FilterOutcomes) bool {
	if g.requirement != nil {
		return g.requirement.IsSatisfied(row, outcomes)
	}
	if len(g.inherited) == 0 {
		return true
	}
	for _, r := range g.inherited {
		if r.IsSatisfied(row, outcomes) {
			return true
		}
	}
	return false
}

func (g requirementGate) same(other requirementGate) bool {
	if !sameRequirement(g.requirement, other.requirement) || len(g.inherited) != len(other.inherited) {
		return false
	}
	for i := range g.inherited {
		if !sameRequirement(g.inherited[i], other.inherited[i]) {
			return false
		}
	}
	return true
}

func sameRequirement(a, b job.Requirement) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// rowConsumer is one step of the per-row chain
type rowConsumer interface {
	// jobs are the component jobs served by the consumer
	jobs() []job.ComponentJob
	gate() requirementGate
	// consume returns the row handed to the following consumers
	consume(row data.InputRow, distinctCount int, outcomes *job.FilterOutcomes) (data.InputRow, *ComponentError)
}

type transformerConsumer struct {
	inst        *instance
	g           requirementGate
	transformer component.Transformer
	outputs     []*data.Column
}

func (c *transformerConsumer) jobs() []job.ComponentJob { return []job.ComponentJob{c.inst.job} }
func (c *transformerConsumer) gate() requirementGate    { return c.g }

func (c *transformerConsumer) consume(row data.InputRow, _ int, _ *job.FilterOutcomes) (data.InputRow, *ComponentError) {
	var values []interface{}
	err := c.inst.invoke(func() error {
		var err error
		values, err = c.transformer.Transform(row)
		return err
	})
	if err != nil {
		return row, newComponentError(c.inst.job, row.ID(), PhaseProcess, err)
	}
	if len(values) != len(c.outputs) {
		return row, newComponentError(c.inst.job, row.ID(), PhaseProcess,
			fmt.Errorf("transformer returned %d values for %d output columns", len(values), len(c.outputs)))
	}
	out := data.NewTransformedRow(row)
	for i, col := range c.outputs {
		if err := out.Add(col, values[i]); err != nil {
			return row, newComponentError(c.inst.job, row.ID(), PhaseProcess, err)
		}
	}
	return out, nil
}

type filterConsumer struct {
	inst   *instance
	g      requirementGate
	filter component.Filter
	fj     *job.FilterJob
}

func (c *filterConsumer) jobs() []job.ComponentJob { return []job.ComponentJob{c.inst.job} }
func (c *filterConsumer) gate() requirementGate    { return c.g }

func (c *filterConsumer) consume(row data.InputRow, _ int, outcomes *job.FilterOutcomes) (data.InputRow, *ComponentError) {
	var category string
	err := c.inst.invoke(func() error {
		var err error
		category, err = c.filter.Categorize(row)
		return err
	})
	if err != nil {
		return row, newComponentError(c.inst.job, row.ID(), PhaseProcess, err)
	}
	if !c.fj.Descriptor().HasCategory(category) {
		return row, newComponentError(c.inst.job, row.ID(), PhaseProcess,
			fmt.Errorf("filter returned unknown category %q", category))
	}
	outcomes.Add(c.fj.Outcome(category))
	return row, nil
}

type analyzerConsumer struct {
	inst     *instance
	g        requirementGate
	analyzer component.Analyzer
	aj       *job.AnalyzerJob
}

func (c *analyzerConsumer) jobs() []job.ComponentJob { return []job.ComponentJob{c.inst.job} }
func (c *analyzerConsumer) gate() requirementGate    { return c.g }

func (c *analyzerConsumer) consume(row data.InputRow, distinctCount int, _ *job.FilterOutcomes) (data.InputRow, *ComponentError) {
	err := c.inst.invoke(func() error {
		return c.analyzer.Run(row, distinctCount)
	})
	if err != nil {
		return row, newComponentError(c.inst.job, row.ID(), PhaseProcess, err)
	}
	return row, nil
}

// batchConsumer runs analyzers that share inputs and requirement in one
// pass, evaluating the requirement once.
type batchConsumer struct {
	g       requirementGate
	inputs  []*data.Column
	members []*analyzerConsumer
}

func (c *batchConsumer) jobs() []job.ComponentJob {
	out := make([]job.ComponentJob, len(c.members))
	for i, m := range c.members {
		out[i] = m.inst.job
	}
	return out
}

func (c *batchConsumer) gate() requirementGate { return c.g }

func (c *batchConsumer) consume(row data.InputRow, distinctCount int, outcomes *job.FilterOutcomes) (data.InputRow, *ComponentError) {
	for _, m := range c.members {
		if _, err := m.consume(row, distinctCount, outcomes); err != nil {
			return row, err
		}
	}
	return row, nil
}

func (c *batchConsumer) accepts(a *analyzerConsumer) bool {
	if !c.g.same(a.g) {
		return false
	}
	inputs := a.inst.job.Inputs()
	if len(inputs) != len(c.inputs) {
		return false
	}
	for i := range inputs {
		if inputs[i] != c.inputs[i] {
			return false
		}
	}
	return true
}

// batchAnalyzers merges consecutive analyzer consumers with identical
// inputs and requirement
func batchAnalyzers(consumers []rowConsumer) []rowConsumer {
	out := make([]rowConsumer, 0, len(consumers))
	for _, c := range consumers {
		a, ok := c.(*analyzerConsumer)
		if !ok {
			out = append(out, c)
			continue
		}
		if n := len(out); n > 0 {
			if b, ok := out[n-1].(*batchConsumer); ok && b.accepts(a) {
				b.members = append(b.members, a)
				continue
			}
		}
		out = append(out, &batchConsumer{g: a.g, inputs: a.inst.job.Inputs(), members: []*analyzerConsumer{a}})
	}
	for i, c := range out {
		if b, ok := c.(*batchConsumer); ok && len(b.members) == 1 {
			out[i] = b.members[0]
		}
	}
	return out
}
