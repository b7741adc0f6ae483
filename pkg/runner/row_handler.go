package runner

import (
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
)

// ConsumeRowResult is the outcome of one row's chain
type ConsumeRowResult struct {
	// Row is the row as seen by the last consumer, including virtual columns
	Row      data.InputRow
	Outcomes *job.FilterOutcomes
	// Err is set when a component failed. The consumers after it did not run.
	Err *ComponentError
}

// ConsumeRowHandler runs the ordered consumer chain of a run on single rows.
// It is safe for concurrent use as long as the components are guarded.
type ConsumeRowHandler struct {
	consumers []rowConsumer
}

// Consume runs every consumer whose requirement holds on row
func (h *ConsumeRowHandler) Consume(row data.InputRow, distinctCount int) ConsumeRowResult {
	outcomes := job.NewFilterOutcomes()
	current := row
	for _, c := range h.consumers {
		if !c.gate().satisfied(current, outcomes) {
			continue
		}
		next, err := c.consume(current, distinctCount, outcomes)
		if err != nil {
			return ConsumeRowResult{Row: current, Outcomes: outcomes, Err: err}
		}
		current = next
	}
	return ConsumeRowResult{Row: current, Outcomes: outcomes}
}

// Jobs returns the component jobs in execution order
func (h *ConsumeRowHandler) Jobs() []job.ComponentJob {
	var out []job.ComponentJob
	for _, c := range h.consumers {
		out = append(out, c.jobs()...)
	}
	return out
}

// Steps returns the number of chain steps after analyzer batching
func (h *ConsumeRowHandler) Steps() int { return len(h.consumers) }
