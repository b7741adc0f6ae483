package runner

import (
	"time"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// JobMetrics describes a run when a job level event fires
type JobMetrics struct {
	RunID         string
	StartedAt     time.Time
	Duration      time.Duration
	RowsProcessed int64
	Errors        int
}

// AnalysisListener observes a run. Row and component events are fired from
// the row workers, so implementations must be safe for concurrent use.
type AnalysisListener interface {
	JobBegin(aj *job.AnalysisJob, metrics JobMetrics)
	JobSuccess(aj *job.AnalysisJob, metrics JobMetrics)
	JobFailed(aj *job.AnalysisJob, metrics JobMetrics, err error)
	JobCancelled(aj *job.AnalysisJob, metrics JobMetrics)

	// RowProcessingBegin reports the expected row count, -1 when the datastore cannot count
	RowProcessingBegin(aj *job.AnalysisJob, expectedRows int64)
	RowProcessingProgress(aj *job.AnalysisJob, rowsProcessed int64)
	RowProcessingSuccess(aj *job.AnalysisJob, rowsProcessed int64)

	ComponentBegin(aj *job.AnalysisJob, cj job.ComponentJob)
	// ComponentSuccess carries the result of analyzers, nil for other kinds
	ComponentSuccess(aj *job.AnalysisJob, cj job.ComponentJob, r result.AnalyzerResult)
	// ErrorInComponent is fired for per-row and lifecycle failures. row is nil
	// outside the row loop.
	ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, row data.InputRow, err error)
	ErrorUnknown(aj *job.AnalysisJob, err error)
}

// ListenerAdaptor implements every event as a no-op. Embed it to listen to
// a subset of the events.
type ListenerAdaptor struct{}

func (ListenerAdaptor) JobBegin(*job.AnalysisJob, JobMetrics)             {}
func (ListenerAdaptor) JobSuccess(*job.AnalysisJob, JobMetrics)           {}
func (ListenerAdaptor) JobFailed(*job.AnalysisJob, JobMetrics, error)     {}
func (ListenerAdaptor) JobCancelled(*job.AnalysisJob, JobMetrics)         {}
func (ListenerAdaptor) RowProcessingBegin(*job.AnalysisJob, int64)        {}
func (ListenerAdaptor) RowProcessingProgress(*job.AnalysisJob, int64)     {}
func (ListenerAdaptor) RowProcessingSuccess(*job.AnalysisJob, int64)      {}
func (ListenerAdaptor) ComponentBegin(*job.AnalysisJob, job.ComponentJob) {}
func (ListenerAdaptor) ErrorUnknown(*job.AnalysisJob, error)              {}

func (ListenerAdaptor) ComponentSuccess(*job.AnalysisJob, job.ComponentJob, result.AnalyzerResult) {}

func (ListenerAdaptor) ErrorInComponent(*job.AnalysisJob, job.ComponentJob, data.InputRow, error) {}

// CompositeListener fans events out to several listeners in order
type CompositeListener struct {
	listeners []AnalysisListener
}

// NewCompositeListener combines listeners, skipping nil entries
func NewCompositeListener(listeners ...AnalysisListener) *CompositeListener {
	c := &CompositeListener{}
	for _, l := range listeners {
		c.Add(l)
	}
	return c
}

// Add appends a listener
func (c *CompositeListener) Add(l AnalysisListener) {
	if l == nil {
		return
	}
	c.listeners = append(c.listeners, l)
}

// Len returns the number of listeners
func (c *CompositeListener) Len() int { return len(c.listeners) }

func (c *CompositeListener) JobBegin(aj *job.AnalysisJob, m JobMetrics) {
	for _, l := range c.listeners {
		l.JobBegin(aj, m)
	}
}

func (c *CompositeListener) JobSuccess(aj *job.AnalysisJob, m JobMetrics) {
	for _, l := range c.listeners {
		l.JobSuccess(aj, m)
	}
}

func (c *CompositeListener) JobFailed(aj *job.AnalysisJob, m JobMetrics, err error) {
	for _, l := range c.listeners {
		l.JobFailed(aj, m, err)
	}
}

func (c *CompositeListener) JobCancelled(aj *job.AnalysisJob, m JobMetrics) {
	for _, l := range c.listeners {
		l.JobCancelled(aj, m)
	}
}

func (c *CompositeListener) RowProcessingBegin(aj *job.AnalysisJob, expectedRows int64) {
	for _, l := range c.listeners {
		l.RowProcessingBegin(aj, expectedRows)
	}
}

func (c *CompositeListener) RowProcessingProgress(aj *job.AnalysisJob, rowsProcessed int64) {
	for _, l := range c.listeners {
		l.RowProcessingProgress(aj, rowsProcessed)
	}
}

func (c *CompositeListener) RowProcessingSuccess(aj *job.AnalysisJob, rowsProcessed int64) {
	for _, l := range c.listeners {
		l.RowProcessingSuccess(aj, rowsProcessed)
	}
}

func (c *CompositeListener) ComponentBegin(aj *job.AnalysisJob, cj job.ComponentJob) {
	for _, l := range c.listeners {
		l.ComponentBegin(aj, cj)
	}
}

func (c *CompositeListener) ComponentSuccess(aj *job.AnalysisJob, cj job.ComponentJob, r result.AnalyzerResult) {
	for _, l := range c.listeners {
		l.ComponentSuccess(aj, cj, r)
	}
}

func (c *CompositeListener) ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, row data.InputRow, err error) {
	for _, l := range c.listeners {
		l.ErrorInComponent(aj, cj, row, err)
	}
}

func (c *CompositeListener) ErrorUnknown(aj *job.AnalysisJob, err error) {
	for _, l := range c.listeners {
		l.ErrorUnknown(aj, err)
	}
}
