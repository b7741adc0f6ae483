package runner

import (
	"fmt"

	"github.com/wehubfusion/datacleaner/pkg/job"
)

// Phases in which a component can fail
const (
	PhaseValidate   = "validate"
	PhaseInitialize = "initialize"
	PhaseProcess    = "process"
	PhaseResult     = "result"
	PhaseClose      = "close"
)

// ComponentError attributes an error to the component job that raised it.
type ComponentError struct {
	// Job is the component job that failed
	Job job.ComponentJob
	// RowID is the row being processed, 0 outside the row loop
	RowID int64
	// Phase indicates which lifecycle phase failed
	Phase string
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ComponentError) Error() string {
	name := "<unknown>"
	if e.Job != nil {
		name = e.Job.String()
	}
	if e.RowID > 0 {
		return fmt.Sprintf("error in %s at row %d during %s: %v", name, e.RowID, e.Phase, e.Cause)
	}
	return fmt.Sprintf("error in %s during %s: %v", name, e.Phase, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ComponentError) Unwrap() error {
	return e.Cause
}

func newComponentError(cj job.ComponentJob, rowID int64, phase string, cause error) *ComponentError {
	return &ComponentError{
		Job:   cj,
		RowID: rowID,
		Phase: phase,
		Cause: cause,
	}
}
