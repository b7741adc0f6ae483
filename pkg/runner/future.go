package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// ResultFuture is the handle of a running analysis job. Errors accumulate
// while the run progresses; results become readable once the run is done
// and never change afterwards. Readers of results and errors block until
// the run is done.
type ResultFuture struct {
	runID     string
	job       *job.AnalysisJob
	startedAt time.Time
	listener  AnalysisListener
	stop      context.CancelFunc
	done      chan struct{}

	mu         sync.RWMutex
	finishedAt time.Time
	results    map[*job.AnalyzerJob]result.AnalyzerResult
	errs       []error
	cancelled  bool
	finished   bool

	rows atomic.Int64
}

func newResultFuture(runID string, aj *job.AnalysisJob, listener AnalysisListener, stop context.CancelFunc) *ResultFuture {
	return &ResultFuture{
		runID:     runID,
		job:       aj,
		startedAt: time.Now(),
		listener:  listener,
		stop:      stop,
		done:      make(chan struct{}),
		results:   make(map[*job.AnalyzerJob]result.AnalyzerResult),
	}
}

// RunID identifies the run
func (f *ResultFuture) RunID() string { return f.runID }

// Job returns the job being run
func (f *ResultFuture) Job() *job.AnalysisJob { return f.job }

// StartedAt returns the time the run was submitted
func (f *ResultFuture) StartedAt() time.Time { return f.startedAt }

// Done is closed when the run has finished
func (f *ResultFuture) Done() <-chan struct{} { return f.done }

// Await blocks until the run has finished
func (f *ResultFuture) Await() {
	<-f.done
}

// AwaitContext blocks until the run has finished or ctx is done. It does
// not cancel the run.
func (f *ResultFuture) AwaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDone reports whether the run has finished
func (f *ResultFuture) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the run finished without errors and was not cancelled
func (f *ResultFuture) IsSuccessful() bool {
	if !f.IsDone() {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.cancelled && f.failuresLocked() == 0
}

// IsErrornous reports whether any error other than the cancellation
// marker has been recorded. It does not wait for the run to finish.
func (f *ResultFuture) IsErrornous() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.failuresLocked() > 0
}

// IsCancelled reports whether the run was cancelled
func (f *ResultFuture) IsCancelled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cancelled
}

// Cancel stops the run. Rows already dispatched finish and results
// accumulated so far stay available. Cancelling a finished run is a no-op.
func (f *ResultFuture) Cancel() {
	if !f.markCancelled() {
		return
	}
	f.stop()
}

// markCancelled records the cancellation marker and notifies listeners
// once. It returns false if the run was already cancelled or finished.
func (f *ResultFuture) markCancelled() bool {
	f.mu.Lock()
	if f.cancelled || f.finished {
		f.mu.Unlock()
		return false
	}
	f.cancelled = true
	f.errs = append(f.errs, &dcerrors.CancellationError{RunID: f.runID})
	metrics := f.metricsLocked()
	f.mu.Unlock()

	f.listener.JobCancelled(f.job, metrics)
	return true
}

// Errors blocks until the run has finished and returns every recorded
// error, including the cancellation marker
func (f *ResultFuture) Errors() []error {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]error(nil), f.errs...)
}

// Results blocks until the run has finished and returns the analyzer
// results in declaration order of the analyzer jobs
func (f *ResultFuture) Results() []result.AnalyzerResult {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []result.AnalyzerResult
	for _, aj := range f.job.Analyzers() {
		if r, ok := f.results[aj]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Result blocks until the run has finished and returns the result of an analyzer job
func (f *ResultFuture) Result(cj job.ComponentJob) (result.AnalyzerResult, bool) {
	<-f.done
	aj, ok := cj.(*job.AnalyzerJob)
	if !ok {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.results[aj]
	return r, ok
}

// ResultMap blocks until the run has finished and returns the results keyed
// by the producing analyzer job
func (f *ResultFuture) ResultMap() map[*job.AnalyzerJob]result.AnalyzerResult {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[*job.AnalyzerJob]result.AnalyzerResult, len(f.results))
	for k, v := range f.results {
		out[k] = v
	}
	return out
}

// RowsProcessed returns the number of rows pushed through the chain so
// far, counting duplicates
func (f *ResultFuture) RowsProcessed() int64 {
	return f.rows.Load()
}

// Snapshot blocks until the run has finished and detaches the outcome from
// the job graph, keyed by analyzer job names
func (f *ResultFuture) Snapshot() *result.AnalysisResult {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()

	status := result.StatusSuccess
	switch {
	case f.cancelled:
		status = result.StatusCancelled
	case f.failuresLocked() > 0:
		status = result.StatusFailed
	}
	snapshot := &result.AnalysisResult{
		RunID:      f.runID,
		JobName:    f.job.Name(),
		Status:     status,
		StartedAt:  f.startedAt,
		FinishedAt: f.finishedAt,
		Results:    make(map[string]result.AnalyzerResult, len(f.results)),
	}
	for aj, r := range f.results {
		snapshot.Results[aj.Name()] = r
	}
	for _, err := range f.errs {
		snapshot.Errors = append(snapshot.Errors, err.Error())
	}
	return snapshot
}

func (f *ResultFuture) addError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *ResultFuture) setResult(aj *job.AnalyzerJob, r result.AnalyzerResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[aj] = r
}

func (f *ResultFuture) metrics() JobMetrics {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.metricsLocked()
}

func (f *ResultFuture) metricsLocked() JobMetrics {
	end := f.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return JobMetrics{
		RunID:         f.runID,
		StartedAt:     f.startedAt,
		Duration:      end.Sub(f.startedAt),
		RowsProcessed: f.rows.Load(),
		Errors:        f.failuresLocked(),
	}
}

func (f *ResultFuture) failuresLocked() int {
	n := 0
	for _, err := range f.errs {
		if !dcerrors.IsCancellation(err) {
			n++
		}
	}
	return n
}

// complete marks the run finished. After complete the future is immutable.
func (f *ResultFuture) complete() {
	f.mu.Lock()
	f.finished = true
	f.finishedAt = time.Now()
	f.mu.Unlock()
	close(f.done)
}
