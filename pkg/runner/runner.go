// Package runner executes analysis jobs. A run reads the rows of the job's
// datastore, dispatches them in chunks to a worker pool and pushes every
// row through the ordered chain of filters, transformers and analyzers.
// The caller observes the run through a ResultFuture and an
// AnalysisListener.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/internal/tracing"
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/concurrency"
	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Runner executes analysis jobs. A Runner is safe for concurrent use and
// may run many jobs at once.
type Runner struct {
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
	tracing *tracing.Provider
}

// NewRunner creates a Runner. If opts.Tracing is set an OTLP exporter is
// installed; Close shuts it down.
func NewRunner(opts Options) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("datacleaner/runner"),
	}
	r.tracing = installTracing(opts.Tracing, logger)
	return r, nil
}

// Close releases the resources of the runner, including tracing
func (r *Runner) Close() error {
	return r.tracing.Shutdown(context.Background())
}

// Run validates aj and starts it asynchronously. Configuration errors are
// returned synchronously; everything that happens after validation is
// reported through the future. Cancelling ctx cancels the run.
func (r *Runner) Run(ctx context.Context, aj *job.AnalysisJob) (*ResultFuture, error) {
	if aj == nil {
		return nil, dcerrors.Configuration("analysis job cannot be nil")
	}
	if aj.Datastore() == nil {
		return nil, dcerrors.Configuration("job %q has no datastore", aj.Name())
	}
	p, err := newPlan(aj, r.logger)
	if err != nil {
		return nil, err
	}

	var listener AnalysisListener = ListenerAdaptor{}
	if r.opts.Listener != nil {
		listener = r.opts.Listener
	}
	runCtx, stop := context.WithCancel(ctx)
	future := newResultFuture(uuid.NewString(), aj, listener, stop)
	go r.execute(runCtx, future, p)
	return future, nil
}

// RunAndAwait runs aj and blocks until it has finished
func (r *Runner) RunAndAwait(ctx context.Context, aj *job.AnalysisJob) (*ResultFuture, error) {
	f, err := r.Run(ctx, aj)
	if err != nil {
		return nil, err
	}
	f.Await()
	return f, nil
}

// runState tracks the first fatal error of a run
type runState struct {
	mu    sync.Mutex
	fatal error
	stop  context.CancelFunc
}

func (s *runState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
		s.stop()
	}
}

func (s *runState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (r *Runner) execute(ctx context.Context, f *ResultFuture, p *plan) {
	defer f.stop()
	aj := f.job
	logger := r.logger.With(zap.String("job", aj.Name()), zap.String("runID", f.runID))

	ctx, span := r.tracer.Start(ctx, "runner.Run",
		trace.WithAttributes(
			attribute.String("job.name", aj.Name()),
			attribute.String("run.id", f.runID),
			attribute.Int("components", len(p.instances)),
		))
	defer span.End()

	f.listener.JobBegin(aj, f.metrics())
	logger.Info("Analysis job started",
		zap.Int("components", len(p.instances)),
		zap.Int("chainSteps", p.handler.Steps()),
		zap.Int("workers", r.opts.effectiveWorkers()))

	state := &runState{stop: f.stop}
	if err := r.initialize(ctx, f, p); err != nil {
		state.fail(err)
	} else {
		r.processRows(ctx, f, p, state, logger)
		r.collectResults(state, f, p)
	}
	r.closeInstances(f, p, logger)

	fatal := state.err()
	if fatal == nil && ctx.Err() != nil {
		// the caller's context ended the run
		f.markCancelled()
	}

	metrics := f.metrics()
	span.SetAttributes(attribute.Int64("rows.processed", metrics.RowsProcessed))
	switch {
	case f.IsCancelled():
		// listeners were notified by the cancellation itself
		span.SetStatus(codes.Error, "cancelled")
		logger.Info("Analysis job cancelled", zap.Int64("rows", metrics.RowsProcessed))
	case fatal != nil:
		span.RecordError(fatal)
		span.SetStatus(codes.Error, fatal.Error())
		logger.Error("Analysis job failed", zap.Error(fatal), zap.Int64("rows", metrics.RowsProcessed))
		f.listener.JobFailed(aj, metrics, fatal)
	case metrics.Errors > 0:
		err := fmt.Errorf("%d component error(s) during run", metrics.Errors)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Analysis job finished with errors", zap.Int("errors", metrics.Errors), zap.Int64("rows", metrics.RowsProcessed))
		f.listener.JobFailed(aj, metrics, err)
	default:
		span.SetStatus(codes.Ok, "analysis job completed")
		logger.Info("Analysis job completed", zap.Int64("rows", metrics.RowsProcessed), zap.Duration("duration", metrics.Duration))
		f.listener.JobSuccess(aj, metrics)
	}
	f.complete()
}

func (r *Runner) initialize(ctx context.Context, f *ResultFuture, p *plan) error {
	for _, inst := range p.instances {
		if init, ok := inst.component.(component.Initializer); ok {
			if err := init.Initialize(ctx); err != nil {
				cerr := newComponentError(inst.job, 0, PhaseInitialize, err)
				f.addError(cerr)
				f.listener.ErrorInComponent(f.job, inst.job, nil, cerr)
				return cerr
			}
		}
		inst.initialized = true
		f.listener.ComponentBegin(f.job, inst.job)
	}
	return nil
}

func (r *Runner) processRows(ctx context.Context, f *ResultFuture, p *plan, state *runState, logger *zap.Logger) {
	aj := f.job
	ds := aj.Datastore()

	expected := int64(-1)
	if counter, ok := ds.(data.RowCounter); ok {
		if n, err := counter.CountRows(ctx); err == nil {
			expected = n
		} else {
			logger.Warn("Failed to count rows", zap.String("datastore", ds.Name()), zap.Error(err))
		}
	}
	f.listener.RowProcessingBegin(aj, expected)

	cursor, err := ds.Open(ctx, data.Query{Columns: aj.SourceColumns()})
	if err != nil {
		ferr := dcerrors.Datastore(fmt.Sprintf("cannot open datastore %s", ds.Name()), err)
		f.addError(ferr)
		f.listener.ErrorUnknown(aj, ferr)
		state.fail(ferr)
		return
	}
	defer cursor.Close()

	var offset int64
	if o, ok := ds.(data.RowOffsetter); ok {
		offset = o.FirstRowOffset()
	}
	header := data.NewHeader(aj.SourceColumns())

	var breaker *concurrency.Breaker
	if r.opts.MaxConsecutiveErrors > 0 {
		breaker = concurrency.NewBreaker(int(r.opts.MaxConsecutiveErrors), 0)
	}

	var skipped atomic.Int64
	interval := r.opts.ProgressInterval
	process := func(ctx context.Context, workerID int, c chunk) {
		for _, cr := range c {
			if ctx.Err() != nil {
				skipped.Add(int64(cr.count))
				continue
			}
			res := p.handler.Consume(cr.row, cr.count)
			n := f.rows.Add(int64(cr.count))
			if res.Err != nil {
				r.handleRowError(f, state, breaker, res, logger)
			} else if breaker != nil {
				breaker.Success()
			}
			if interval > 0 && n/interval != (n-int64(cr.count))/interval {
				f.listener.RowProcessingProgress(aj, n)
			}
		}
	}

	pool := newWorkerPool(r.opts.effectiveWorkers(), r.opts.BufferSize, process, r.opts.Limiter, logger)
	pool.Start(ctx)

	compactRows := r.opts.CompactDuplicates && p.compactable
	if r.opts.CompactDuplicates && !compactRows {
		logger.Debug("Duplicate compaction disabled, job depends on row identity")
	}

	batchSize := r.opts.BatchSize
	pending := make(chunk, 0, batchSize)
	submit := func() bool {
		c := pending
		pending = make(chunk, 0, batchSize)
		if compactRows {
			c = compact(c)
		}
		return pool.Submit(ctx, c)
	}

	var seq int64
	for ctx.Err() == nil {
		values, err := cursor.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			ferr := dcerrors.Datastore(fmt.Sprintf("cannot read row %d of %s", offset+seq+1, ds.Name()), err)
			f.addError(ferr)
			f.listener.ErrorUnknown(aj, ferr)
			state.fail(ferr)
			break
		}
		seq++
		pending = append(pending, countedRow{row: data.NewSourceRow(offset+seq, header, values), count: 1})
		if len(pending) >= batchSize && !submit() {
			break
		}
	}
	if len(pending) > 0 && ctx.Err() == nil {
		submit()
	}
	pool.Close()

	chunks, rejected := pool.Stats()
	logger.Debug("Row processing finished",
		zap.Int64("rowsRead", seq),
		zap.Int64("rowsProcessed", f.rows.Load()),
		zap.Int64("rowsSkipped", skipped.Load()),
		zap.Int64("chunks", chunks),
		zap.Int64("chunksRejected", rejected))
	if r.opts.Limiter != nil {
		ls := r.opts.Limiter.Stats()
		logger.Debug("Shared limiter usage",
			zap.Int("capacity", ls.Capacity),
			zap.Int("peak", ls.Peak),
			zap.Duration("waited", ls.Waited))
	}
	if state.err() == nil && ctx.Err() == nil {
		f.listener.RowProcessingSuccess(aj, f.rows.Load())
	}
}

func (r *Runner) handleRowError(f *ResultFuture, state *runState, breaker *concurrency.Breaker, res ConsumeRowResult, logger *zap.Logger) {
	cerr := res.Err
	f.addError(cerr)
	f.listener.ErrorInComponent(f.job, cerr.Job, res.Row, cerr)
	logger.Warn("Component failed on row",
		zap.String("component", cerr.Job.Name()),
		zap.Int64("row", cerr.RowID),
		zap.Error(cerr.Cause))

	if dcerrors.IsFatal(cerr) {
		state.fail(cerr)
		return
	}
	if breaker != nil && breaker.Failure() {
		ferr := dcerrors.Fatal(fmt.Errorf("%d consecutive rows failed, last: %w", breaker.ConsecutiveFailures(), cerr))
		f.addError(ferr)
		state.fail(ferr)
	}
}

// collectResults asks every analyzer for its result, also after
// cancellation, so rows already processed stay visible
func (r *Runner) collectResults(state *runState, f *ResultFuture, p *plan) {
	for _, a := range p.analyzers {
		var res result.AnalyzerResult
		err := a.inst.invoke(func() error {
			var err error
			res, err = a.analyzer.Result()
			return err
		})
		if err != nil {
			cerr := newComponentError(a.inst.job, 0, PhaseResult, err)
			f.addError(cerr)
			f.listener.ErrorInComponent(f.job, a.inst.job, nil, cerr)
			continue
		}
		if res != nil {
			f.setResult(a.aj, res)
		}
		f.listener.ComponentSuccess(f.job, a.inst.job, res)
	}
	if state.err() != nil {
		return
	}
	for _, inst := range p.instances {
		if inst.job.Kind() != component.KindAnalyzer {
			f.listener.ComponentSuccess(f.job, inst.job, nil)
		}
	}
}

// closeInstances closes every initialized instance once, in reverse order
func (r *Runner) closeInstances(f *ResultFuture, p *plan, logger *zap.Logger) {
	for i := len(p.instances) - 1; i >= 0; i-- {
		inst := p.instances[i]
		if !inst.initialized {
			continue
		}
		inst.initialized = false
		closer, ok := inst.component.(component.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			cerr := newComponentError(inst.job, 0, PhaseClose, err)
			f.addError(cerr)
			f.listener.ErrorInComponent(f.job, inst.job, nil, cerr)
			logger.Warn("Failed to close component", zap.String("component", inst.job.Name()), zap.Error(err))
		}
	}
}

// compact merges identical rows of a chunk. The first occurrence keeps its
// row ID and carries the multiplicity.
func compact(c chunk) chunk {
	if len(c) < 2 {
		return c
	}
	index := make(map[string]int, len(c))
	out := make(chunk, 0, len(c))
	for _, cr := range c {
		key := rowKey(cr.row.RawValues())
		if i, ok := index[key]; ok {
			out[i].count += cr.count
			continue
		}
		index[key] = len(out)
		out = append(out, cr)
	}
	return out
}

func rowKey(values []interface{}) string {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%T:%v\x00", v, v)
	}
	return b.String()
}

// JoinErrors combines the errors of a future into one error, nil when there are none
func JoinErrors(f *ResultFuture) error {
	return errors.Join(f.Errors()...)
}
