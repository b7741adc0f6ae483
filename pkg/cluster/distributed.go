package cluster

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/runner"
)

// PartitionResult is the outcome of one partition run
type PartitionResult struct {
	RunID      string
	JobName    string
	Partition  Partition
	Partitions int
	Result     *result.AnalysisResult
}

// PartialPublisher ships partition results to a remote collector
type PartialPublisher interface {
	PublishPartial(ctx context.Context, pr *PartitionResult) error
}

// Options configures a DistributedRunner
type Options struct {
	// Partitions is the number of row partitions a job is split into
	Partitions int

	// Publisher receives every partition result when set
	Publisher PartialPublisher

	Logger *zap.Logger
}

// DefaultOptions returns one partition per CPU
func DefaultOptions() Options {
	return Options{Partitions: runtime.NumCPU()}
}

func (o Options) WithPartitions(n int) Options {
	o.Partitions = n
	return o
}

func (o Options) WithPublisher(p PartialPublisher) Options {
	o.Publisher = p
	return o
}

func (o Options) WithLogger(l *zap.Logger) Options {
	o.Logger = l
	return o
}

// DistributedRunner runs a job as concurrent partition runs on a local
// runner and reduces their results
type DistributedRunner struct {
	runner *runner.Runner
	opts   Options
	logger *zap.Logger
}

// NewDistributedRunner creates a DistributedRunner on top of r
func NewDistributedRunner(r *runner.Runner, opts Options) (*DistributedRunner, error) {
	if r == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if opts.Partitions < 1 {
		return nil, dcerrors.Configuration("partitions must be at least 1, got %d", opts.Partitions)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedRunner{runner: r, opts: opts, logger: logger}, nil
}

// Run splits the rows of the job's datastore, runs every partition and
// returns the reduced snapshot. Configuration and distributability errors
// are returned before any row is read; failures inside partitions are
// recorded on the snapshot.
func (d *DistributedRunner) Run(ctx context.Context, aj *job.AnalysisJob) (*result.AnalysisResult, error) {
	if err := CheckDistributable(aj); err != nil {
		return nil, err
	}
	ds := aj.Datastore()
	counter, ok := ds.(data.RowCounter)
	if !ok {
		return nil, dcerrors.NewError(dcerrors.CodeNotDistributable,
			fmt.Sprintf("datastore %s cannot count its rows", ds.Name()), nil)
	}
	total, err := counter.CountRows(ctx)
	if err != nil {
		return nil, dcerrors.Datastore(fmt.Sprintf("count rows of %s", ds.Name()), err)
	}

	parts := SplitRows(total, d.opts.Partitions)
	if len(parts) == 0 {
		parts = []Partition{{Index: 0, FirstRow: 1}}
	}
	runID := uuid.NewString()
	startedAt := time.Now()
	d.logger.Info("Starting partitioned run",
		zap.String("run_id", runID),
		zap.String("job", aj.Name()),
		zap.Int64("rows", total),
		zap.Int("partitions", len(parts)))

	snapshots := make([]*result.AnalysisResult, len(parts))
	runErrs := make([]error, len(parts))
	var publishErrs []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, p := range parts {
		wg.Add(1)
		go func(i int, p Partition) {
			defer wg.Done()
			f, err := d.runner.RunAndAwait(ctx, aj.WithDatastore(p.Apply(ds)))
			if err != nil {
				runErrs[i] = err
				return
			}
			snapshots[i] = f.Snapshot()
			d.logger.Debug("Partition finished",
				zap.String("run_id", runID),
				zap.Stringer("partition", p),
				zap.String("status", snapshots[i].Status))

			if d.opts.Publisher == nil {
				return
			}
			pr := &PartitionResult{RunID: runID, JobName: aj.Name(), Partition: p, Partitions: len(parts), Result: snapshots[i]}
			if err := d.opts.Publisher.PublishPartial(ctx, pr); err != nil {
				d.logger.Error("Failed to publish partition result",
					zap.String("run_id", runID),
					zap.Stringer("partition", p),
					zap.Error(err))
				mu.Lock()
				publishErrs = append(publishErrs, fmt.Sprintf("%s: publish: %v", p, err))
				mu.Unlock()
			}
		}(i, p)
	}
	wg.Wait()

	for _, err := range runErrs {
		if err != nil {
			return nil, err
		}
	}

	reduced, err := ReduceResults(aj, snapshots)
	if err != nil {
		return nil, err
	}

	out := &result.AnalysisResult{
		RunID:      runID,
		JobName:    aj.Name(),
		Status:     result.StatusSuccess,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Results:    reduced,
	}
	for i, snap := range snapshots {
		switch snap.Status {
		case result.StatusCancelled:
			out.Status = result.StatusCancelled
		case result.StatusFailed:
			if out.Status == result.StatusSuccess {
				out.Status = result.StatusFailed
			}
		}
		for _, msg := range snap.Errors {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", parts[i], msg))
		}
	}
	out.Errors = append(out.Errors, publishErrs...)

	d.logger.Info("Partitioned run finished",
		zap.String("run_id", runID),
		zap.String("job", aj.Name()),
		zap.String("status", out.Status),
		zap.Duration("duration", out.FinishedAt.Sub(startedAt)))
	return out, nil
}
