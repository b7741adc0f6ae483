package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/concurrency"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// countedRow is a logical row and the number of times it occurred
type countedRow struct {
	row   *data.SourceRow
	count int
}

// chunk is the unit of work of the pool: rows read together from the cursor
type chunk []countedRow

// chunkProcessor processes a chunk on a worker goroutine
type chunkProcessor func(ctx context.Context, workerID int, c chunk)

// WorkerPool distributes row chunks over a fixed number of workers. It
// integrates with the concurrency Limiter to bound chunks in flight across
// runs.
type WorkerPool struct {
	workers   int
	limiter   *concurrency.Limiter
	jobChan   chan chunk
	wg        sync.WaitGroup
	processor chunkProcessor
	logger    *zap.Logger

	// Metrics
	processed atomic.Int64
	rejected  atomic.Int64
}

func newWorkerPool(workers, bufferSize int, processor chunkProcessor, limiter *concurrency.Limiter, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		workers:   workers,
		limiter:   limiter,
		jobChan:   make(chan chunk, bufferSize),
		processor: processor,
		logger:    logger,
	}
}

// Start starts the workers
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Debug("Starting worker pool", zap.Int("workers", wp.workers), zap.Int("buffer_size", cap(wp.jobChan)))
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// worker drains the job channel until it is closed. Chunks received after
// cancellation are handed to the processor, which skips rows not yet
// started.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	for c := range wp.jobChan {
		wp.processChunk(ctx, id, c)
	}
	wp.logger.Debug("Worker stopped", zap.Int("worker_id", id))
}

func (wp *WorkerPool) processChunk(ctx context.Context, id int, c chunk) {
	if wp.limiter != nil {
		if err := wp.limiter.Acquire(ctx); err != nil {
			wp.rejected.Add(1)
			return
		}
		defer wp.limiter.Release()
	}
	wp.processor(ctx, id, c)
	wp.processed.Add(1)
}

// Submit queues a chunk. It returns false when ctx is done before the chunk
// could be queued.
func (wp *WorkerPool) Submit(ctx context.Context, c chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case wp.jobChan <- c:
		return true
	}
}

// Close closes the job channel and waits for the workers to finish
func (wp *WorkerPool) Close() {
	close(wp.jobChan)
	wp.wg.Wait()
}

// Stats returns the processed and rejected chunk counts
func (wp *WorkerPool) Stats() (processed, rejected int64) {
	return wp.processed.Load(), wp.rejected.Load()
}
