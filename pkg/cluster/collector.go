package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Collector gathers the published partitions of one run and reduces them
// once all have arrived. Redelivered partitions are ignored.
type Collector struct {
	aj        *job.AnalysisJob
	codec     *result.Codec
	offloader *Offloader
	logger    *zap.Logger

	mu       sync.Mutex
	runID    string
	expected int
	parts    map[int]*PartitionResult
	done     chan struct{}
	doneOnce sync.Once
}

// NewCollector creates a collector for a run of aj. An empty runID adopts
// the run of the first message.
func NewCollector(aj *job.AnalysisJob, runID string, codec *result.Codec, logger *zap.Logger) *Collector {
	if codec == nil {
		codec = result.NewCodec()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		aj:     aj,
		codec:  codec,
		logger: logger,
		runID:  runID,
		parts:  make(map[int]*PartitionResult),
		done:   make(chan struct{}),
	}
}

// WithOffloader resolves offloaded partitions through o
func (c *Collector) WithOffloader(o *Offloader) *Collector {
	c.offloader = o
	return c
}

// Add decodes one published partition
func (c *Collector) Add(raw []byte) error {
	return c.AddContext(context.Background(), raw)
}

// AddContext decodes one published partition, downloading it when it was
// offloaded
func (c *Collector) AddContext(ctx context.Context, raw []byte) error {
	pr, err := c.offloader.Resolve(ctx, c.codec, raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID == "" {
		c.runID = pr.RunID
	}
	if pr.RunID != c.runID {
		return fmt.Errorf("partition of run %s does not belong to run %s", pr.RunID, c.runID)
	}
	if pr.JobName != c.aj.Name() {
		return fmt.Errorf("partition of job %q does not belong to job %q", pr.JobName, c.aj.Name())
	}
	if _, dup := c.parts[pr.Partition.Index]; dup {
		c.logger.Debug("Ignoring redelivered partition",
			zap.String("run_id", pr.RunID),
			zap.Int("partition", pr.Partition.Index))
		return nil
	}
	c.parts[pr.Partition.Index] = pr
	c.expected = pr.Partitions
	if c.expected > 0 && len(c.parts) >= c.expected {
		c.doneOnce.Do(func() { close(c.done) })
	}
	return nil
}

// HandleMsg is a nats.MsgHandler feeding Add
func (c *Collector) HandleMsg(msg *nats.Msg) {
	if err := c.Add(msg.Data); err != nil {
		c.logger.Warn("Failed to collect partition result",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

// Subscribe feeds the messages of subject into the collector
func (c *Collector) Subscribe(js JSContext, subject string) (Subscription, error) {
	return js.Subscribe(subject, c.HandleMsg)
}

// Done is closed once every partition has arrived
func (c *Collector) Done() <-chan struct{} { return c.done }

// Received returns the number of distinct partitions collected
func (c *Collector) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.parts)
}

// Await blocks until all partitions arrived or ctx ends, then reduces
func (c *Collector) Await(ctx context.Context) (*result.AnalysisResult, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for partitions (%d received): %w", c.Received(), ctx.Err())
	}
}

// Result reduces the partitions collected so far. A run missing
// partitions is reported as failed.
func (c *Collector) Result() (*result.AnalysisResult, error) {
	c.mu.Lock()
	indexes := make([]int, 0, len(c.parts))
	for i := range c.parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	parts := make([]*PartitionResult, len(indexes))
	for n, i := range indexes {
		parts[n] = c.parts[i]
	}
	runID, expected := c.runID, c.expected
	c.mu.Unlock()

	snapshots := make([]*result.AnalysisResult, len(parts))
	for i, p := range parts {
		snapshots[i] = p.Result
	}
	reduced, err := ReduceResults(c.aj, snapshots)
	if err != nil {
		return nil, err
	}

	out := &result.AnalysisResult{
		RunID:   runID,
		JobName: c.aj.Name(),
		Status:  result.StatusSuccess,
		Results: reduced,
	}
	for _, p := range parts {
		snap := p.Result
		if out.StartedAt.IsZero() || snap.StartedAt.Before(out.StartedAt) {
			out.StartedAt = snap.StartedAt
		}
		if snap.FinishedAt.After(out.FinishedAt) {
			out.FinishedAt = snap.FinishedAt
		}
		switch snap.Status {
		case result.StatusCancelled:
			out.Status = result.StatusCancelled
		case result.StatusFailed:
			if out.Status == result.StatusSuccess {
				out.Status = result.StatusFailed
			}
		}
		for _, msg := range snap.Errors {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", p.Partition, msg))
		}
	}
	var incomplete string
	switch missing := expected - len(parts); {
	case len(parts) == 0:
		incomplete = "no partitions received"
	case missing > 0:
		incomplete = fmt.Sprintf("%d of %d partitions missing", missing, expected)
	}
	if incomplete != "" {
		if out.Status == result.StatusSuccess {
			out.Status = result.StatusFailed
		}
		out.Errors = append(out.Errors, incomplete)
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}
	return out, nil
}
