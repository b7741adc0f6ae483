// Package scheduler runs analysis jobs on cron schedules and persists the
// outcome of every run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/runner"
	"github.com/wehubfusion/datacleaner/pkg/storage"
)

var (
	// ErrUnknownSchedule is returned for names that were never scheduled
	ErrUnknownSchedule = errors.New("unknown schedule")

	// ErrAlreadyRunning is returned when a scheduled job is triggered while its previous run is active
	ErrAlreadyRunning = errors.New("job is already running")
)

// JobFactory builds the job of every run, so that definitions can change
// between runs
type JobFactory func() (*job.AnalysisJob, error)

// Executor runs a job to completion
type Executor interface {
	Run(ctx context.Context, aj *job.AnalysisJob) (*result.AnalysisResult, error)
}

// LocalExecutor runs jobs on a local runner
type LocalExecutor struct {
	Runner *runner.Runner
}

func (e LocalExecutor) Run(ctx context.Context, aj *job.AnalysisJob) (*result.AnalysisResult, error) {
	f, err := e.Runner.RunAndAwait(ctx, aj)
	if err != nil {
		return nil, err
	}
	return f.Snapshot(), nil
}

// ResultSaver persists a snapshot and returns its reference
type ResultSaver interface {
	Save(ctx context.Context, snap *result.AnalysisResult) (string, error)
}

// RunRecorder keeps the run history
type RunRecorder interface {
	Record(ctx context.Context, snap *result.AnalysisResult, resultURL string) (*storage.RunRecord, error)
}

// Options configures a Scheduler. Results and Runs are optional.
type Options struct {
	Executor Executor
	Results  ResultSaver
	Runs     RunRecorder
	Location *time.Location
	Logger   *zap.Logger
}

// EntryInfo describes a scheduled job
type EntryInfo struct {
	Name    string
	Spec    string
	Next    time.Time
	Prev    time.Time
	Running bool
}

type entry struct {
	name    string
	spec    string
	id      cron.EntryID
	factory JobFactory
	running atomic.Bool
}

// Scheduler triggers jobs on cron specs. Specs have five or six fields
// (seconds optional) or are descriptors such as "@every 1h". A job is never
// run twice at the same time; a tick that finds the previous run active is
// skipped.
type Scheduler struct {
	cron     *cron.Cron
	executor Executor
	results  ResultSaver
	runs     RunRecorder
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a stopped scheduler
func New(opts Options) (*Scheduler, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger}),
		),
		executor: opts.Executor,
		results:  opts.Results,
		runs:     opts.Runs,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}, nil
}

// Schedule registers a job under name
func (s *Scheduler) Schedule(name, spec string, factory JobFactory) error {
	if name == "" || factory == nil {
		return dcerrors.Configuration("schedule needs a name and a job")
	}
	sched, err := specParser.Parse(spec)
	if err != nil {
		return dcerrors.NewError(dcerrors.CodeConfiguration, fmt.Sprintf("schedule %s: invalid spec %q", name, spec), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return dcerrors.Configuration("schedule %s already exists", name)
	}
	e := &entry{name: name, spec: spec, factory: factory}
	e.id = s.cron.Schedule(sched, cron.FuncJob(func() {
		if _, err := s.execute(s.ctx, e); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error("Scheduled run failed", zap.String("schedule", e.name), zap.Error(err))
		}
	}))
	s.entries[name] = e

	s.logger.Info("Scheduled job", zap.String("schedule", name), zap.String("spec", spec))
	return nil
}

// Unschedule removes a job. Running executions finish.
func (s *Scheduler) Unschedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	return true
}

// TriggerNow runs a scheduled job immediately and waits for the outcome
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (*result.AnalysisResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownSchedule)
	}
	return s.execute(ctx, e)
}

// Entries lists the scheduled jobs by name
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.cron.Entry(e.id)
		infos = append(infos, EntryInfo{Name: e.name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev, Running: e.running.Load()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Start starts triggering
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("schedules", len(s.Entries())))
}

// Stop stops triggering, cancels running executions and waits for them
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) execute(ctx context.Context, e *entry) (*result.AnalysisResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping run, previous run still active", zap.String("schedule", e.name))
		return nil, fmt.Errorf("%s: %w", e.name, ErrAlreadyRunning)
	}
	defer e.running.Store(false)

	aj, err := e.factory()
	if err != nil {
		return nil, fmt.Errorf("build job of %s: %w", e.name, err)
	}
	snap, err := s.executor.Run(ctx, aj)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", e.name, err)
	}
	s.logger.Info("Scheduled run finished",
		zap.String("schedule", e.name),
		zap.String("run_id", snap.RunID),
		zap.String("status", snap.Status),
		zap.Int("errors", len(snap.Errors)))

	return snap, s.persist(ctx, snap)
}

func (s *Scheduler) persist(ctx context.Context, snap *result.AnalysisResult) error {
	var ref string
	if s.results != nil {
		var err error
		if ref, err = s.results.Save(ctx, snap); err != nil {
			return fmt.Errorf("save result of run %s: %w", snap.RunID, err)
		}
	}
	if s.runs != nil {
		if _, err := s.runs.Record(ctx, snap, ref); err != nil {
			return fmt.Errorf("record run %s: %w", snap.RunID, err)
		}
	}
	return nil
}

// cronLogger routes cron's own logging to zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
