package runner

import (
	"errors"
	"runtime"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/concurrency"
)

// Options configures a Runner. Use DefaultOptions and the With* builders.
type Options struct {
	// Workers is the number of goroutines processing rows of a run
	Workers int
	// ProcessorMode sequential forces a single worker
	ProcessorMode concurrency.ProcessorMode
	// BatchSize is the number of rows read before a chunk is dispatched
	BatchSize int
	// BufferSize bounds the chunks queued for the workers
	BufferSize int
	// CompactDuplicates collapses identical rows within a chunk into one
	// row with a higher distinct count
	CompactDuplicates bool
	// MaxConsecutiveErrors turns a storm of failing rows into a fatal
	// error. Zero disables the check.
	MaxConsecutiveErrors int64
	// ProgressInterval is the row interval of progress events
	ProgressInterval int64
	// Limiter bounds the chunks in flight across all runs sharing it
	Limiter  *concurrency.Limiter
	Listener AnalysisListener
	Logger   *zap.Logger
	// Tracing sets up an OTLP exporter when the runner is created
	Tracing *TracingConfig
}

// DefaultOptions returns options sized for the current machine
func DefaultOptions() Options {
	return Options{
		Workers:          runtime.NumCPU(),
		ProcessorMode:    concurrency.ProcessorModeConcurrent,
		BatchSize:        64,
		BufferSize:       16,
		ProgressInterval: 1000,
	}
}

// OptionsFromConfig derives options from the environment driven
// concurrency configuration
func OptionsFromConfig(cfg *concurrency.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.RunnerWorkers > 0 {
		opts.Workers = cfg.RunnerWorkers
	}
	if cfg.ProcessorMode != "" {
		opts.ProcessorMode = cfg.ProcessorMode
	}
	if cfg.MaxConcurrent > 0 {
		opts.Limiter = concurrency.NewLimiter(cfg.MaxConcurrent)
	}
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	opts.CompactDuplicates = cfg.CompactDuplicates
	opts.MaxConsecutiveErrors = cfg.MaxConsecutiveErrors
	return opts
}

func (o Options) WithWorkers(n int) Options {
	o.Workers = n
	return o
}

func (o Options) WithProcessorMode(mode concurrency.ProcessorMode) Options {
	o.ProcessorMode = mode
	return o
}

func (o Options) WithBatchSize(n int) Options {
	o.BatchSize = n
	return o
}

func (o Options) WithCompactDuplicates(enabled bool) Options {
	o.CompactDuplicates = enabled
	return o
}

func (o Options) WithMaxConsecutiveErrors(n int64) Options {
	o.MaxConsecutiveErrors = n
	return o
}

func (o Options) WithLimiter(l *concurrency.Limiter) Options {
	o.Limiter = l
	return o
}

func (o Options) WithListener(l AnalysisListener) Options {
	o.Listener = l
	return o
}

func (o Options) WithLogger(l *zap.Logger) Options {
	o.Logger = l
	return o
}

func (o Options) WithTracing(cfg TracingConfig) Options {
	o.Tracing = &cfg
	return o
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Workers <= 0 {
		return errors.New("workers must be greater than 0")
	}
	if o.BatchSize <= 0 {
		return errors.New("batchSize must be greater than 0")
	}
	if o.BufferSize < 0 {
		return errors.New("bufferSize cannot be negative")
	}
	if o.MaxConsecutiveErrors < 0 {
		return errors.New("maxConsecutiveErrors cannot be negative")
	}
	switch o.ProcessorMode {
	case "", concurrency.ProcessorModeConcurrent, concurrency.ProcessorModeSequential:
	default:
		return errors.New("unknown processor mode " + string(o.ProcessorMode))
	}
	return nil
}

func (o Options) effectiveWorkers() int {
	if o.ProcessorMode == concurrency.ProcessorModeSequential {
		return 1
	}
	return o.Workers
}
