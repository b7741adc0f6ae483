package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cast"
)

// ProcessorMode defines how rows of a single run are dispatched
type ProcessorMode string

const (
	// ProcessorModeConcurrent dispatches rows to a worker pool
	ProcessorModeConcurrent ProcessorMode = "concurrent"
	// ProcessorModeSequential processes the rows of a run on a single worker
	ProcessorModeSequential ProcessorMode = "sequential"
)

// Config sizes the row pipeline of a runner
type Config struct {
	// MaxConcurrent bounds the chunks in flight across all runs of one runner
	MaxConcurrent int
	// RunnerWorkers is the number of row workers per run
	RunnerWorkers int
	ProcessorMode ProcessorMode
	// Partitions is the default partition count for distributed runs
	Partitions int
	// BatchSize is the number of rows per dispatched chunk, zero keeps the runner default
	BatchSize         int
	CompactDuplicates bool
	// MaxConsecutiveErrors aborts a run after that many failing rows in a row
	MaxConsecutiveErrors int64

	// Detected reports whether the sizes were derived from the host
	// rather than set explicitly
	Detected      bool
	Kubernetes    bool
	EffectiveCPUs int
}

// Detect sizes the pipeline for the host. Containers get fewer workers
// per CPU since their quota is usually tight.
func Detect() *Config {
	cpus := runtime.GOMAXPROCS(0)
	k8s := os.Getenv("KUBERNETES_SERVICE_HOST") != ""

	c := &Config{
		ProcessorMode: ProcessorModeConcurrent,
		Partitions:    1,
		Detected:      true,
		Kubernetes:    k8s,
		EffectiveCPUs: cpus,
	}
	if k8s {
		c.MaxConcurrent = cpus * 2
		c.RunnerWorkers = max(cpus, 4)
	} else {
		c.MaxConcurrent = cpus * 4
		c.RunnerWorkers = max(cpus*2, 8)
	}
	return c
}

// FromEnv applies DATACLEANER_* variables on top of Detect. Every
// malformed variable is reported in the returned error.
func FromEnv() (*Config, error) {
	c := Detect()
	var problems []string
	intVar := func(key string, dst *int, floor int) bool {
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			return false
		}
		v, err := cast.ToIntE(strings.TrimSpace(raw))
		if err != nil || v < floor {
			problems = append(problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, floor, raw))
			return false
		}
		*dst = v
		return true
	}

	if intVar("DATACLEANER_MAX_CONCURRENT", &c.MaxConcurrent, 1) {
		c.Detected = false
	} else {
		multiplier := 0
		if intVar("DATACLEANER_CONCURRENCY_MULTIPLIER", &multiplier, 1) {
			c.MaxConcurrent = c.EffectiveCPUs * multiplier
			c.Detected = false
		}
	}
	if intVar("DATACLEANER_RUNNER_WORKERS", &c.RunnerWorkers, 1) {
		c.Detected = false
	}
	intVar("DATACLEANER_PARTITIONS", &c.Partitions, 1)
	intVar("DATACLEANER_BATCH_SIZE", &c.BatchSize, 1)

	errorBudget := 0
	if intVar("DATACLEANER_MAX_CONSECUTIVE_ERRORS", &errorBudget, 0) {
		c.MaxConsecutiveErrors = int64(errorBudget)
	}

	if raw := os.Getenv("DATACLEANER_PROCESSOR_MODE"); raw != "" {
		switch mode := ProcessorMode(strings.ToLower(strings.TrimSpace(raw))); mode {
		case ProcessorModeConcurrent, ProcessorModeSequential:
			c.ProcessorMode = mode
		default:
			problems = append(problems, fmt.Sprintf("DATACLEANER_PROCESSOR_MODE must be concurrent or sequential, got %q", raw))
		}
	}
	if raw := os.Getenv("DATACLEANER_COMPACT_DUPLICATES"); raw != "" {
		v, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Sprintf("DATACLEANER_COMPACT_DUPLICATES must be a boolean, got %q", raw))
		} else {
			c.CompactDuplicates = v
		}
	}

	if len(problems) > 0 {
		return c, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return c, nil
}

func (c *Config) String() string {
	source := "explicit"
	if c.Detected {
		source = "detected"
	}
	return fmt.Sprintf("concurrency(%s): %d workers in %s mode, %d in flight, %d partitions, %d cpus, k8s=%t",
		source, c.RunnerWorkers, c.ProcessorMode, c.MaxConcurrent, c.Partitions, c.EffectiveCPUs, c.Kubernetes)
}
