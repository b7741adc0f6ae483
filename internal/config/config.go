// Package config loads the process configuration of the datacleaner
// binaries from DATACLEANER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wehubfusion/datacleaner/pkg/concurrency"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

const envPrefix = "DATACLEANER_"

// NATSConfig configures the JetStream transport of partial results
type NATSConfig struct {
	// URL of the NATS server; empty disables publishing
	URL        string
	Stream     string
	Subject    string
	MaxRetries int
	RetryDelay time.Duration
	// CredsFile is a NATS user credentials file
	CredsFile string
}

// BlobConfig configures result files in Azure Blob Storage
type BlobConfig struct {
	// ConnectionString; empty keeps results in memory
	ConnectionString string
	Container        string
}

// RunsConfig configures the run history database
type RunsConfig struct {
	// Driver is "sqlite" or "postgres"; empty disables run history
	Driver string
	DSN    string
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	// Endpoint as host:port; empty disables tracing
	Endpoint    string
	Environment string
	SampleRatio float64
}

// Config is the full process configuration
type Config struct {
	ServiceName string
	LogLevel    string
	// MetricsAddr is the listen address of the /metrics endpoint
	MetricsAddr string
	SentryDSN   string
	Timezone    string

	Concurrency *concurrency.Config
	NATS        NATSConfig
	Blob        BlobConfig
	Runs        RunsConfig
	Tracing     TracingConfig
}

// Default returns a configuration for local use: no NATS, in-memory
// results and no run history
func Default() Config {
	return Config{
		ServiceName: "datacleaner",
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Timezone:    "UTC",
		Concurrency: concurrency.Detect(),
		NATS: NATSConfig{
			Stream:     "DATACLEANER_PARTIALS",
			Subject:    "datacleaner.partials",
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Blob: BlobConfig{Container: "datacleaner"},
		Tracing: TracingConfig{
			Environment: "development",
			SampleRatio: 1.0,
		},
	}
}

// Load reads the configuration from the environment on top of Default.
// Malformed numbers and durations are configuration errors.
func Load() (Config, error) {
	cfg := Default()
	var errs []string

	conc, err := concurrency.FromEnv()
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.Concurrency = conc

	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.SentryDSN = getEnv("SENTRY_DSN", cfg.SentryDSN)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("NATS_STREAM", cfg.NATS.Stream)
	cfg.NATS.Subject = getEnv("NATS_SUBJECT", cfg.NATS.Subject)
	cfg.NATS.CredsFile = getEnv("NATS_CREDS", cfg.NATS.CredsFile)
	cfg.NATS.MaxRetries = getEnvInt("NATS_MAX_RETRIES", cfg.NATS.MaxRetries, &errs)
	cfg.NATS.RetryDelay = getEnvDuration("NATS_RETRY_DELAY", cfg.NATS.RetryDelay, &errs)

	cfg.Blob.ConnectionString = getEnv("BLOB_CONNECTION_STRING", cfg.Blob.ConnectionString)
	cfg.Blob.Container = getEnv("BLOB_CONTAINER", cfg.Blob.Container)

	cfg.Runs.Driver = strings.ToLower(getEnv("RUNS_DRIVER", cfg.Runs.Driver))
	cfg.Runs.DSN = getEnv("RUNS_DSN", cfg.Runs.DSN)

	cfg.Tracing.Endpoint = getEnv("OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Environment = getEnv("ENVIRONMENT", cfg.Tracing.Environment)
	cfg.Tracing.SampleRatio = getEnvFloat("TRACE_SAMPLE_RATIO", cfg.Tracing.SampleRatio, &errs)

	if len(errs) > 0 {
		return cfg, dcerrors.Configuration("%s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate checks the cross-field rules of the configuration
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return dcerrors.Configuration("unknown log level %q", c.LogLevel)
	}
	if c.NATS.URL != "" && (c.NATS.Stream == "" || c.NATS.Subject == "") {
		return dcerrors.Configuration("NATS stream and subject are required when a NATS URL is set")
	}
	if c.NATS.MaxRetries < 0 {
		return dcerrors.Configuration("NATS max retries must not be negative, got %d", c.NATS.MaxRetries)
	}
	if c.Blob.ConnectionString != "" && c.Blob.Container == "" {
		return dcerrors.Configuration("blob container is required with a connection string")
	}
	switch c.Runs.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Runs.DSN == "" {
			return dcerrors.Configuration("runs DSN is required for driver %q", c.Runs.Driver)
		}
	default:
		return dcerrors.Configuration("unknown runs driver %q", c.Runs.Driver)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return dcerrors.Configuration("trace sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return dcerrors.Configuration("unknown timezone %q", c.Timezone)
	}
	return nil
}

// Location returns the scheduling time zone
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) WithNATSURL(url string) Config {
	c.NATS.URL = url
	return c
}

func (c Config) WithBlob(connectionString, container string) Config {
	c.Blob = BlobConfig{ConnectionString: connectionString, Container: container}
	return c
}

func (c Config) WithRuns(driver, dsn string) Config {
	c.Runs = RunsConfig{Driver: strings.ToLower(driver), DSN: dsn}
	return c
}

func (c Config) WithLogLevel(level string) Config {
	c.LogLevel = strings.ToLower(level)
	return c
}

func (c Config) WithTracingEndpoint(endpoint string) Config {
	c.Tracing.Endpoint = endpoint
	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]string) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s%s: %q is not an integer", envPrefix, key, value))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]string) float64 {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s%s: %q is not a number", envPrefix, key, value))
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]string) time.Duration {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s%s: %q is not a duration", envPrefix, key, value))
		return defaultValue
	}
	return d
}
