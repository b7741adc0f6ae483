// Package cli provides the command-line interface of datacleaner.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/datacleaner/internal/config"
	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/components/all"
	"github.com/wehubfusion/datacleaner/pkg/concurrency"
)

// Version is set at build time
var Version = "0.1.0"

// app holds the state shared by the subcommands of one invocation
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *component.Registry

	envPath  string
	logLevel string

	undoMaxProcs func()
	sentry       bool
}

// NewRootCommand builds the command tree. out receives command output.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{registry: all.NewRegistry()}

	root := &cobra.Command{
		Use:   "datacleaner",
		Short: "Run data quality analysis jobs",
		Long: `datacleaner executes analysis jobs: a datastore's rows flow through
filters and transformers into analyzers whose results are persisted.

Jobs are YAML definitions; the datastores and reference data they refer to
are declared in an environment file.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { a.teardown() },
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.envPath, "env", "e", "", "environment file declaring datastores and reference data")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides DATACLEANER_LOG_LEVEL)")

	root.AddCommand(a.newRunCommand())
	root.AddCommand(a.newComponentsCommand())
	root.AddCommand(a.newServeScheduleCommand())
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg = cfg.WithLogLevel(a.logLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	a.logger, err = newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.undoMaxProcs = concurrency.InitializeForKubernetes(a.logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Tracing.Environment,
			Release:     "datacleaner@" + Version,
		}); err != nil {
			a.logger.Warn("Failed to initialize Sentry, continuing without error reporting", zap.Error(err))
		} else {
			a.sentry = true
		}
	}
	return nil
}

func (a *app) teardown() {
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
	if a.undoMaxProcs != nil {
		a.undoMaxProcs()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newLogger builds a production logger writing to stderr at level
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
