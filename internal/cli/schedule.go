package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/scheduler"
)

// ScheduleFile lists the jobs of serve-schedule
//
//	schedules:
//	  - {name: nightly customers, cron: "0 0 2 * * *", job: customers.yaml}
//	  - {name: hourly orders, cron: "@hourly", job: orders.yaml}
type ScheduleFile struct {
	Schedules []ScheduleDefinition `yaml:"schedules"`
}

type ScheduleDefinition struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
	// Job is the definition file, relative to the schedule file
	Job string `yaml:"job"`
}

// LoadScheduleFile reads a schedule file and resolves the job paths
func LoadScheduleFile(path string) (*ScheduleFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, "cannot read schedule file", err)
	}
	var sf ScheduleFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, "invalid schedule file", err)
	}
	if len(sf.Schedules) == 0 {
		return nil, dcerrors.Configuration("schedule file %s has no schedules", path)
	}
	dir := filepath.Dir(path)
	for i, s := range sf.Schedules {
		if s.Job == "" {
			return nil, dcerrors.Configuration("schedule %q has no job", s.Name)
		}
		if !filepath.IsAbs(s.Job) {
			sf.Schedules[i].Job = filepath.Join(dir, s.Job)
		}
	}
	return &sf, nil
}

type scheduleFlags struct {
	schedulePath string
	partitions   int
	metricsAddr  string
}

func (a *app) newServeScheduleCommand() *cobra.Command {
	f := &scheduleFlags{}
	cmd := &cobra.Command{
		Use:   "serve-schedule",
		Short: "Run jobs on cron schedules until interrupted",
		Long: `Run the jobs of a schedule file on their cron schedules. Every run is
persisted to the result store and, with DATACLEANER_RUNS_DRIVER set, recorded
in the run history. Job files are read again on every run.

Prometheus metrics are served on /metrics.

Examples:
  datacleaner serve-schedule --env env.yaml --schedule schedules.yaml
  datacleaner serve-schedule --env env.yaml --schedule schedules.yaml --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serveSchedule(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.schedulePath, "schedule", "s", "", "schedule file")
	cmd.Flags().IntVarP(&f.partitions, "partitions", "p", 0, "row partitions (defaults to DATACLEANER_PARTITIONS)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "listen address of /metrics, /schedules and /runs (overrides DATACLEANER_METRICS_ADDR)")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

// newScheduler builds a scheduler with every entry of the schedule file
func (a *app) newScheduler(env *Environment, sf *ScheduleFile, svc *services) (*scheduler.Scheduler, error) {
	opts := scheduler.Options{
		Executor: svc.executor,
		Results:  svc.results,
		Location: a.cfg.Location(),
		Logger:   a.logger,
	}
	if svc.runs != nil {
		opts.Runs = svc.runs
	}
	s, err := scheduler.New(opts)
	if err != nil {
		return nil, err
	}
	for _, def := range sf.Schedules {
		path := def.Job
		factory := func() (*job.AnalysisJob, error) { return a.loadJob(env, path) }
		// fail fast on definitions that do not build
		if _, err := factory(); err != nil {
			return nil, err
		}
		if err := s.Schedule(def.Name, def.Cron, factory); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) serveSchedule(cmd *cobra.Command, f *scheduleFlags) error {
	sf, err := LoadScheduleFile(f.schedulePath)
	if err != nil {
		return err
	}
	env, err := LoadEnvironment(a.envPath)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	partitions := f.partitions
	if partitions == 0 && a.cfg.Concurrency != nil {
		partitions = a.cfg.Concurrency.Partitions
	}
	svc, err := a.newServices(ctx, reg, partitions)
	if err != nil {
		return err
	}
	defer svc.close(a.logger)

	s, err := a.newScheduler(env, sf, svc)
	if err != nil {
		return err
	}

	addr := a.cfg.MetricsAddr
	if f.metricsAddr != "" {
		addr = f.metricsAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newStatusRouter(reg, s, svc.runs, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	s.Start()
	for _, e := range s.Entries() {
		a.logger.Info("Job scheduled",
			zap.String("name", e.Name),
			zap.String("spec", e.Spec),
			zap.Time("next", e.Next))
	}
	a.logger.Info("Serving schedule", zap.Int("jobs", len(sf.Schedules)), zap.String("status_addr", addr))

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		err = nil
	case err = <-serveErr:
		a.logger.Error("Status server failed", zap.Error(err))
	}

	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return err
}
