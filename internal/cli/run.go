package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

type runFlags struct {
	jobPath    string
	partitions int
	save       bool
	output     string
	timeout    time.Duration
}

func (a *app) newRunCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an analysis job and print its results",
		Long: `Run an analysis job defined in YAML and print the results as JSON.

With --partitions above one the job is split into row ranges that run
concurrently; with DATACLEANER_NATS_URL set every partition result is
also published to JetStream.

Examples:
  datacleaner run --env env.yaml --job customers.yaml
  datacleaner run --env env.yaml --job customers.yaml --partitions 4 --save
  datacleaner run --env env.yaml --job customers.yaml -o results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.jobPath, "job", "j", "", "job definition file")
	cmd.Flags().IntVarP(&f.partitions, "partitions", "p", 0, "row partitions (defaults to DATACLEANER_PARTITIONS)")
	cmd.Flags().BoolVar(&f.save, "save", false, "persist results and record the run")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "results file, - for stdout")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "cancel the run after this duration")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

// loadJob reads a job definition against the environment
func (a *app) loadJob(env *Environment, path string) (*job.AnalysisJob, error) {
	catalog, err := env.Catalog()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job: %w", err)
	}
	defer f.Close()
	return job.ReadYAML(f, a.registry, env.Datastore, catalog)
}

func (a *app) run(cmd *cobra.Command, f *runFlags) error {
	env, err := LoadEnvironment(a.envPath)
	if err != nil {
		return err
	}
	defer env.Close()

	aj, err := a.loadJob(env, f.jobPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	partitions := f.partitions
	if partitions == 0 && a.cfg.Concurrency != nil {
		partitions = a.cfg.Concurrency.Partitions
	}
	svc, err := a.newServices(ctx, nil, partitions)
	if err != nil {
		return err
	}
	defer svc.close(a.logger)

	snap, err := svc.executor.Run(ctx, aj)
	if err != nil {
		return err
	}

	if f.save {
		ref, err := svc.results.Save(ctx, snap)
		if err != nil {
			return err
		}
		if svc.runs != nil {
			if _, err := svc.runs.Record(ctx, snap, ref); err != nil {
				return err
			}
		}
		a.logger.Info("Results saved", zap.String("run_id", snap.RunID), zap.String("reference", ref))
	}

	if err := writeResults(cmd.OutOrStdout(), f.output, snap); err != nil {
		return err
	}
	if snap.Status != result.StatusSuccess {
		return fmt.Errorf("run %s finished with status %s", snap.RunID, snap.Status)
	}
	return nil
}

func writeResults(stdout io.Writer, output string, snap *result.AnalysisResult) error {
	raw, err := result.NewCodec().MarshalAnalysisResult(snap)
	if err != nil {
		return err
	}
	if output == "" || output == "-" {
		_, err = fmt.Fprintln(stdout, string(raw))
		return err
	}
	return os.WriteFile(output, raw, 0o644)
}
