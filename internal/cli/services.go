package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/datacleaner/internal/nats"
	"github.com/wehubfusion/datacleaner/pkg/cluster"
	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/runner"
	"github.com/wehubfusion/datacleaner/pkg/scheduler"
	"github.com/wehubfusion/datacleaner/pkg/storage"
)

// services are the long-lived collaborators of a command. close releases
// them in reverse order of creation.
type services struct {
	runner   *runner.Runner
	executor scheduler.Executor
	results  *storage.ResultStore
	runs     *storage.RunRepository
	closers  []func() error
}

func (s *services) close(logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
}

// newServices wires runner, executor and persistence from the
// configuration. partitions above one select distributed execution.
func (a *app) newServices(ctx context.Context, reg prometheus.Registerer, partitions int) (*services, error) {
	s := &services{}
	fail := func(err error) (*services, error) {
		s.close(a.logger)
		return nil, err
	}

	r, err := a.newRunner(reg)
	if err != nil {
		return fail(err)
	}
	s.runner = r
	s.closers = append(s.closers, r.Close)
	s.executor = scheduler.LocalExecutor{Runner: r}

	blob, err := a.newBlobStore()
	if err != nil {
		return fail(err)
	}
	s.results = storage.NewResultStore(blob, result.NewCodec(), a.logger)

	if partitions > 1 {
		opts := cluster.DefaultOptions().WithPartitions(partitions).WithLogger(a.logger)
		if a.cfg.NATS.URL != "" {
			var offloader *cluster.Offloader
			if a.cfg.Blob.ConnectionString != "" {
				offloader = cluster.NewOffloader(blob, 0)
			}
			publisher, closeConn, err := a.newPublisher(ctx, offloader)
			if err != nil {
				return fail(err)
			}
			s.closers = append(s.closers, closeConn)
			opts = opts.WithPublisher(publisher)
		}
		d, err := cluster.NewDistributedRunner(r, opts)
		if err != nil {
			return fail(err)
		}
		s.executor = d
	}

	if a.cfg.Runs.Driver != "" {
		repo, err := storage.OpenRunRepository(a.cfg.Runs.Driver, a.cfg.Runs.DSN, a.logger)
		if err != nil {
			return fail(err)
		}
		s.runs = repo
		s.closers = append(s.closers, repo.Close)
	}
	return s, nil
}

func (a *app) newRunner(reg prometheus.Registerer) (*runner.Runner, error) {
	listeners := runner.NewCompositeListener(runner.NewLoggingListener(a.logger))
	if reg != nil {
		metrics, err := runner.NewMetricsListener(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		listeners.Add(metrics)
	}
	if a.sentry {
		listeners.Add(runner.NewSentryListener(nil))
	}

	opts := runner.OptionsFromConfig(a.cfg.Concurrency).
		WithLogger(a.logger)
	if a.cfg.Tracing.Endpoint != "" {
		tracing := runner.DefaultTracingConfig(a.cfg.ServiceName)
		tracing.OTLPEndpoint = a.cfg.Tracing.Endpoint
		tracing.Environment = a.cfg.Tracing.Environment
		tracing.SampleRatio = a.cfg.Tracing.SampleRatio
		tracing.ServiceVersion = Version
		opts = opts.WithTracing(tracing)
		listeners.Add(runner.NewTracingListener(nil))
	}
	return runner.NewRunner(opts.WithListener(listeners))
}

// newBlobStore returns the Azure store, or an in-memory store without
// connection string
func (a *app) newBlobStore() (storage.BlobStore, error) {
	if a.cfg.Blob.ConnectionString == "" {
		a.logger.Debug("No blob storage configured, keeping results in memory")
		return storage.NewMemoryBlobStore(a.cfg.Blob.Container), nil
	}
	return storage.NewAzureBlobStore(a.cfg.Blob.ConnectionString, a.cfg.Blob.Container, a.logger)
}

func (a *app) newPublisher(ctx context.Context, offloader *cluster.Offloader) (*cluster.JetStreamPublisher, func() error, error) {
	connCfg := natsconn.DefaultConfig(a.cfg.NATS.URL)
	connCfg.Name = a.cfg.ServiceName
	connCfg.CredsFile = a.cfg.NATS.CredsFile
	client, err := natsconn.Dial(ctx, connCfg, a.logger)
	if err != nil {
		return nil, nil, err
	}

	pubCfg := cluster.DefaultPublisherConfig()
	pubCfg.Stream = a.cfg.NATS.Stream
	pubCfg.Subject = a.cfg.NATS.Subject
	pubCfg.MaxRetries = a.cfg.NATS.MaxRetries
	pubCfg.RetryDelay = a.cfg.NATS.RetryDelay
	pubCfg.Offloader = offloader
	pubCfg.Logger = a.logger
	publisher, err := cluster.NewJetStreamPublisher(cluster.WrapJetStream(client.JetStream()), pubCfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client.Close, nil
}
