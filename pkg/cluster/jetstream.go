package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/concurrency"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// JSContext is the subset of JetStream used for partition results. Tests
// provide an in-memory implementation.
type JSContext interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (Subscription, error)
	StreamInfo(stream string) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error)
}

// Subscription is the part of a nats subscription the collector needs
type Subscription interface {
	Unsubscribe() error
}

// WrapJetStream adapts a nats.JetStreamContext to JSContext
func WrapJetStream(js nats.JetStreamContext) JSContext {
	return &jsAdapter{js: js}
}

type jsAdapter struct {
	js nats.JetStreamContext
}

func (a *jsAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

func (a *jsAdapter) Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (Subscription, error) {
	sub, err := a.js.Subscribe(subj, cb, opts...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *jsAdapter) StreamInfo(stream string) (*nats.StreamInfo, error) {
	return a.js.StreamInfo(stream)
}

func (a *jsAdapter) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	return a.js.AddStream(cfg)
}

// PublisherConfig configures a JetStreamPublisher
type PublisherConfig struct {
	// Stream holds the partition results; it is created on first use
	Stream string

	// Subject is the prefix of the per run subjects "<Subject>.<run id>"
	Subject string

	// MaxRetries is the number of publish retries after a failed attempt
	MaxRetries int
	RetryDelay time.Duration

	// MaxAge bounds how long partition results stay in the stream
	MaxAge time.Duration

	// Offloader moves large partition messages to blob storage; nil
	// publishes every message inline
	Offloader *Offloader

	// BreakerThreshold is the number of partitions in a row whose publish
	// failed after all retries before further publishes fail fast for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	Codec  *result.Codec
	Logger *zap.Logger
}

// DefaultPublisherConfig returns the configuration used by the CLI
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Stream:     "DATACLEANER_PARTIALS",
		Subject:    "datacleaner.partials",
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxAge:     24 * time.Hour,

		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// JetStreamPublisher publishes partition results to a JetStream stream
type JetStreamPublisher struct {
	js     JSContext
	cfg    PublisherConfig
	codec  *result.Codec
	logger *zap.Logger
	// nil when disabled
	breaker *concurrency.Breaker

	ensureOnce sync.Once
	ensureErr  error
}

// NewJetStreamPublisher creates a publisher. A nil codec means result.NewCodec().
func NewJetStreamPublisher(js JSContext, cfg PublisherConfig) (*JetStreamPublisher, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if cfg.Stream == "" || cfg.Subject == "" {
		return nil, fmt.Errorf("stream and subject are required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	codec := cfg.Codec
	if codec == nil {
		codec = result.NewCodec()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &JetStreamPublisher{js: js, cfg: cfg, codec: codec, logger: logger}
	if cfg.BreakerThreshold > 0 {
		p.breaker = concurrency.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	return p, nil
}

// Subject returns the subject of a run
func (p *JetStreamPublisher) Subject(runID string) string {
	return p.cfg.Subject + "." + runID
}

// EnsureStream creates the stream if it does not exist
func (p *JetStreamPublisher) EnsureStream() error {
	_, err := p.js.StreamInfo(p.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", p.cfg.Stream, err)
	}

	streamConfig := &nats.StreamConfig{
		Name:     p.cfg.Stream,
		Subjects: []string{p.cfg.Subject + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   p.cfg.MaxAge,
		Replicas: 1,
	}
	if _, err := p.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", p.cfg.Stream, err)
	}
	p.logger.Info("Created JetStream stream",
		zap.String("stream", p.cfg.Stream),
		zap.Strings("subjects", streamConfig.Subjects))
	return nil
}

// PublishPartial encodes pr and publishes it, retrying failed attempts
func (p *JetStreamPublisher) PublishPartial(ctx context.Context, pr *PartitionResult) error {
	if p.breaker != nil {
		if err := p.breaker.Allow(); err != nil {
			return fmt.Errorf("partition %d of run %s not published: %w", pr.Partition.Index, pr.RunID, err)
		}
	}
	p.ensureOnce.Do(func() { p.ensureErr = p.EnsureStream() })
	if p.ensureErr != nil {
		return p.ensureErr
	}

	payload, offloaded, err := p.cfg.Offloader.Prepare(ctx, p.codec, pr)
	if err != nil {
		return err
	}
	if offloaded {
		p.logger.Debug("Partition result offloaded to blob storage",
			zap.String("run_id", pr.RunID),
			zap.Int("partition", pr.Partition.Index))
	}
	subject := p.Subject(pr.RunID)
	msgID := fmt.Sprintf("%s-%d", pr.RunID, pr.Partition.Index)

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled: %w", ctx.Err())
			case <-time.After(p.cfg.RetryDelay):
			}
		}
		lastErr = p.publish(ctx, subject, payload, msgID)
		if lastErr == nil {
			if p.breaker != nil {
				p.breaker.Success()
			}
			p.logger.Debug("Published partition result",
				zap.String("subject", subject),
				zap.Int("partition", pr.Partition.Index),
				zap.Int("bytes", len(payload)))
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("subject", subject),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	if p.breaker != nil && p.breaker.Failure() {
		p.logger.Error("Partition publishing suspended",
			zap.Int("consecutive_failures", p.breaker.ConsecutiveFailures()),
			zap.Duration("cooldown", p.cfg.BreakerCooldown))
	}
	return fmt.Errorf("publish to %s failed after %d attempts: %w", subject, p.cfg.MaxRetries+1, lastErr)
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	resultCh := make(chan error, 1)
	go func() {
		_, err := p.js.Publish(subject, payload, nats.MsgId(msgID))
		resultCh <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	case err := <-resultCh:
		return err
	}
}
