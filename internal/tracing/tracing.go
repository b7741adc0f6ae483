// Package tracing installs the OpenTelemetry tracer provider of the
// datacleaner binaries. Spans are exported over OTLP/HTTP.
package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Settings describe the exporter and the resource of the spans
type Settings struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is host:port; an http:// or https:// prefix selects
	// the transport, plain host:port is exported without TLS
	OTLPEndpoint string
	SampleRatio  float64
	// Attributes are added to the resource, e.g. the cluster name
	Attributes map[string]string
}

// Defaults returns settings for a collector on localhost
func Defaults(serviceName string) Settings {
	return Settings{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "127.0.0.1:4318",
		SampleRatio:    1,
	}
}

func (s Settings) check() error {
	switch {
	case s.ServiceName == "":
		return fmt.Errorf("service name is required")
	case s.OTLPEndpoint == "":
		return fmt.Errorf("OTLP endpoint is required")
	case s.SampleRatio < 0 || s.SampleRatio > 1:
		return fmt.Errorf("sample ratio must be within [0, 1], got %v", s.SampleRatio)
	}
	return nil
}

// endpoint splits the endpoint into host:port and whether TLS is off
func (s Settings) endpoint() (string, bool) {
	switch e := s.OTLPEndpoint; {
	case strings.HasPrefix(e, "https://"):
		return strings.TrimPrefix(e, "https://"), false
	case strings.HasPrefix(e, "http://"):
		return strings.TrimPrefix(e, "http://"), true
	default:
		return e, true
	}
}

// Provider is an installed tracer provider
type Provider struct {
	tp     *sdktrace.TracerProvider
	logger *zap.Logger
}

// Install creates the exporter and makes the provider global, together
// with the W3C trace context propagator
func Install(ctx context.Context, s Settings, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("invalid tracing settings: %w", err)
	}

	host, insecure := s.endpoint()
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter for %s: %w", s.OTLPEndpoint, err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.ServiceName),
		semconv.ServiceVersion(s.ServiceVersion),
		semconv.DeploymentEnvironment(s.Environment),
	}
	for k, v := range s.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("Tracing enabled",
		zap.String("service", s.ServiceName),
		zap.String("endpoint", host),
		zap.Bool("insecure", insecure),
		zap.Float64("sample_ratio", s.SampleRatio))
	return &Provider{tp: tp, logger: logger}, nil
}

// Shutdown flushes pending spans. Without a deadline on ctx it waits at
// most ten seconds. A nil provider is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		p.logger.Error("Tracing shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
