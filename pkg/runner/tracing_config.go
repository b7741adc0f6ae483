package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/internal/tracing"
)

// TracingConfig configures the OTLP exporter a Runner installs
type TracingConfig = tracing.Settings

// DefaultTracingConfig exports to a collector on localhost
func DefaultTracingConfig(serviceName string) TracingConfig {
	return tracing.Defaults(serviceName)
}

// installTracing returns nil when cfg is nil or the exporter cannot be
// created; the runner then keeps the global provider
func installTracing(cfg *TracingConfig, logger *zap.Logger) *tracing.Provider {
	if cfg == nil {
		return nil
	}
	p, err := tracing.Install(context.Background(), *cfg, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		return nil
	}
	return p
}
