package logger

import (
	"context"

	"github.com/stridehq/stride/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger builds the process logger and installs it as the zap global.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	var log *zap.Logger
	var err error
	if cfg.Environment == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
	)
	zap.ReplaceGlobals(log)
	return log, nil
}

// FromContext returns the global logger annotated with the active trace and
// span ids, when a sampled span is present.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	span := trace.SpanContextFromContext(ctx)
	if span.IsValid() {
		log = log.With(
			zap.String("trace_id", span.TraceID().String()),
			zap.String("span_id", span.SpanID().String()),
		)
	}
	return log
}

// Module provides the zap logger to the fx graph.
var Module = fx.Module("observability.logger",
	fx.Provide(NewLogger),
)
