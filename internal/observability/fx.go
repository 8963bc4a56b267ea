package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stridehq/stride/internal/observability/logger"
	"github.com/stridehq/stride/internal/observability/metrics"
	"github.com/stridehq/stride/internal/observability/tracing"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing, and metrics for the service.
var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(tracing.NewProvider),
	fx.Provide(NewRegistry),
	fx.Provide(NewMeterProvider),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Provide(NewAlertingMetrics),
	// The tracer provider has no downstream consumer; force construction so
	// its lifecycle hooks register.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

// NewRegistry creates the prometheus registry backing /metrics.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// NewMeterProvider bridges OTel instruments into the prometheus registry.
func NewMeterProvider(registry *prometheus.Registry) (metric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// NewAlertingMetrics registers the audit/alert pipeline counters.
func NewAlertingMetrics(registry *prometheus.Registry) *metrics.Alerting {
	return metrics.NewAlerting(registry)
}
