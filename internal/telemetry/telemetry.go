// Package telemetry configures OpenTelemetry tracing and metrics and
// exposes the instruments finpace records into.
//
// Without an endpoint, spans and metrics go to discarding exporters so
// instrumented code paths behave the same whether or not a collector is
// configured.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/finpace/internal/errors"
)

// ServiceName identifies finpace in exported telemetry.
const ServiceName = "finpace"

// MetricInterval is how often metrics are exported.
const MetricInterval = 30 * time.Second

// ShutdownFunc flushes and stops the tracer and meter providers.
type ShutdownFunc func(context.Context) error

// Init configures the global tracer and meter providers. An empty endpoint
// falls back to OTEL_EXPORTER_OTLP_ENDPOINT; if that is empty too, spans
// and metrics are dropped after collection.
func Init(ctx context.Context, version, endpoint string, insecure bool) (ShutdownFunc, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	spans, err := newSpanExporter(ctx, endpoint, insecure)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetricExporter(ctx, endpoint, insecure)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
	)
	mp := NewMeterProvider(res, sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(MetricInterval)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// NewMeterProvider returns an SDK meter provider collected by reader.
func NewMeterProvider(res *resource.Resource, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	return sdkmetric.NewMeterProvider(opts...)
}

func newSpanExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(io.Discard))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newMetricExporter(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Exporter, error) {
	if endpoint == "" {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		return exporter, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// WorkerInstruments are the metrics the categorization worker records.
type WorkerInstruments struct {
	Batches       metric.Int64Counter
	Processed     metric.Int64Counter
	Errors        metric.Int64Counter
	RateLimitHits metric.Int64Counter
	BatchSize     metric.Int64Gauge
	IntervalMs    metric.Int64Gauge
	Throughput    metric.Float64Gauge
}

// NewWorkerInstruments registers the worker instruments on mp. A nil mp
// uses the global MeterProvider.
func NewWorkerInstruments(mp metric.MeterProvider) (*WorkerInstruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter("finpace/worker")

	var (
		wi  WorkerInstruments
		err error
	)
	if wi.Batches, err = m.Int64Counter("finpace.worker.batches",
		metric.WithDescription("Batch calls issued")); err != nil {
		return nil, err
	}
	if wi.Processed, err = m.Int64Counter("finpace.worker.processed",
		metric.WithDescription("Transactions categorized")); err != nil {
		return nil, err
	}
	if wi.Errors, err = m.Int64Counter("finpace.worker.errors",
		metric.WithDescription("Failed batch calls, including transport failures")); err != nil {
		return nil, err
	}
	if wi.RateLimitHits, err = m.Int64Counter("finpace.worker.rate_limit_hits",
		metric.WithDescription("Batch calls rejected as rate limited")); err != nil {
		return nil, err
	}
	if wi.BatchSize, err = m.Int64Gauge("finpace.worker.batch_size",
		metric.WithDescription("Current batch size")); err != nil {
		return nil, err
	}
	if wi.IntervalMs, err = m.Int64Gauge("finpace.worker.interval",
		metric.WithDescription("Current polling interval"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if wi.Throughput, err = m.Float64Gauge("finpace.worker.throughput",
		metric.WithDescription("Transactions per minute since start"), metric.WithUnit("{transaction}/min")); err != nil {
		return nil, err
	}
	return &wi, nil
}
