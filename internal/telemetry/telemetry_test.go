package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background(), "test", "", true)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := Tracer("finpace/test").Start(context.Background(), "probe")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span from the SDK provider")
	}
	span.End()

	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Errorf("global MeterProvider = %T, want *sdkmetric.MeterProvider", otel.GetMeterProvider())
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestNewWorkerInstruments(t *testing.T) {
	wi, err := NewWorkerInstruments(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewWorkerInstruments() error = %v", err)
	}

	ctx := context.Background()
	wi.Batches.Add(ctx, 1)
	wi.BatchSize.Record(ctx, 5)
	wi.Throughput.Record(ctx, 12.5)
}

func TestNewWorkerInstrumentsGlobal(t *testing.T) {
	if _, err := NewWorkerInstruments(nil); err != nil {
		t.Fatalf("NewWorkerInstruments(nil) error = %v", err)
	}
}

func TestWorkerInstrumentsCollected(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProvider(nil, reader)
	wi, err := NewWorkerInstruments(mp)
	if err != nil {
		t.Fatalf("NewWorkerInstruments() error = %v", err)
	}

	ctx := context.Background()
	wi.Batches.Add(ctx, 1)
	wi.Batches.Add(ctx, 1)
	wi.BatchSize.Record(ctx, 7)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name == "finpace.worker.batches" && data.DataPoints[0].Value != 2 {
					t.Errorf("batches = %d, want 2", data.DataPoints[0].Value)
				}
			case metricdata.Gauge[int64]:
				if m.Name == "finpace.worker.batch_size" && data.DataPoints[0].Value != 7 {
					t.Errorf("batch_size = %d, want 7", data.DataPoints[0].Value)
				}
			}
		}
	}
	for _, name := range []string{"finpace.worker.batches", "finpace.worker.batch_size"} {
		if !found[name] {
			t.Errorf("metric %s not collected", name)
		}
	}
}
