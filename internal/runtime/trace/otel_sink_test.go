package trace

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkmetricdata "go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

func TestOTelSinkRecordsSpanAndCounter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sink, err := NewOTelSink(tp, mp)
	if err != nil {
		t.Fatalf("NewOTelSink: %v", err)
	}

	sink.Record(policy.Vote{
		Decision:   policy.AuthorizationDecision{Decision: policy.DecisionPermit},
		VoterName:  "allow-alice",
		DocumentID: "cfg/0",
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 recorded span, got %d", len(spans))
	}
	if spans[0].Name != "allow-alice" {
		t.Fatalf("expected span name %q, got %q", "allow-alice", spans[0].Name)
	}

	var data sdkmetricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &data); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(data.ScopeMetrics) == 0 || len(data.ScopeMetrics[0].Metrics) == 0 {
		t.Fatalf("expected at least one collected metric, got %+v", data)
	}
}

func TestOTelSinkNamesUnnamedVoterSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sink, err := NewOTelSink(tp, mp)
	if err != nil {
		t.Fatalf("NewOTelSink: %v", err)
	}

	sink.Record(policy.Vote{Decision: policy.AuthorizationDecision{Decision: policy.DecisionDeny}})

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "unnamed-voter" {
		t.Fatalf("expected fallback span name %q, got %+v", "unnamed-voter", spans)
	}
}
