package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

// OTelSink exports each combined Vote as a zero-duration span plus a
// decision-outcome counter increment, using the go.opentelemetry.io/otel
// stack the teacher repo already depends on (go.mod lists otel/trace,
// otel/metric, otel/sdk) but never exercised in any copied source file.
// A trace/coverage channel that runs "alongside evaluation" (spec.md
// §4.10) rather than inline is exactly OTel's shape: spans for lineage,
// a counter for aggregate reporting.
type OTelSink struct {
	tracer  otelTrace.Tracer
	counter metric.Int64Counter
}

// NewOTelSink builds a sink against caller-supplied providers (a
// TracerProvider/MeterProvider the caller already wired to whatever
// exporter it wants — stdout, OTLP, etc.) rather than reaching for the
// global otel.Tracer/otel.Meter, keeping this package free of global
// mutable state per spec.md §5's "no mutable globals".
func NewOTelSink(tp otelTrace.TracerProvider, mp metric.MeterProvider) (*OTelSink, error) {
	meter := mp.Meter("sapl-go/pdp")
	counter, err := meter.Int64Counter(
		"sapl_pdp_decisions",
		metric.WithDescription("Combined PDP decisions by outcome, mirrored from the trace channel"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelSink{
		tracer:  tp.Tracer("sapl-go/pdp"),
		counter: counter,
	}, nil
}

// Record implements policy.TraceSink.
func (s *OTelSink) Record(v policy.Vote) {
	ctx := context.Background()
	spanName := v.VoterName
	if spanName == "" {
		spanName = "unnamed-voter"
	}
	_, span := s.tracer.Start(ctx, spanName, otelTrace.WithAttributes(
		attribute.String("sapl.decision", string(v.Decision.Decision)),
		attribute.String("sapl.document_id", v.DocumentID),
		attribute.Bool("sapl.is_set", v.IsSet),
		attribute.Int("sapl.error_count", len(v.Errors)),
	))
	span.End()

	s.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", string(v.Decision.Decision)),
	))
}
