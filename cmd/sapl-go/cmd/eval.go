package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/heutelbeck/sapl-go/internal/config"
	"github.com/heutelbeck/sapl-go/internal/domain/attribute"
	"github.com/heutelbeck/sapl-go/internal/domain/function"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
	"github.com/heutelbeck/sapl-go/internal/runtime/pdp"
	"github.com/heutelbeck/sapl-go/internal/runtime/trace"
)

var (
	subscriptionFile string
	evalTimeout      time.Duration
	otelStdout       bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate one subscription against a PDP configuration",
	Long: `Load the PDP configuration, build a PDP, and evaluate one
subscription document (subject/action/resource/environment) read from
--subscription. Prints the first decision as JSON and exits.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&subscriptionFile, "subscription", "", "path to a subscription JSON document (required)")
	evalCmd.Flags().DurationVar(&evalTimeout, "timeout", 5*time.Second, "how long to wait for a decision")
	evalCmd.Flags().BoolVar(&otelStdout, "otel-stdout", false, "also trace this evaluation to stdout via OpenTelemetry spans/metrics")
	_ = evalCmd.MarkFlagRequired("subscription")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	compiled, err := cfg.ToPDPConfiguration()
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	subData, err := os.ReadFile(subscriptionFile)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	sub, err := pdp.SubscriptionFromJSON(subData)
	if err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	funcs := function.NewBroker()
	function.RegisterAll(funcs)
	attrs := attribute.NewBroker(attribute.NewRegistry(),
		attribute.WithDefaultGracePeriod(time.Duration(cfg.AttributeGracePeriodMS)*time.Millisecond))

	var sinks trace.MultiSink
	if cfg.TraceDir != "" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		sink, err := trace.NewFileSink(trace.FileSinkConfig{Dir: cfg.TraceDir}, logger)
		if err != nil {
			return fmt.Errorf("open trace sink: %w", err)
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	if otelStdout {
		sink, shutdown, err := newStdoutOTelSink(cmd.Context())
		if err != nil {
			return fmt.Errorf("open otel stdout sink: %w", err)
		}
		defer shutdown()
		sinks = append(sinks, sink)
	}

	var opts []pdp.Option
	if len(sinks) > 0 {
		opts = append(opts, pdp.WithTraceSink(sinks))
	}

	p, err := pdp.New(compiled, funcs, attrs, opts...)
	if err != nil {
		return fmt.Errorf("build pdp: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), evalTimeout)
	defer cancel()

	flux := p.Decide(ctx, sub)
	decisionSub := flux.Subscribe()
	defer decisionSub.Cancel()

	select {
	case decision, ok := <-decisionSub.C():
		if !ok {
			return fmt.Errorf("eval: decision stream closed before emitting")
		}
		cmd.SilenceUsage = true
		return printDecision(decision)
	case <-ctx.Done():
		return fmt.Errorf("eval: timed out waiting for a decision: %w", ctx.Err())
	}
}

// newStdoutOTelSink builds an OTelSink backed by the stdout trace/metric
// exporters: a real collector endpoint is a server concern (out of
// scope for this evaluation harness), but stdout is enough to exercise
// the same span/counter wiring a production deployment would point at
// OTLP. The returned shutdown func flushes and closes both providers.
func newStdoutOTelSink(ctx context.Context) (*trace.OTelSink, func(), error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, fmt.Errorf("build stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	sink, err := trace.NewOTelSink(tp, mp)
	if err != nil {
		return nil, nil, fmt.Errorf("build otel sink: %w", err)
	}

	shutdown := func() {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}
	return sink, shutdown, nil
}

// printDecision renders an AuthorizationDecision as JSON. value.Value
// implements encoding/json.Marshaler (see value.MarshalJSON), so the
// wrapper struct below only needs to pick field names and ordering;
// the value.Value fields encode correctly without manual conversion.
func printDecision(d policy.AuthorizationDecision) error {
	out := struct {
		Decision    policy.Decision `json:"decision"`
		Obligations []value.Value   `json:"obligations,omitempty"`
		Advice      []value.Value   `json:"advice,omitempty"`
		Resource    value.Value     `json:"resource"`
	}{
		Decision:    d.Decision,
		Obligations: d.Obligations,
		Advice:      d.Advice,
		Resource:    d.Resource,
	}

	enc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("eval: encode decision: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}
