// Package observability provides tracing for the export pipeline. Spans wrap
// an export run and each asset type within it; the stdout exporter keeps the
// dependency surface small while still producing OTLP-shaped traces.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/mirrorlake/assetsync"

var (
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// Init sets up the tracer provider. When disabled, the package keeps the
// no-op tracer and span helpers cost nothing.
func Init(enabled bool) error {
	var err error
	initOnce.Do(func() {
		if !enabled {
			return
		}

		var exporter *stdouttrace.Exporter
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(provider)
		tracer = provider.Tracer(tracerName)
	})
	return err
}

// Shutdown flushes and stops the tracer provider
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartRunSpan starts the span for one export run
func StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "export.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
}

// StartTypeSpan starts the span for one asset type within a run
func StartTypeSpan(ctx context.Context, assetType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "export.type",
		trace.WithAttributes(attribute.String("asset.type", assetType)))
}

// EndSpan ends a span, recording err when non-nil
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
