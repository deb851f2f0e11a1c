package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setRecorderTracer installs an always-sampling tracer backed by an
// in-memory span recorder, for use by the test suite to assert on span
// names and attributes without standing up a real collector.
func setRecorderTracer() (*tracetest.InMemoryExporter, func(), error) {
	rec := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(rec),
	)
	otel.SetTracerProvider(tp)
	return rec, func() { _ = tp.Shutdown(context.Background()) }, nil
}
