// Package telemetry configures OpenTelemetry tracing for harvester runs.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for run spans.
const TracerName = "github.com/JakeFAU/profile-harvester"

// InitTracerProvider installs a global tracer provider and the W3C trace
// context propagator. Spans are not exported; their context travels with
// Pub/Sub completion messages so subscribers can join the trace.
func InitTracerProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// StartRun opens the root span for one harvester command.
func StartRun(ctx context.Context, kind, runID string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "harvester."+kind,
		trace.WithAttributes(
			attribute.String("harvester.run_id", runID),
			attribute.String("harvester.kind", kind),
		),
	)
}
