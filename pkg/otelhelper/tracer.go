// Package otelhelper provides distributed tracing functionality for process execution.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	MessageKindKey       = "sbpm.message.kind"
	MessageIDKey         = "sbpm.message.id"
	AddressKey           = "sbpm.address"
	TaskIDKey            = "sbpm.task.id"
	ProcessModelIDKey    = "sbpm.process_model.id"
	ProcessInstanceIDKey = "sbpm.process_instance.id"
	SubjectIDKey         = "sbpm.subject.id"
	EventIDKey           = "sbpm.event.id"
	EventTypeKey         = "sbpm.event.type"
)

// Shutdown flushes and stops a tracer provider.
type Shutdown func(ctx context.Context) error

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, Shutdown, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	return provider.Tracer(serviceName), provider.Shutdown, nil
}

// NoopTracer returns a tracer that records nothing. It is used when no exporter is configured.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("sbpm")
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
