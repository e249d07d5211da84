package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	traceparent, _ := TraceContextStrings(ctx)
	if traceparent == "" {
		t.Fatal("expected traceparent")
	}

	restored := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), traceparent, ""))
	if restored.TraceID() != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, restored.TraceID())
	}

	if got := ContextWithTraceContext(context.Background(), "", ""); trace.SpanContextFromContext(got).IsValid() {
		t.Fatal("expected empty strings to leave context untouched")
	}
}
