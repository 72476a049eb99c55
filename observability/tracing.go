package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hookline/hookline"

// Tracer provides OpenTelemetry tracing for the relay.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new relay tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, logID, eventID, subscriptionID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hookline.delivery",
		trace.WithAttributes(
			attribute.String("hookline.delivery_log_id", logID),
			attribute.String("hookline.event_id", eventID),
			attribute.String("hookline.subscription_id", subscriptionID),
			attribute.Int("hookline.attempt", attempt),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("hookline.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("hookline.error", err))
	}
	span.End()
}
