// Package observability provides Prometheus metrics and OpenTelemetry tracing for the relay.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ephemeral/relay"

// Tracer provides OpenTelemetry spans around the relay's units of work.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from tp, or from the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartPublishSpan starts a span for one published event.
func (t *Tracer) StartPublishSpan(ctx context.Context, connID, eventID string, kind int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.publish",
		trace.WithAttributes(
			attribute.String("relay.conn_id", connID),
			attribute.String("relay.event_id", eventID),
			attribute.Int("relay.event_kind", kind),
		),
	)
}

// StartSubscribeSpan starts a span for a REQ: registration plus stored-event replay.
func (t *Tracer) StartSubscribeSpan(ctx context.Context, connID, subID string, filters int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.subscribe",
		trace.WithAttributes(
			attribute.String("relay.conn_id", connID),
			attribute.String("relay.sub_id", subID),
			attribute.Int("relay.filters", filters),
		),
	)
}

// StartPurgeSpan starts a span for a full-store purge.
func (t *Tracer) StartPurgeSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.purge")
}

// EndSpan records the number of frames sent and any error, then ends the span.
func (t *Tracer) EndSpan(span trace.Span, delivered int, err error) {
	span.SetAttributes(attribute.Int("relay.delivered", delivered))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
