package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartRequestSpan starts a client span for one dispatched request, tagged
// with the Signal's sequence number so a span can be correlated back to its
// telemetry.Sample.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, target string, seq uint64) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, method+" "+target, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
		attribute.Int64("metron.seq", int64(seq)),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status and the response's status
// code if applicable.
func EndSpan(span trace.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into outgoing request headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
