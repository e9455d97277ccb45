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

// IterationAttrs identifies one flow iteration on its span.
type IterationAttrs struct {
	Wave      string
	VU        int
	Iteration int
}

// StartIterationSpan opens the root span of one flow iteration.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, it IterationAttrs) (context.Context, trace.Span) {
	return tracer.Start(ctx, "shopflow.iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("shopflow.wave", it.Wave),
			attribute.Int("shopflow.vu", it.VU),
			attribute.Int("shopflow.iteration", it.Iteration),
		),
	)
}

// StartStepSpan opens a client span for one flow step, named after its tag.
func StartStepSpan(ctx context.Context, tracer trace.Tracer, step, host string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "shopflow "+step,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("shopflow.step", step))
	if host != "" {
		span.SetAttributes(attribute.String("server.address", host))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
