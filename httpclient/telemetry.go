package httpclient

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "github.com/vapeshed/cis-bricks/httpclient"

	metricAttempts = "http.client.attempts"
	metricDuration = "http.client.duration"

	attrMethod         = "http.request.method"
	attrURL            = "url.full"
	attrStatus         = "http.response.status_code"
	attrRequestID      = "request.id"
	attrIdempotencyKey = "request.idempotency_key"
	attrAttempt        = "retry.attempt"
	attrAttempts       = "retry.attempts"
	attrOutcome        = "retry.outcome"
	attrErrorType      = "error.type"
)

// telemetry owns the tracer and instruments for one client.
type telemetry struct {
	tracer   trace.Tracer
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// newTelemetry builds instruments from the given providers. Instrument
// creation failures fall back to no-op instruments so calls never fail on telemetry.
func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	noopMeter := metricnoop.NewMeterProvider().Meter(instrumentationName)

	attempts, err := meter.Int64Counter(metricAttempts,
		metric.WithDescription("Physical HTTP attempts made by the client"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		attempts, _ = noopMeter.Int64Counter(metricAttempts)
	}
	duration, err := meter.Float64Histogram(metricDuration,
		metric.WithDescription("Duration of logical client calls including retries"),
		metric.WithUnit("ms"))
	if err != nil {
		duration, _ = noopMeter.Float64Histogram(metricDuration)
	}

	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		attempts: attempts,
		duration: duration,
	}
}

// startCall opens the span that covers every attempt of one call.
// maskedURL must already have sensitive query values removed.
func (t *telemetry) startCall(ctx context.Context, cl *call, maskedURL string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, cl.method),
		attribute.String(attrURL, maskedURL),
		attribute.String(attrRequestID, cl.requestID),
	}
	if cl.idempotencyKey != "" {
		attrs = append(attrs, attribute.String(attrIdempotencyKey, cl.idempotencyKey))
	}
	return t.tracer.Start(ctx, "HTTP "+cl.method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

// recordAttempt adds an attempt event to the span and bumps the attempt counter.
func (t *telemetry) recordAttempt(ctx context.Context, span trace.Span, cl *call, attempt, status int, outcome Outcome, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int(attrAttempt, attempt),
		attribute.String(attrOutcome, outcome.String()),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrStatus, status))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, errorTypeName(err)))
	}
	span.AddEvent("attempt", trace.WithAttributes(attrs...))

	t.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, cl.method),
		attribute.String(attrOutcome, outcome.String()),
	))
}

// endCall records the final status and duration, then ends the span.
func (t *telemetry) endCall(ctx context.Context, span trace.Span, cl *call, resp *Response, err error) {
	defer span.End()

	attrs := []attribute.KeyValue{attribute.String(attrMethod, cl.method)}
	span.SetAttributes(attribute.Int(attrAttempts, resp.Stats.Attempts))
	if resp.StatusCode > 0 {
		span.SetAttributes(attribute.Int(attrStatus, resp.StatusCode))
		attrs = append(attrs, attribute.Int(attrStatus, resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(attrErrorType, errorTypeName(err)))
		attrs = append(attrs, attribute.String(attrErrorType, errorTypeName(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	ms := float64(resp.Stats.ElapsedTime.Microseconds()) / 1000.0
	t.duration.Record(ctx, ms, metric.WithAttributes(attrs...))
}
