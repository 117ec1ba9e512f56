package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

func TestSpanCollectorFilters(t *testing.T) {
	tp := NewTestTraceProvider()
	defer tp.Shutdown(context.Background())

	tracer := tp.Tracer("scope-a")
	_, first := tracer.Start(context.Background(), "HTTP GET")
	first.SetAttributes(attribute.String("http.request.method", "GET"), attribute.Int("retry.attempts", 2))
	first.AddEvent("attempt")
	first.AddEvent("attempt")
	first.SetStatus(codes.Ok, "")
	first.End()

	_, second := tp.Tracer("scope-b").Start(context.Background(), "HTTP POST")
	second.SetAttributes(attribute.Bool("idempotent", true))
	second.End()

	all := NewSpanCollector(t, tp.Exporter)
	assert.Equal(t, 2, all.Len())
	all.WithName("HTTP GET").AssertCount(1)
	all.WithScope("scope-b").AssertCount(1)
	all.WithAttribute("idempotent", true).AssertCount(1)
	all.WithAttribute("retry.attempts", 3).AssertCount(0)

	span := all.WithScope("scope-a").First()
	AssertSpanAttribute(t, &span, "http.request.method", "GET")
	AssertSpanAttribute(t, &span, "retry.attempts", 2)
	AssertSpanStatus(t, &span, codes.Ok)
	assert.Equal(t, 2, CountEvents(&span, "attempt"))

	_, ok := SpanAttribute(&span, "missing")
	assert.False(t, ok)
}

func TestMeterHelpers(t *testing.T) {
	mp := NewTestMeterProvider()
	defer mp.Shutdown(context.Background())

	meter := mp.Meter("test")
	counter, err := meter.Int64Counter("calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", "success")))
	counter.Add(context.Background(), 2, metric.WithAttributes(attribute.String("outcome", "retryable")))

	hist, err := meter.Float64Histogram("duration")
	require.NoError(t, err)
	hist.Record(context.Background(), 12.5)
	hist.Record(context.Background(), 30)

	rm := mp.Collect(t)
	assert.Equal(t, int64(3), SumInt64(t, rm, "calls"))
	assert.Equal(t, uint64(2), HistogramCount(t, rm, "duration"))
	assert.Nil(t, FindMetric(rm, "absent"))
}
