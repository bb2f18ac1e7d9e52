package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// instrumentationName is the OpenTelemetry instrumentation scope used for
// every meter/tracer obtained from the global providers. Configure the
// providers once at process start (e.g. via clue.ConfigureOpenTelemetry)
// before constructing a ClueTracer/ClueMetrics.
const instrumentationName = "github.com/strukalex/agentic-assistant-framework-sub000/telemetry"

// ClueLogger delegates to goa.design/clue/log. It reads formatting and debug
// settings from the context set up by the caller (log.Context, log.WithFormat).
type ClueLogger struct{}

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, fields(msg, kv)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, fields(msg, kv)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	log.Warn(ctx, fields(msg, kv)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, fields(msg, kv)...)
}

func fields(msg string, kv []any) []log.Fielder {
	out := make([]log.Fielder, 0, 1+len(kv)/2)
	out = append(out, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		out = append(out, log.KV{K: key, V: kv[i+1]})
	}
	return out
}

// ClueMetrics records counters/histograms/gauges via the global OTEL meter
// provider.
type ClueMetrics struct {
	meter metric.Meter
}

// NewClueMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider. Configure that provider before issuing runtime calls.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter(instrumentationName)}
}

func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	h, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}

// ClueTracer emits spans via the global OTEL TracerProvider.
type ClueTracer struct {
	tracer trace.Tracer
}

// NewClueTracer constructs a Tracer backed by the global OTEL TracerProvider.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *ClueTracer) Start(ctx context.Context, name string, attrs ...KV) (context.Context, Span) {
	opts := make([]trace.SpanStartOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(kvToAttrs(attrs)...))
	}
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

type clueSpan struct {
	span trace.Span
}

func (s *clueSpan) End() { s.span.End() }

func (s *clueSpan) AddEvent(name string, attrs ...KV) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(attrs)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *clueSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func kvToAttrs(attrs []KV) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, attribute.String(a.Key, fmt.Sprintf("%v", a.Value)))
	}
	return out
}
