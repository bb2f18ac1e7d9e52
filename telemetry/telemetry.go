// Package telemetry defines the logging, metrics, and tracing capabilities
// consumed throughout the runtime. Components depend on the interfaces in
// this package rather than on any concrete logging or tracing library,
// mirroring the "hidden global telemetry" design note: the tracer, logger,
// and metrics recorder are dependencies passed to constructors, never
// singletons fetched from a global.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

type (
	// Logger emits structured log messages. Implementations must be safe for
	// concurrent use.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges for runtime operations.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans for traced operations.
	Tracer interface {
		Start(ctx context.Context, name string, attrs ...KV) (context.Context, Span)
	}

	// Span is a single unit of traced work.
	Span interface {
		End()
		AddEvent(name string, attrs ...KV)
		SetStatus(code codes.Code, description string)
		RecordError(err error)
	}

	// KV is a single telemetry attribute.
	KV struct {
		Key   string
		Value any
	}
)

// Attr builds a KV pair. Convenience constructor to keep call sites short:
// telemetry.Start(ctx, "agent_run", telemetry.Attr("task", task)).
func Attr(key string, value any) KV { return KV{Key: key, Value: value} }

// NoopLogger discards all log messages. Substituted automatically when no
// Logger is configured.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards all metrics. Substituted automatically when no
// Metrics recorder is configured.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, float64, ...string)          {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string)   {}
func (NoopMetrics) RecordGauge(string, float64, ...string)         {}

// NoopTracer produces spans that record nothing. Substituted automatically
// when no Tracer is configured.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string, _ ...KV) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                {}
func (noopSpan) AddEvent(string, ...KV)              {}
func (noopSpan) SetStatus(codes.Code, string)        {}
func (noopSpan) RecordError(error)                   {}
