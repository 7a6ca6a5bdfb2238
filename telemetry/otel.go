package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type (
	// SlogLogger adapts the standard library's structured logger to Logger.
	SlogLogger struct {
		log *slog.Logger
	}

	// OtelMetrics implements Metrics on top of an OpenTelemetry meter.
	OtelMetrics struct {
		meter    metric.Meter
		counters map[string]metric.Float64Counter
		gauges   map[string]metric.Float64Gauge
		timers   map[string]metric.Float64Histogram
	}

	// OtelTracer implements Tracer on top of an OpenTelemetry tracer.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewSlogLogger constructs a Logger backed by the given slog.Logger. A nil
// logger falls back to slog.Default().
func NewSlogLogger(log *slog.Logger) Logger {
	if log == nil {
		log = slog.Default()
	}
	return &SlogLogger{log: log}
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.log.DebugContext(ctx, msg, keyvals...)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.log.InfoContext(ctx, msg, keyvals...)
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.log.WarnContext(ctx, msg, keyvals...)
}

func (l *SlogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.log.ErrorContext(ctx, msg, keyvals...)
}

// NewOtelMetrics constructs a Metrics recorder backed by the global
// MeterProvider scoped under the given instrumentation name.
func NewOtelMetrics(name string) *OtelMetrics {
	return &OtelMetrics{
		meter:    otel.Meter(name),
		counters: map[string]metric.Float64Counter{},
		gauges:   map[string]metric.Float64Gauge{},
		timers:   map[string]metric.Float64Histogram{},
	}
}

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, ok := m.timers[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name, metric.WithUnit("ms"))
		if err != nil {
			return
		}
		m.timers[name] = h
	}
	h.Record(context.Background(), float64(duration.Milliseconds()), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

// NewOtelTracer constructs a Tracer backed by the global TracerProvider
// scoped under the given instrumentation name.
func NewOtelTracer(name string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(name)}
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name)
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// tagsToAttrs converts a flat key,value,key,value... string slice into OTEL
// attributes, dropping a trailing unpaired key.
func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}
