package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rahul/delver/internal/engine"

// Span attribute keys.
var (
	AttrRunID    = attribute.Key("delver.run.id")
	AttrStepID   = attribute.Key("delver.step.id")
	AttrAction   = attribute.Key("delver.step.action")
	AttrStatus   = attribute.Key("delver.step.status")
	AttrProvider = attribute.Key("delver.provider")
)

type telemetry struct {
	tracer       trace.Tracer
	steps        metric.Int64Counter
	providerTime metric.Float64Histogram
}

func newTelemetry() *telemetry {
	meter := otel.Meter(instrumentationName)
	steps, err := meter.Int64Counter("delver.engine.steps",
		metric.WithDescription("Steps executed, by action and status"),
	)
	if err != nil {
		steps, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("delver.engine.steps")
	}
	providerTime, err := meter.Float64Histogram("delver.provider.duration",
		metric.WithDescription("External provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		providerTime, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("delver.provider.duration")
	}
	return &telemetry{
		tracer:       otel.Tracer(instrumentationName),
		steps:        steps,
		providerTime: providerTime,
	}
}

func (t *telemetry) startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(kind))
}

func (t *telemetry) countStep(ctx context.Context, action Action, status Status) {
	t.steps.Add(ctx, 1, metric.WithAttributes(AttrAction.String(string(action)), AttrStatus.String(string(status))))
}

func (t *telemetry) observeProvider(ctx context.Context, provider string, start time.Time) {
	t.providerTime.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrProvider.String(provider)))
}
