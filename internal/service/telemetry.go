package service

import (
	"context"
	"errors"
	"time"

	"procurement/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer  = otel.Tracer("procurement/service")
	metrics = newServiceMetrics()
)

type serviceMetrics struct {
	events  metric.Int64Counter
	denials metric.Int64Counter
}

func newServiceMetrics() serviceMetrics {
	meter := otel.Meter("procurement/service")

	events, err := meter.Int64Counter("procurement.purchase_events.total",
		metric.WithDescription("Committed purchase request state changes"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		otel.Handle(err)
		events = noop.Int64Counter{}
	}

	denials, err := meter.Int64Counter("procurement.budget_denials.total",
		metric.WithDescription("Budget reservations refused"),
		metric.WithUnit("{reservation}"),
	)
	if err != nil {
		otel.Handle(err)
		denials = noop.Int64Counter{}
	}
	return serviceMetrics{events: events, denials: denials}
}

func (m serviceMetrics) event(ctx context.Context, eventType string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m serviceMetrics) denial(ctx context.Context, period model.Period) {
	m.denials.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("year", period.Year),
		attribute.Int("month", period.Month),
	))
}

// Clock returns the current time. Services take one so tests can pin dates.
type Clock func() time.Time

// SystemClock is the default Clock, always in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// endSpan records err on span (if any) and ends it. A budget denial is a
// business outcome, so it is annotated but leaves the status unset.
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrBudgetExceeded):
		span.SetAttributes(attribute.Bool("budget.denied", true))
		span.AddEvent("budget exceeded", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
