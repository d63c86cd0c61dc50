package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Engine holds the order engine's instruments. A nil *Engine records nothing.
type Engine struct {
	transitions         metric.Int64Counter
	reservationFailures metric.Int64Counter
	reconciliations     metric.Int64Counter
	operationDuration   metric.Float64Histogram
}

func NewEngine(meter metric.Meter) (*Engine, error) {
	transitions, err := meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Committed order status transitions"),
	)
	if err != nil {
		return nil, err
	}

	reservationFailures, err := meter.Int64Counter("inventory_reservation_failures_total",
		metric.WithDescription("Reservations rejected for insufficient stock"),
	)
	if err != nil {
		return nil, err
	}

	reconciliations, err := meter.Int64Counter("payment_reconciliations_total",
		metric.WithDescription("Gateway callbacks processed, by source and response code"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("order_operation_duration_seconds",
		metric.WithDescription("Duration of order engine operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		transitions:         transitions,
		reservationFailures: reservationFailures,
		reconciliations:     reconciliations,
		operationDuration:   operationDuration,
	}, nil
}

func (e *Engine) Transition(ctx context.Context, from, to string) {
	if e == nil {
		return
	}
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (e *Engine) ReservationFailed(ctx context.Context) {
	if e == nil {
		return
	}
	e.reservationFailures.Add(ctx, 1)
}

func (e *Engine) Reconciled(ctx context.Context, source, rspCode string) {
	if e == nil {
		return
	}
	e.reconciliations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("rsp_code", rspCode),
	))
}

func (e *Engine) Observe(ctx context.Context, operation string, t *Timer, err error) {
	if e == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.operationDuration.Record(ctx, t.Duration().Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
