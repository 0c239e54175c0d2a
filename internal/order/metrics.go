package order

import (
	"context"
	"errors"

	"bookstore/internal/apperror"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type engineMetrics struct {
	created      metric.Int64Counter
	cancelled    metric.Int64Counter
	createFailed metric.Int64Counter
	notifyFailed metric.Int64Counter
}

// newEngineMetrics registers the engine counters on meter. When any
// registration fails the returned metrics are no-ops and the error is
// reported alongside them.
func newEngineMetrics(meter metric.Meter) (*engineMetrics, error) {

	created, err1 := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed by CreateOrder"))
	cancelled, err2 := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders moved to Cancelled with stock restored"))
	createFailed, err3 := meter.Int64Counter("orders.create_failed",
		metric.WithDescription("CreateOrder calls that rolled back, by error kind"))
	notifyFailed, err4 := meter.Int64Counter("notifications.failed",
		metric.WithDescription("Post-commit notifications that returned an error"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return noopEngineMetrics(), err
	}
	return &engineMetrics{
		created:      created,
		cancelled:    cancelled,
		createFailed: createFailed,
		notifyFailed: notifyFailed,
	}, nil
}

func noopEngineMetrics() *engineMetrics {
	var c noop.Int64Counter
	return &engineMetrics{created: c, cancelled: c, createFailed: c, notifyFailed: c}
}

func (m *engineMetrics) recordCreateFailed(ctx context.Context, err error) {
	kind := string(apperror.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	m.createFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *engineMetrics) recordNotifyFailed(ctx context.Context, event string) {
	m.notifyFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
