// Package notify provides order.Notifier implementations that wrap or fan
// out to the concrete delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bookstore/internal/order"

	"golang.org/x/time/rate"
)

// LogNotifier writes every event to a structured log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) OrderConfirmed(ctx context.Context, o *order.Order, c order.Customer) error {
	n.log.InfoContext(ctx, "order confirmed", "order_id", o.ID, "user_id", c.ID, "total", o.Total.String())
	return nil
}

func (n *LogNotifier) StatusChanged(ctx context.Context, o *order.Order, c order.Customer, from, to order.Status) error {
	n.log.InfoContext(ctx, "order status changed", "order_id", o.ID, "user_id", c.ID, "from", from, "to", to)
	return nil
}

func (n *LogNotifier) Cancelled(ctx context.Context, o *order.Order, c order.Customer, reason string) error {
	n.log.InfoContext(ctx, "order cancelled", "order_id", o.ID, "user_id", c.ID, "reason", reason)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []order.Notifier

func (m Multi) OrderConfirmed(ctx context.Context, o *order.Order, c order.Customer) error {
	return m.each(func(n order.Notifier) error { return n.OrderConfirmed(ctx, o, c) })
}

func (m Multi) StatusChanged(ctx context.Context, o *order.Order, c order.Customer, from, to order.Status) error {
	return m.each(func(n order.Notifier) error { return n.StatusChanged(ctx, o, c, from, to) })
}

func (m Multi) Cancelled(ctx context.Context, o *order.Order, c order.Customer, reason string) error {
	return m.each(func(n order.Notifier) error { return n.Cancelled(ctx, o, c, reason) })
}

func (m Multi) each(fn func(order.Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttled limits the rate at which events reach next. A caller whose
// context expires while waiting for a token gets an error and the event is
// dropped.
type Throttled struct {
	next    order.Notifier
	limiter *rate.Limiter
}

func NewThrottled(next order.Notifier, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) OrderConfirmed(ctx context.Context, o *order.Order, c order.Customer) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.OrderConfirmed(ctx, o, c)
}

func (t *Throttled) StatusChanged(ctx context.Context, o *order.Order, c order.Customer, from, to order.Status) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.StatusChanged(ctx, o, c, from, to)
}

func (t *Throttled) Cancelled(ctx context.Context, o *order.Order, c order.Customer, reason string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Cancelled(ctx, o, c, reason)
}

func (t *Throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification throttled: %w", err)
	}
	return nil
}
