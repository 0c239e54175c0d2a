package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/catalog"
	"bookstore/internal/eventstore"
	"bookstore/internal/identity"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures an Engine.
type Options struct {
	Shipping      ShippingPolicy
	Limits        Limits
	NotifyTimeout time.Duration
	Notifier      Notifier
	Customers     CustomerDirectory
	Identity      identity.Provider
	Logger        *slog.Logger
	Clock         func() time.Time
}

// DefaultOptions returns the production defaults without a notifier.
func DefaultOptions() Options {
	return Options{
		Shipping:      DefaultShippingPolicy(),
		Limits:        DefaultLimits(),
		NotifyTimeout: 2 * time.Second,
	}
}

// Engine runs the order operations. Every mutation happens inside one
// Transactor.WithinTx call; notifications are sent only after it commits.
type Engine struct {
	tx       Transactor
	ledger   *voucher.Ledger
	opts     Options
	identity identity.Provider
	log      *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
	metrics  *engineMetrics
	inflight sync.WaitGroup
}

// NewEngine creates an engine. It panics if tx or ledger is nil.
func NewEngine(tx Transactor, ledger *voucher.Ledger, opts Options) *Engine {
	if tx == nil {
		panic("order: nil transactor")
	}
	if ledger == nil {
		panic("order: nil voucher ledger")
	}

	e := &Engine{
		tx:       tx,
		ledger:   ledger,
		opts:     opts,
		identity: opts.Identity,
		log:      opts.Logger,
		now:      opts.Clock,
		tracer:   otel.Tracer("bookstore/order"),
	}
	if e.identity == nil {
		e.identity = identity.ContextProvider{}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "order")
	if e.now == nil {
		e.now = time.Now
	}
	if e.opts.NotifyTimeout <= 0 {
		e.opts.NotifyTimeout = 2 * time.Second
	}

	m, err := newEngineMetrics(otel.Meter("bookstore/order"))
	if err != nil {
		e.log.Warn("failed to register order metrics", "error", err)
	}
	e.metrics = m
	return e
}

// Wait blocks until every dispatched notification has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// CreateOrder reserves stock, applies the voucher and persists the order in
// one transaction.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := e.tracer.Start(ctx, "order.create",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID.String()),
			attribute.Int("items.count", len(req.Items)),
			attribute.Bool("voucher.present", strings.TrimSpace(req.VoucherCode) != ""),
		),
	)
	defer span.End()

	order, err := e.createOrder(ctx, req)
	if err != nil {
		e.metrics.recordCreateFailed(ctx, err)
		e.fail(span, "CreateOrder", err, "user_id", req.UserID)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	e.metrics.created.Add(ctx, 1)
	e.log.Info("order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"total", order.Total.String(),
	)

	e.dispatch(ctx, "order_confirmed", order, func(ctx context.Context, o *Order, c Customer, n Notifier) error {
		return n.OrderConfirmed(ctx, o, c)
	})
	return order, nil
}

func (e *Engine) createOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.UserID == uuid.Nil {
		return nil, apperror.InvalidInput("user id is required")
	}
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return nil, apperror.InvalidInput("shipping address is required")
	}
	payment := strings.TrimSpace(req.PaymentMethod)
	if payment == "" {
		return nil, apperror.InvalidInput("payment method is required")
	}
	items, err := normalizeItems(req.Items, e.opts.Limits)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	order := &Order{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Status:          StatusPending,
		ShippingAddress: address,
		PaymentMethod:   payment,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = e.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		// Step 1: lock and price every book
		books := make(map[uuid.UUID]*catalog.Book, len(items))
		for _, id := range lockOrder(items, func(it LineItem) uuid.UUID { return it.BookID }) {
			book, err := uow.Books().GetBook(ctx, id)
			if err != nil {
				return err
			}
			books[id] = book
		}

		order.Details = make([]Detail, 0, len(items))
		subTotal := decimal.Zero
		for _, it := range items {
			book := books[it.BookID]
			if book.Quantity < it.Quantity {
				return apperror.InsufficientStock(it.BookID, it.Quantity, book.Quantity)
			}
			d := Detail{
				OrderID:   order.ID,
				BookID:    it.BookID,
				Quantity:  it.Quantity,
				UnitPrice: book.Price,
			}
			order.Details = append(order.Details, d)
			subTotal = subTotal.Add(d.LineTotal())
		}
		order.SubTotal = subTotal

		// Step 2: validate the voucher against the repriced subtotal
		var redeemed *voucher.Validation
		order.VoucherCode, order.VoucherDiscount, order.FreeShipping = nil, decimal.Zero, false
		if code := voucher.NormalizeCode(req.VoucherCode); code != "" {
			res, err := e.ledger.Validate(ctx, uow.Vouchers(), code, subTotal, &order.UserID)
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return err
			}
			redeemed = &res
			order.VoucherCode = &res.Code
			order.VoucherDiscount = res.DiscountAmount
			order.FreeShipping = res.FreeShipping
		}

		order.ShippingFee = e.opts.Shipping.FeeFor(subTotal, order.FreeShipping)
		if order.ShippingFee.IsZero() {
			order.FreeShipping = true
		}
		order.Total = ComputeTotal(order.SubTotal, order.VoucherDiscount, order.ShippingFee)

		// Step 3: reserve stock
		for _, id := range lockOrder(order.Details, func(d Detail) uuid.UUID { return d.BookID }) {
			if _, err := uow.Books().AdjustQuantity(ctx, id, -quantityOf(order.Details, id)); err != nil {
				return err
			}
		}

		// Step 4: persist the order, then redeem the voucher
		if err := uow.Orders().Save(ctx, order); err != nil {
			return err
		}
		if redeemed != nil {
			err := e.ledger.RecordUsage(ctx, uow.Vouchers(), redeemed.Voucher.ID, order.UserID, order.ID, order.VoucherDiscount)
			if err != nil {
				return err
			}
		}

		return e.appendEvent(ctx, uow, order.ID, 0, EventOrderCreated, OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			Items:       order.Details,
			VoucherCode: order.VoucherCode,
			Discount:    order.VoucherDiscount,
			Total:       order.Total,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus moves an order along the transition table. Moving to
// Cancelled restores stock the same way CancelOrder does.
func (e *Engine) UpdateStatus(ctx context.Context, orderID uuid.UUID, next Status) (*Order, error) {
	ctx, span := e.tracer.Start(ctx, "order.update_status",
		trace.WithAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("status.to", string(next)),
		),
	)
	defer span.End()

	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}

	var from Status
	order, err := e.mutate(ctx, orderID, func(ctx context.Context, uow UnitOfWork, o *Order) (string, any, error) {
		from = o.Status
		if !o.Status.CanTransitionTo(next) {
			return "", nil, apperror.InvalidTransition(string(o.Status), string(next))
		}

		if next == StatusCancelled {
			if err := e.restoreStock(ctx, uow, o); err != nil {
				return "", nil, err
			}
			o.Status = next
			o.CancelReason = AdminCancelReason
			return EventOrderCancelled, OrderCancelledEvent{OrderID: o.ID, From: from, Reason: AdminCancelReason, Restored: o.Details}, nil
		}

		o.Status = next
		return EventOrderStatusChanged, OrderStatusChangedEvent{OrderID: o.ID, From: from, To: next}, nil
	})
	if err != nil {
		e.fail(span, "UpdateStatus", err, "order_id", orderID, "status", next)
		return nil, err
	}

	e.log.Info("order status changed", "order_id", orderID, "from", from, "to", next)
	if next == StatusCancelled {
		e.metrics.cancelled.Add(ctx, 1)
		e.dispatch(ctx, "order_cancelled", order, func(ctx context.Context, o *Order, c Customer, n Notifier) error {
			return n.Cancelled(ctx, o, c, o.CancelReason)
		})
	} else {
		e.dispatch(ctx, "status_changed", order, func(ctx context.Context, o *Order, c Customer, n Notifier) error {
			return n.StatusChanged(ctx, o, c, from, next)
		})
	}
	return order, nil
}

// CancelOrder cancels a Pending or Confirmed order on behalf of its owner or
// an admin and restores every reserved copy.
func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*Order, error) {
	ctx, span := e.tracer.Start(ctx, "order.cancel",
		trace.WithAttributes(attribute.String("order.id", orderID.String())),
	)
	defer span.End()

	caller, err := e.identity.CurrentUser(ctx)
	if err != nil {
		e.fail(span, "CancelOrder", err, "order_id", orderID)
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	order, err := e.mutate(ctx, orderID, func(ctx context.Context, uow UnitOfWork, o *Order) (string, any, error) {
		if !caller.CanAccess(o.UserID) {
			return "", nil, apperror.Forbidden("order belongs to another user")
		}
		if !o.Status.customerCancellable() {
			return "", nil, apperror.CannotCancel(string(o.Status))
		}
		if err := e.restoreStock(ctx, uow, o); err != nil {
			return "", nil, err
		}

		from := o.Status
		o.Status = StatusCancelled
		o.CancelReason = reason
		return EventOrderCancelled, OrderCancelledEvent{OrderID: o.ID, From: from, Reason: reason, Restored: o.Details}, nil
	})
	if err != nil {
		e.fail(span, "CancelOrder", err, "order_id", orderID)
		return nil, err
	}

	e.metrics.cancelled.Add(ctx, 1)
	e.log.Info("order cancelled", "order_id", orderID, "by", caller.UserID)
	e.dispatch(ctx, "order_cancelled", order, func(ctx context.Context, o *Order, c Customer, n Notifier) error {
		return n.Cancelled(ctx, o, c, reason)
	})
	return order, nil
}

// DeleteOrder hard-deletes an order. Stock is restored unless the order was
// already cancelled. The event history is kept.
func (e *Engine) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	ctx, span := e.tracer.Start(ctx, "order.delete",
		trace.WithAttributes(attribute.String("order.id", orderID.String())),
	)
	defer span.End()

	err := e.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		restore := o.Status != StatusCancelled
		if restore {
			if err := e.restoreStock(ctx, uow, o); err != nil {
				return err
			}
		}
		if err := uow.Orders().Delete(ctx, orderID); err != nil {
			return err
		}
		return e.appendEvent(ctx, uow, orderID, o.Version, EventOrderDeleted, OrderDeletedEvent{
			OrderID:       orderID,
			Status:        o.Status,
			StockRestored: restore,
		})
	})
	if err != nil {
		e.fail(span, "DeleteOrder", err, "order_id", orderID)
		return err
	}

	e.log.Info("order deleted", "order_id", orderID)
	return nil
}

// GetOrder returns an order visible to the caller.
func (e *Engine) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	caller, err := e.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	o, err := e.tx.Reader().Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(o.UserID) {
		return nil, apperror.Forbidden("order belongs to another user")
	}
	return o, nil
}

// ListOrders returns orders matching f. Non-admin callers only ever see
// their own orders.
func (e *Engine) ListOrders(ctx context.Context, f Filter) ([]*Order, error) {
	caller, err := e.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		if f.UserID != uuid.Nil && f.UserID != caller.UserID {
			return nil, apperror.Forbidden("cannot list another user's orders")
		}
		f.UserID = caller.UserID
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, apperror.InvalidInput("date range end precedes its start")
	}

	store := e.tx.Reader().Orders()
	var orders []*Order
	switch {
	case f.UserID != uuid.Nil:
		orders, err = store.GetByUser(ctx, f.UserID)
	case f.Status != "":
		orders, err = store.GetByStatus(ctx, f.Status)
	case !f.From.IsZero() || !f.To.IsZero():
		from, to := f.From, f.To
		if to.IsZero() {
			to = e.now().UTC()
		}
		orders, err = store.GetByDateRange(ctx, from, to)
	default:
		return nil, apperror.InvalidInput("listing all orders requires a user, status or date filter")
	}
	if err != nil {
		return nil, err
	}

	out := orders[:0]
	for _, o := range orders {
		if f.matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// History returns the event log of an order visible to the caller. Deleted
// orders are visible to admins only.
func (e *Engine) History(ctx context.Context, orderID uuid.UUID) ([]eventstore.Event, error) {
	caller, err := e.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	reader := e.tx.Reader()
	o, err := reader.Orders().Get(ctx, orderID)
	switch {
	case err == nil:
		if !caller.CanAccess(o.UserID) {
			return nil, apperror.Forbidden("order belongs to another user")
		}
	case apperror.KindOf(err) == apperror.KindNotFound && caller.IsAdmin():
	default:
		return nil, err
	}

	events, err := reader.Events().LoadEvents(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperror.NotFound("order", orderID)
	}
	return events, nil
}

type mutation func(ctx context.Context, uow UnitOfWork, o *Order) (eventType string, payload any, err error)

// mutate loads the order under lock, applies fn and writes the new header
// and its event in the same transaction.
func (e *Engine) mutate(ctx context.Context, orderID uuid.UUID, fn mutation) (*Order, error) {
	var order *Order
	err := e.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		eventType, payload, err := fn(ctx, uow, o)
		if err != nil {
			return err
		}

		expected := o.Version
		o.Version++
		o.UpdatedAt = e.now().UTC()
		if err := uow.Orders().UpdateStatus(ctx, o); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, uow, o.ID, expected, eventType, payload); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func (e *Engine) appendEvent(ctx context.Context, uow UnitOfWork, orderID uuid.UUID, expectedVersion int, eventType string, payload any) error {
	event, err := eventstore.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	if err := uow.Events().AppendEvents(ctx, orderID, aggregateType, expectedVersion, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append %s: %w", eventType, err)
	}
	return nil
}

// restoreStock returns every reserved copy of o to the catalog. Books that
// no longer exist are skipped.
func (e *Engine) restoreStock(ctx context.Context, uow UnitOfWork, o *Order) error {
	for _, id := range lockOrder(o.Details, func(d Detail) uuid.UUID { return d.BookID }) {
		qty := quantityOf(o.Details, id)
		if _, err := uow.Books().AdjustQuantity(ctx, id, qty); err != nil {
			if apperror.KindOf(err) == apperror.KindNotFound {
				e.log.Warn("book missing while restoring stock", "order_id", o.ID, "book_id", id, "quantity", qty)
				continue
			}
			return err
		}
	}
	return nil
}

func quantityOf(details []Detail, bookID uuid.UUID) int {
	n := 0
	for _, d := range details {
		if d.BookID == bookID {
			n += d.Quantity
		}
	}
	return n
}

// fail records err on the span. Business failures are expected control flow
// and are not logged; anything else is a storage fault.
func (e *Engine) fail(span trace.Span, op string, err error, attrs ...any) {
	span.RecordError(err)
	if apperror.IsBusiness(err) {
		span.SetAttributes(attribute.String("error.kind", string(apperror.KindOf(err))))
		return
	}
	span.SetStatus(codes.Error, err.Error())
	e.log.Error("order operation failed", append([]any{"op", op, "error", err}, attrs...)...)
}

type sendFunc func(ctx context.Context, o *Order, c Customer, n Notifier) error

// dispatch notifies in the background with a bounded timeout, detached from
// the request's cancellation. Failures are logged and counted only.
func (e *Engine) dispatch(ctx context.Context, event string, o *Order, send sendFunc) {
	n := e.opts.Notifier
	if n == nil {
		return
	}
	snapshot := *o

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.NotifyTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				e.metrics.recordNotifyFailed(nctx, event)
				e.log.Warn("notifier panicked", "event", event, "order_id", snapshot.ID, "panic", r)
			}
		}()

		if err := send(nctx, &snapshot, e.customer(nctx, snapshot.UserID), n); err != nil {
			e.metrics.recordNotifyFailed(nctx, event)
			e.log.Warn("notification failed",
				"event", event,
				"order_id", snapshot.ID,
				"error", err,
				"timeout", errors.Is(err, context.DeadlineExceeded),
			)
		}
	}()
}

func (e *Engine) customer(ctx context.Context, userID uuid.UUID) Customer {
	fallback := Customer{ID: userID}
	if e.opts.Customers == nil {
		return fallback
	}
	c, err := e.opts.Customers.Customer(ctx, userID)
	if err != nil {
		e.log.Warn("customer lookup failed", "user_id", userID, "error", err)
		return fallback
	}
	c.ID = userID
	return c
}
