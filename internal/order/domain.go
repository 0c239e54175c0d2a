// internal/order/domain.go
package order

import (
	"slices"
	"time"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// AdminCancelReason is recorded when an order is cancelled through
// UpdateStatus rather than CancelOrder.
const AdminCancelReason = "cancelled by admin"

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCancelled},
	StatusConfirmed:  {StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", apperror.InvalidInput("unknown order status %q", s)
}

// CanTransitionTo reports whether the transition table allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Customer cancellation is only allowed before processing starts.
func (s Status) customerCancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Order is the aggregate root. Details are written once at creation.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          Status          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	SubTotal        decimal.Decimal `json:"sub_total"`
	VoucherCode     *string         `json:"voucher_code,omitempty"`
	VoucherDiscount decimal.Decimal `json:"voucher_discount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	FreeShipping    bool            `json:"free_shipping"`
	Total           decimal.Decimal `json:"total"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Details         []Detail        `json:"details"`
}

// Detail is one line of an order. UnitPrice is the catalog price observed
// when stock was reserved and never changes afterwards.
type Detail struct {
	OrderID   uuid.UUID       `json:"order_id"`
	BookID    uuid.UUID       `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal is Quantity x UnitPrice.
func (d Detail) LineTotal() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// ComputeTotal returns max(0, subTotal - discount) + shippingFee.
func ComputeTotal(subTotal, discount, shippingFee decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, subTotal.Sub(discount)).Add(shippingFee)
}

// LineItem is a requested book and quantity. Prices are never taken from
// the caller.
type LineItem struct {
	BookID   uuid.UUID `json:"book_id"`
	Quantity int       `json:"quantity"`
}

// CreateOrderRequest is the input of Engine.CreateOrder.
type CreateOrderRequest struct {
	UserID          uuid.UUID  `json:"user_id"`
	ShippingAddress string     `json:"shipping_address"`
	PaymentMethod   string     `json:"payment_method"`
	Items           []LineItem `json:"items"`
	VoucherCode     string     `json:"voucher_code,omitempty"`
}

// Filter narrows an order listing. Zero values mean "any".
type Filter struct {
	UserID uuid.UUID
	Status Status
	From   time.Time
	To     time.Time
}

func (f Filter) matches(o *Order) bool {
	if f.UserID != uuid.Nil && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Event types appended to an order's history.
const (
	aggregateType = "order"

	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderDeleted       = "OrderDeleted"
)

// OrderCreatedEvent is recorded when an order is placed.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Items       []Detail        `json:"items"`
	VoucherCode *string         `json:"voucher_code,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// OrderStatusChangedEvent is recorded on every status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
}

// OrderCancelledEvent is recorded when an order is cancelled and its stock
// restored.
type OrderCancelledEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	From     Status    `json:"from"`
	Reason   string    `json:"reason,omitempty"`
	Restored []Detail  `json:"restored"`
}

// OrderDeletedEvent is recorded when an order is hard-deleted.
type OrderDeletedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	Status        Status    `json:"status"`
	StockRestored bool      `json:"stock_restored"`
}
