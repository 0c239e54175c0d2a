// internal/order/service.go
package order

import (
	"context"

	"bookstore/internal/eventstore"

	"github.com/google/uuid"
)

// Service defines the order operations served over HTTP. *Engine
// implements it.
type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, f Filter) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next Status) (*Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	History(ctx context.Context, orderID uuid.UUID) ([]eventstore.Event, error)
	Reorder(ctx context.Context, orderID, requesterID uuid.UUID) (*ReorderResult, error)
}

var _ Service = (*Engine)(nil)
