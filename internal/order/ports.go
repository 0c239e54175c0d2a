package order

import (
	"context"

	"bookstore/internal/catalog"
	"bookstore/internal/eventstore"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
)

// EventLog is the per-aggregate history the engine appends to.
type EventLog interface {
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []eventstore.Event) error
	LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error)
}

// UnitOfWork exposes the repositories bound to one transaction (or, from
// Transactor.Reader, to plain autocommit reads).
type UnitOfWork interface {
	Books() catalog.Store
	Vouchers() voucher.Store
	Orders() Store
	Events() EventLog
}

// Transactor is the explicit transaction boundary. WithinTx commits when fn
// returns nil and rolls back on any error or panic; repositories handed to
// fn take row locks on read.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	Reader() UnitOfWork
}

// Customer is the recipient of order notifications.
type Customer struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

// Notifier receives order events after commit. Errors are logged by the
// engine and never returned to its callers.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order, c Customer) error
	StatusChanged(ctx context.Context, o *Order, c Customer, from, to Status) error
	Cancelled(ctx context.Context, o *Order, c Customer, reason string) error
}

// CustomerDirectory resolves a user id to notification details.
type CustomerDirectory interface {
	Customer(ctx context.Context, userID uuid.UUID) (Customer, error)
}
