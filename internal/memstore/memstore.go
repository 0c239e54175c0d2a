// Package memstore keeps books, vouchers, orders and their events in process
// memory. It implements the same transaction contract as the Postgres
// stores: WithinTx works on a private copy of the state and publishes it
// only when the callback succeeds, so a failed call leaves nothing behind.
package memstore

import (
	"context"
	"maps"
	"sync"

	"bookstore/internal/catalog"
	"bookstore/internal/eventstore"
	"bookstore/internal/order"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
)

// Op names a store operation that can be made to fail.
type Op string

const (
	OpAdjustQuantity Op = "books.adjust_quantity"
	OpSaveOrder      Op = "orders.save"
	OpUpdateOrder    Op = "orders.update_status"
	OpDeleteOrder    Op = "orders.delete"
	OpIncrementUsage Op = "vouchers.increment_usage"
	OpInsertUsage    Op = "vouchers.insert_usage"
	OpAppendEvents   Op = "events.append"
)

type state struct {
	books     map[uuid.UUID]catalog.Book
	vouchers  map[uuid.UUID]voucher.Voucher
	codes     map[string]uuid.UUID
	usages    []voucher.Usage
	orders    map[uuid.UUID]order.Order
	events    map[uuid.UUID][]eventstore.Event
	nextUsage int64
	nextEvent int64
}

func newState() *state {
	return &state{
		books:    make(map[uuid.UUID]catalog.Book),
		vouchers: make(map[uuid.UUID]voucher.Voucher),
		codes:    make(map[string]uuid.UUID),
		orders:   make(map[uuid.UUID]order.Order),
		events:   make(map[uuid.UUID][]eventstore.Event),
	}
}

// clone copies everything a transaction may write. Values stored in the
// maps are never mutated in place, so a shallow copy of each map suffices.
func (s *state) clone() *state {
	return &state{
		books:     maps.Clone(s.books),
		vouchers:  maps.Clone(s.vouchers),
		codes:     maps.Clone(s.codes),
		usages:    append([]voucher.Usage(nil), s.usages...),
		orders:    maps.Clone(s.orders),
		events:    maps.Clone(s.events),
		nextUsage: s.nextUsage,
		nextEvent: s.nextEvent,
	}
}

// Store is an in-memory order.Transactor.
type Store struct {
	mu     sync.RWMutex
	state  *state
	faults sync.Map // Op -> error
}

var _ order.Transactor = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// SetFault makes every subsequent call of op fail with err. A nil err
// clears the fault.
func (s *Store) SetFault(op Op, err error) {
	if err == nil {
		s.faults.Delete(op)
		return
	}
	s.faults.Store(op, err)
}

func (s *Store) fault(op Op) error {
	if err, ok := s.faults.Load(op); ok {
		return err.(error)
	}
	return nil
}

// WithinTx implements order.Transactor. Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &unit{store: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Reader implements order.Transactor. Each call through the returned unit
// is its own atomic step.
func (s *Store) Reader() order.UnitOfWork {
	return &unit{store: s}
}

// unit binds the repositories either to a transaction's private state (tx
// set, lock already held) or to the live state.
type unit struct {
	store *Store
	tx    *state
}

func (u *unit) Books() catalog.Store { return &books{u} }
func (u *unit) Vouchers() voucher.Store { return &vouchers{u} }
func (u *unit) Orders() order.Store { return &orders{u} }
func (u *unit) Events() order.EventLog { return &events{u} }

func (u *unit) read(fn func(st *state) error) error {
	if u.tx != nil {
		return fn(u.tx)
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	return fn(u.store.state)
}

// write runs fn against a copy of the live state outside a transaction, so
// a failing autocommit write leaves no trace either.
func (u *unit) write(op Op, fn func(st *state) error) error {
	if err := u.store.fault(op); err != nil {
		return err
	}
	if u.tx != nil {
		return fn(u.tx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	work := u.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	u.store.state = work
	return nil
}
