// Package txn is the Postgres transaction boundary of the order engine.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/catalog"
	"bookstore/internal/database"
	"bookstore/internal/eventstore"
	"bookstore/internal/order"
	"bookstore/internal/voucher"
)

const defaultMaxAttempts = 3

// Transactor implements order.Transactor over a *sql.DB.
type Transactor struct {
	db          *sql.DB
	log         *slog.Logger
	maxAttempts int
}

var _ order.Transactor = (*Transactor)(nil)

// New creates a transactor. It panics if db is nil.
func New(db *sql.DB, log *slog.Logger) *Transactor {
	if db == nil {
		panic("txn: nil db")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transactor{db: db, log: log.With("component", "txn"), maxAttempts: defaultMaxAttempts}
}

// WithinTx runs fn in a READ COMMITTED transaction whose repositories lock
// the rows they read. The transaction is committed when fn returns nil and
// rolled back otherwise, including when fn panics. Serialization failures
// and deadlocks are retried with a short backoff.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err = t.run(ctx, fn)
		if err == nil || !database.IsRetryable(err) {
			return err
		}

		t.log.Warn("retrying transaction", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

func (t *Transactor) run(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) (err error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				t.log.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(ctx, newUnit(tx, true)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reader implements order.Transactor with autocommit, lock-free reads.
func (t *Transactor) Reader() order.UnitOfWork {
	return newUnit(t.db, false)
}

type unit struct {
	books    *catalog.PostgresStore
	vouchers *voucher.PostgresStore
	orders   *order.PostgresStore
	events   *eventstore.EventStore
}

func newUnit(q database.Querier, lock bool) *unit {
	return &unit{
		books:    catalog.NewPostgresStore(q, lock),
		vouchers: voucher.NewPostgresStore(q, lock),
		orders:   order.NewPostgresStore(q, lock),
		events:   eventstore.NewEventStore(q),
	}
}

func (u *unit) Books() catalog.Store { return u.books }
func (u *unit) Vouchers() voucher.Store { return u.vouchers }
func (u *unit) Orders() order.Store { return u.orders }
func (u *unit) Events() order.EventLog { return u.events }
