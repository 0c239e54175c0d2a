package order_test

import (
	"context"
	"testing"

	"bookstore/internal/apperror"
	"bookstore/internal/catalog"
	"bookstore/internal/memstore"
	"bookstore/internal/order"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// stockModel tracks what must hold after any sequence of order operations:
// every copy is either on the shelf or reserved by a live, non-cancelled
// order.
type stockModel struct {
	store   *memstore.Store
	engine  *order.Engine
	books   []*catalog.Book
	initial map[uuid.UUID]int
	orders  []uuid.UUID
	userID  uuid.UUID
}

func newStockModel(t *rapid.T) *stockModel {
	store := memstore.New()
	opts := order.DefaultOptions()
	opts.Clock = clock

	m := &stockModel{
		store:   store,
		engine:  order.NewEngine(store, voucher.NewLedger(clock), opts),
		initial: make(map[uuid.UUID]int),
		userID:  uuid.New(),
	}

	n := rapid.IntRange(1, 4).Draw(t, "books")
	for i := 0; i < n; i++ {
		book := &catalog.Book{
			ID:       uuid.New(),
			Title:    "book",
			Price:    d(rapid.Int64Range(1, 500).Draw(t, "price") * 1_000),
			Quantity: rapid.IntRange(0, 12).Draw(t, "quantity"),
		}
		if err := store.Reader().Books().CreateBook(context.Background(), book); err != nil {
			t.Fatalf("create book: %v", err)
		}
		m.books = append(m.books, book)
		m.initial[book.ID] = book.Quantity
	}
	return m
}

func (m *stockModel) shelf(t *rapid.T) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(m.books))
	for _, b := range m.books {
		book, err := m.store.Reader().Books().GetBook(context.Background(), b.ID)
		if err != nil {
			t.Fatalf("get book: %v", err)
		}
		out[b.ID] = book.Quantity
	}
	return out
}

func (m *stockModel) create(t *rapid.T) {
	before := m.shelf(t)

	var items []order.LineItem
	for i, n := 0, rapid.IntRange(1, 4).Draw(t, "lines"); i < n; i++ {
		book := rapid.SampledFrom(m.books).Draw(t, "book")
		items = append(items, item(book.ID, rapid.IntRange(1, 6).Draw(t, "qty")))
	}

	o, err := m.engine.CreateOrder(context.Background(), request(m.userID, "", items...))
	if err != nil {
		if apperror.KindOf(err) != apperror.KindInsufficientStock {
			t.Fatalf("unexpected create error: %v", err)
		}
		after := m.shelf(t)
		for id, q := range before {
			if after[id] != q {
				t.Fatalf("failed order changed stock of %s: %d -> %d", id, q, after[id])
			}
		}
		return
	}
	m.orders = append(m.orders, o.ID)
}

func (m *stockModel) pick(t *rapid.T) (uuid.UUID, bool) {
	if len(m.orders) == 0 {
		return uuid.Nil, false
	}
	return rapid.SampledFrom(m.orders).Draw(t, "order"), true
}

func (m *stockModel) cancel(t *rapid.T) {
	id, ok := m.pick(t)
	if !ok {
		t.Skip("no orders")
	}
	ctx := as(m.userID)
	if _, err := m.engine.CancelOrder(ctx, id, "property"); err != nil && apperror.KindOf(err) != apperror.KindCannotCancel {
		t.Fatalf("unexpected cancel error: %v", err)
	}
}

func (m *stockModel) advance(t *rapid.T) {
	id, ok := m.pick(t)
	if !ok {
		t.Skip("no orders")
	}
	next := rapid.SampledFrom([]order.Status{
		order.StatusConfirmed, order.StatusProcessing, order.StatusCompleted, order.StatusCancelled,
	}).Draw(t, "status")
	if _, err := m.engine.UpdateStatus(context.Background(), id, next); err != nil && apperror.KindOf(err) != apperror.KindInvalidTransition {
		t.Fatalf("unexpected status error: %v", err)
	}
}

func (m *stockModel) delete(t *rapid.T) {
	id, ok := m.pick(t)
	if !ok {
		t.Skip("no orders")
	}
	if err := m.engine.DeleteOrder(context.Background(), id); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	for i, o := range m.orders {
		if o == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			break
		}
	}
}

func (m *stockModel) check(t *rapid.T) {
	reserved := make(map[uuid.UUID]int)
	for _, id := range m.orders {
		o, err := m.store.Reader().Orders().Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if o.Status == order.StatusCancelled {
			continue
		}
		for _, det := range o.Details {
			reserved[det.BookID] += det.Quantity
		}
		if !o.Total.Equal(order.ComputeTotal(o.SubTotal, o.VoucherDiscount, o.ShippingFee)) {
			t.Fatalf("order %s total %s does not reconcile", o.ID, o.Total)
		}
	}

	for id, q := range m.shelf(t) {
		if q < 0 {
			t.Fatalf("book %s has negative stock %d", id, q)
		}
		if q+reserved[id] != m.initial[id] {
			t.Fatalf("book %s: shelf %d + reserved %d != initial %d", id, q, reserved[id], m.initial[id])
		}
	}
}

func TestStockConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newStockModel(t)
		defer m.engine.Wait()

		t.Repeat(map[string]func(*rapid.T){
			"create":  m.create,
			"cancel":  m.cancel,
			"advance": m.advance,
			"delete":  m.delete,
			"":        m.check,
		})
	})
}
