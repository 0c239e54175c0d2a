package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/catalog"
	"bookstore/internal/eventstore"
	"bookstore/internal/order"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type books struct{ u *unit }

func (b *books) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var out *catalog.Book
	err := b.u.read(func(st *state) error {
		book, ok := st.books[id]
		if !ok {
			return apperror.NotFound("book", id)
		}
		out = &book
		return nil
	})
	return out, err
}

func (b *books) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*catalog.Book, error) {
	var out *catalog.Book
	err := b.u.write(OpAdjustQuantity, func(st *state) error {
		book, ok := st.books[id]
		if !ok {
			return apperror.NotFound("book", id)
		}
		if book.Quantity+delta < 0 {
			return apperror.InsufficientStock(id, -delta, book.Quantity)
		}
		book.Quantity += delta
		book.Version++
		book.UpdatedAt = time.Now().UTC()
		st.books[id] = book
		out = &book
		return nil
	})
	return out, err
}

func (b *books) CreateBook(ctx context.Context, book *catalog.Book) error {
	return b.u.write("", func(st *state) error {
		if _, exists := st.books[book.ID]; exists {
			return apperror.InvalidInput("book %s already exists", book.ID)
		}
		now := time.Now().UTC()
		book.Version = 1
		book.CreatedAt, book.UpdatedAt = now, now
		st.books[book.ID] = *book
		return nil
	})
}

func (b *books) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*catalog.Book, error) {
	var out *catalog.Book
	err := b.u.write("", func(st *state) error {
		book, ok := st.books[id]
		if !ok {
			return apperror.NotFound("book", id)
		}
		book.Price = price
		book.Version++
		book.UpdatedAt = time.Now().UTC()
		st.books[id] = book
		out = &book
		return nil
	})
	return out, err
}

func (b *books) ListBooks(ctx context.Context, limit, offset int) ([]*catalog.Book, error) {
	var out []*catalog.Book
	err := b.u.read(func(st *state) error {
		all := make([]catalog.Book, 0, len(st.books))
		for _, book := range st.books {
			all = append(all, book)
		}
		slices.SortFunc(all, func(a, b catalog.Book) int {
			return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		for i := offset; i < len(all) && len(out) < limit; i++ {
			book := all[i]
			out = append(out, &book)
		}
		return nil
	})
	return out, err
}

type vouchers struct{ u *unit }

func (v *vouchers) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	var out *voucher.Voucher
	err := v.u.read(func(st *state) error {
		id, ok := st.codes[voucher.NormalizeCode(code)]
		if !ok {
			return apperror.NotFound("voucher", code)
		}
		found := st.vouchers[id]
		out = &found
		return nil
	})
	return out, err
}

func (v *vouchers) CountUsageByUser(ctx context.Context, voucherID, userID uuid.UUID) (int, error) {
	n := 0
	err := v.u.read(func(st *state) error {
		for _, usage := range st.usages {
			if usage.VoucherID == voucherID && usage.UserID == userID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v *vouchers) IncrementUsage(ctx context.Context, voucherID uuid.UUID) error {
	return v.u.write(OpIncrementUsage, func(st *state) error {
		found, ok := st.vouchers[voucherID]
		if !ok {
			return apperror.NotFound("voucher", voucherID)
		}
		if found.UsageLimit != nil && found.UsedCount >= *found.UsageLimit {
			return apperror.InvalidVoucher(apperror.ReasonUsageLimit, "voucher usage limit reached")
		}
		found.UsedCount++
		found.UpdatedAt = time.Now().UTC()
		st.vouchers[voucherID] = found
		return nil
	})
}

func (v *vouchers) InsertUsage(ctx context.Context, usage *voucher.Usage) error {
	return v.u.write(OpInsertUsage, func(st *state) error {
		st.nextUsage++
		usage.ID = st.nextUsage
		st.usages = append(st.usages, *usage)
		return nil
	})
}

func (v *vouchers) Create(ctx context.Context, in *voucher.Voucher) error {
	return v.u.write("", func(st *state) error {
		if _, exists := st.codes[in.Code]; exists {
			return apperror.InvalidInput("voucher code %s already exists", in.Code)
		}
		now := time.Now().UTC()
		in.CreatedAt, in.UpdatedAt = now, now
		st.vouchers[in.ID] = *in
		st.codes[in.Code] = in.ID
		return nil
	})
}

func (v *vouchers) List(ctx context.Context) ([]*voucher.Voucher, error) {
	var out []*voucher.Voucher
	err := v.u.read(func(st *state) error {
		for _, found := range st.vouchers {
			out = append(out, &found)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *voucher.Voucher) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, err
}

type orders struct{ u *unit }

func copyOrder(o order.Order) *order.Order {
	o.Details = slices.Clone(o.Details)
	return &o
}

func (r *orders) Save(ctx context.Context, o *order.Order) error {
	return r.u.write(OpSaveOrder, func(st *state) error {
		if _, exists := st.orders[o.ID]; exists {
			return apperror.InvalidInput("order %s already exists", o.ID)
		}
		st.orders[o.ID] = *copyOrder(*o)
		return nil
	})
}

func (r *orders) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var out *order.Order
	err := r.u.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return apperror.NotFound("order", id)
		}
		out = copyOrder(o)
		return nil
	})
	return out, err
}

func (r *orders) filter(keep func(o *order.Order) bool) ([]*order.Order, error) {
	var out []*order.Order
	err := r.u.read(func(st *state) error {
		for _, o := range st.orders {
			if keep(&o) {
				out = append(out, copyOrder(o))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *order.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, err
}

func (r *orders) GetByUser(ctx context.Context, userID uuid.UUID) ([]*order.Order, error) {
	return r.filter(func(o *order.Order) bool { return o.UserID == userID })
}

func (r *orders) GetByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	return r.filter(func(o *order.Order) bool { return o.Status == status })
}

func (r *orders) GetByDateRange(ctx context.Context, from, to time.Time) ([]*order.Order, error) {
	return r.filter(func(o *order.Order) bool {
		return !o.CreatedAt.Before(from) && !o.CreatedAt.After(to)
	})
}

func (r *orders) UpdateStatus(ctx context.Context, o *order.Order) error {
	return r.u.write(OpUpdateOrder, func(st *state) error {
		stored, ok := st.orders[o.ID]
		if !ok {
			return apperror.NotFound("order", o.ID)
		}
		if stored.Version != o.Version-1 {
			return order.ErrStaleOrder
		}
		stored.Status = o.Status
		stored.CancelReason = o.CancelReason
		stored.Version = o.Version
		stored.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = stored
		return nil
	})
}

func (r *orders) Delete(ctx context.Context, id uuid.UUID) error {
	return r.u.write(OpDeleteOrder, func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return apperror.NotFound("order", id)
		}
		delete(st.orders, id)
		return nil
	})
}

type events struct{ u *unit }

func (e *events) AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, evts []eventstore.Event) error {
	if expectedVersion < 0 {
		return eventstore.ErrInvalidVersion
	}
	return e.u.write(OpAppendEvents, func(st *state) error {
		history := st.events[aggregateID]
		if len(history) != expectedVersion {
			return eventstore.ErrConcurrencyConflict
		}
		history = slices.Clone(history)
		for i, evt := range evts {
			st.nextEvent++
			evt.ID = st.nextEvent
			evt.AggregateID = aggregateID
			evt.AggregateType = aggregateType
			evt.Version = expectedVersion + i + 1
			evt.CreatedAt = time.Now().UTC()
			history = append(history, evt)
		}
		st.events[aggregateID] = history
		return nil
	})
}

func (e *events) LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error) {
	var out []eventstore.Event
	err := e.u.read(func(st *state) error {
		out = slices.Clone(st.events[aggregateID])
		return nil
	})
	return out, err
}
