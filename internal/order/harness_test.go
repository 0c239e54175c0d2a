package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookstore/internal/catalog"
	"bookstore/internal/identity"
	"bookstore/internal/memstore"
	"bookstore/internal/order"
	"bookstore/internal/voucher"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func intPtr(n int) *int { return &n }

// recorder is a Notifier that remembers what it was told.
type recorder struct {
	mu     sync.Mutex
	events []string
	err    error
	block  bool
}

func (r *recorder) record(ctx context.Context, event string) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) OrderConfirmed(ctx context.Context, o *order.Order, c order.Customer) error {
	return r.record(ctx, "confirmed:"+o.ID.String())
}

func (r *recorder) StatusChanged(ctx context.Context, o *order.Order, c order.Customer, from, to order.Status) error {
	return r.record(ctx, "status:"+string(from)+"->"+string(to))
}

func (r *recorder) Cancelled(ctx context.Context, o *order.Order, c order.Customer, reason string) error {
	return r.record(ctx, "cancelled:"+reason)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type harness struct {
	store    *memstore.Store
	engine   *order.Engine
	notifier *recorder
}

func newHarness(t *testing.T, mutate ...func(*order.Options)) *harness {
	t.Helper()

	store := memstore.New()
	notifier := &recorder{}

	opts := order.DefaultOptions()
	opts.Shipping = order.ShippingPolicy{}
	opts.Notifier = notifier
	opts.Clock = clock
	for _, m := range mutate {
		m(&opts)
	}

	engine := order.NewEngine(store, voucher.NewLedger(clock), opts)
	t.Cleanup(engine.Wait)

	return &harness{store: store, engine: engine, notifier: notifier}
}

func (h *harness) addBook(t *testing.T, title string, quantity int, price int64) *catalog.Book {
	t.Helper()
	book := &catalog.Book{ID: uuid.New(), Title: title, Price: d(price), Quantity: quantity}
	require.NoError(t, h.store.Reader().Books().CreateBook(context.Background(), book))
	return book
}

func (h *harness) addVoucher(t *testing.T, v *voucher.Voucher) *voucher.Voucher {
	t.Helper()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	require.NoError(t, h.store.Reader().Vouchers().Create(context.Background(), v))
	return v
}

func (h *harness) quantity(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	book, err := h.store.Reader().Books().GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return book.Quantity
}

func (h *harness) usedCount(t *testing.T, code string) int {
	t.Helper()
	v, err := h.store.Reader().Vouchers().FindByCode(context.Background(), code)
	require.NoError(t, err)
	return v.UsedCount
}

func (h *harness) place(t *testing.T, userID uuid.UUID, items ...order.LineItem) *order.Order {
	t.Helper()
	o, err := h.engine.CreateOrder(context.Background(), request(userID, "", items...))
	require.NoError(t, err)
	return o
}

func request(userID uuid.UUID, code string, items ...order.LineItem) order.CreateOrderRequest {
	return order.CreateOrderRequest{
		UserID:          userID,
		ShippingAddress: "12 Nguyen Hue, District 1",
		PaymentMethod:   "cod",
		Items:           items,
		VoucherCode:     code,
	}
}

func item(bookID uuid.UUID, qty int) order.LineItem {
	return order.LineItem{BookID: bookID, Quantity: qty}
}

func as(userID uuid.UUID, roles ...string) context.Context {
	if len(roles) == 0 {
		roles = []string{identity.RoleCustomer}
	}
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: userID, Roles: roles})
}

func asAdmin() context.Context {
	return as(uuid.New(), identity.RoleAdmin)
}

func save10() *voucher.Voucher {
	maxDiscount := d(50_000)
	return &voucher.Voucher{
		Code:                  "SAVE10",
		Type:                  voucher.TypePercentage,
		Value:                 d(10),
		MinimumOrderAmount:    d(100_000),
		MaximumDiscountAmount: &maxDiscount,
		UsageLimit:            intPtr(1),
		Active:                true,
		StartsAt:              testNow.Add(-24 * time.Hour),
		EndsAt:                testNow.Add(24 * time.Hour),
	}
}
