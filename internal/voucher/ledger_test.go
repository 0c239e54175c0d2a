package voucher

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	vouchers map[string]*Voucher
	usages   []Usage
}

func newFakeStore(vs ...*Voucher) *fakeStore {
	s := &fakeStore{vouchers: make(map[string]*Voucher)}
	for _, v := range vs {
		s.vouchers[v.Code] = v
	}
	return s
}

func (s *fakeStore) FindByCode(ctx context.Context, code string) (*Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[NormalizeCode(code)]
	if !ok {
		return nil, apperror.NotFound("voucher", code)
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) CountUsageByUser(ctx context.Context, voucherID, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.usages {
		if u.VoucherID == voucherID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) IncrementUsage(ctx context.Context, voucherID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vouchers {
		if v.ID == voucherID {
			if v.limitReached() {
				return apperror.InvalidVoucher(apperror.ReasonUsageLimit, "voucher usage limit reached")
			}
			v.UsedCount++
			return nil
		}
	}
	return apperror.NotFound("voucher", voucherID)
}

func (s *fakeStore) InsertUsage(ctx context.Context, usage *Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage.ID = int64(len(s.usages) + 1)
	s.usages = append(s.usages, *usage)
	return nil
}

func (s *fakeStore) Create(ctx context.Context, v *Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vouchers[v.Code]; exists {
		return apperror.InvalidInput("voucher code %s already exists", v.Code)
	}
	s.vouchers[v.Code] = v
	return nil
}

func (s *fakeStore) List(ctx context.Context) ([]*Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Voucher
	for _, v := range s.vouchers {
		out = append(out, v)
	}
	return out, nil
}

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock   = func() time.Time { return testNow }
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func intPtr(n int) *int { return &n }

func decPtr(v int64) *decimal.Decimal {
	x := d(v)
	return &x
}

func save10() *Voucher {
	return &Voucher{
		ID:                    uuid.New(),
		Code:                  "SAVE10",
		Type:                  TypePercentage,
		Value:                 d(10),
		MinimumOrderAmount:    d(100_000),
		MaximumDiscountAmount: decPtr(50_000),
		UsageLimit:            intPtr(1),
		Active:                true,
		StartsAt:              testNow.Add(-24 * time.Hour),
		EndsAt:                testNow.Add(24 * time.Hour),
	}
}

func TestValidatePercentageCapped(t *testing.T) {
	ledger := NewLedger(clock)
	store := newFakeStore(save10())

	res, err := ledger.Validate(context.Background(), store, " save10 ", d(1_000_000), nil)
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, "SAVE10", res.Code)
	assert.True(t, d(50_000).Equal(res.DiscountAmount), "got %s", res.DiscountAmount)
	assert.False(t, res.FreeShipping)
	assert.NoError(t, res.Err())
}

func TestValidateRejections(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name   string
		mutate func(v *Voucher)
		amount int64
		usages int
		reason apperror.VoucherReason
	}{
		{name: "inactive", mutate: func(v *Voucher) { v.Active = false }, amount: 200_000, reason: apperror.ReasonInactive},
		{name: "not started", mutate: func(v *Voucher) { v.StartsAt = testNow.Add(time.Hour) }, amount: 200_000, reason: apperror.ReasonInactive},
		{name: "expired", mutate: func(v *Voucher) { v.EndsAt = testNow.Add(-time.Minute) }, amount: 200_000, reason: apperror.ReasonExpired},
		{name: "usage limit", mutate: func(v *Voucher) { v.UsedCount = 1 }, amount: 200_000, reason: apperror.ReasonUsageLimit},
		{name: "below minimum", mutate: func(v *Voucher) {}, amount: 99_999, reason: apperror.ReasonBelowMinimum},
		{
			name:   "per user limit",
			mutate: func(v *Voucher) { v.UsageLimit = nil; v.UsageLimitPerUser = intPtr(2) },
			amount: 200_000,
			usages: 2,
			reason: apperror.ReasonPerUserLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := save10()
			tt.mutate(v)
			store := newFakeStore(v)
			for i := 0; i < tt.usages; i++ {
				require.NoError(t, store.InsertUsage(context.Background(), &Usage{VoucherID: v.ID, UserID: userID}))
			}

			res, err := NewLedger(clock).Validate(context.Background(), store, "SAVE10", d(tt.amount), &userID)
			require.NoError(t, err)

			assert.False(t, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			assert.True(t, res.DiscountAmount.IsZero())
			assert.ErrorIs(t, res.Err(), apperror.ErrInvalidVoucher)
		})
	}
}

func TestValidateBelowMinimumMentionsThreshold(t *testing.T) {
	res, err := NewLedger(clock).Validate(context.Background(), newFakeStore(save10()), "SAVE10", d(5), nil)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "100000")
}

func TestValidateUnknownCode(t *testing.T) {
	res, err := NewLedger(clock).Validate(context.Background(), newFakeStore(), "NOPE", d(5), nil)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, apperror.ReasonNotFound, res.Reason)
}

func TestValidatePerUserLimitIgnoredWithoutUser(t *testing.T) {
	v := save10()
	v.UsageLimit = nil
	v.UsageLimitPerUser = intPtr(1)
	store := newFakeStore(v)
	require.NoError(t, store.InsertUsage(context.Background(), &Usage{VoucherID: v.ID, UserID: uuid.New()}))

	res, err := NewLedger(clock).Validate(context.Background(), store, "SAVE10", d(200_000), nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidateHasNoSideEffects(t *testing.T) {
	v := save10()
	store := newFakeStore(v)
	ledger := NewLedger(clock)

	for i := 0; i < 5; i++ {
		res, err := ledger.Validate(context.Background(), store, "SAVE10", d(1_000_000), nil)
		require.NoError(t, err)
		require.True(t, res.Valid)
	}

	assert.Equal(t, 0, store.vouchers["SAVE10"].UsedCount)
	assert.Empty(t, store.usages)
}

func TestDiscount(t *testing.T) {
	fixed := &Voucher{Type: TypeFixedAmount, Value: d(30_000)}
	amount, free := Discount(fixed, d(20_000))
	assert.True(t, d(20_000).Equal(amount), "fixed discount never exceeds the order amount")
	assert.False(t, free)

	amount, _ = Discount(fixed, d(100_000))
	assert.True(t, d(30_000).Equal(amount))

	shipping := &Voucher{Type: TypeFreeShipping}
	amount, free = Discount(shipping, d(100_000))
	assert.True(t, amount.IsZero())
	assert.True(t, free)

	uncapped := &Voucher{Type: TypePercentage, Value: d(15)}
	amount, _ = Discount(uncapped, d(123_457))
	assert.Equal(t, "18518.55", amount.StringFixed(2))
}

func TestRecordUsage(t *testing.T) {
	v := save10()
	store := newFakeStore(v)
	ledger := NewLedger(clock)
	userID, orderID := uuid.New(), uuid.New()

	require.NoError(t, ledger.RecordUsage(context.Background(), store, v.ID, userID, orderID, d(50_000)))

	assert.Equal(t, 1, store.vouchers["SAVE10"].UsedCount)
	require.Len(t, store.usages, 1)
	assert.Equal(t, orderID, store.usages[0].OrderID)
	assert.Equal(t, testNow, store.usages[0].UsedAt)

	err := ledger.RecordUsage(context.Background(), store, v.ID, uuid.New(), uuid.New(), d(50_000))
	assert.ErrorIs(t, err, apperror.ErrInvalidVoucher)
	assert.Equal(t, 1, store.vouchers["SAVE10"].UsedCount)
	assert.Len(t, store.usages, 1)
}

func TestIsValid(t *testing.T) {
	v := save10()
	assert.True(t, v.IsValid(testNow))
	assert.False(t, v.IsValid(v.EndsAt.Add(time.Second)))

	v.UsedCount = 1
	assert.False(t, v.IsValid(testNow))
}
