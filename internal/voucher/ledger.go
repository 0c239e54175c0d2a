package voucher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Ledger validates vouchers and records redemptions. It holds no state of
// its own; every call runs against the Store it is given so the same ledger
// serves both read-only previews and transactional redemptions.
type Ledger struct {
	now func() time.Time
}

// NewLedger creates a ledger. A nil clock means time.Now.
func NewLedger(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{now: clock}
}

// NormalizeCode trims and uppercases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks code against orderAmount and, when userID is given, the
// per-user limit. It has no side effects. A rejected voucher is reported in
// the Validation; the error is reserved for storage faults.
func (l *Ledger) Validate(ctx context.Context, store Store, code string, orderAmount decimal.Decimal, userID *uuid.UUID) (Validation, error) {
	code = NormalizeCode(code)

	v, err := store.FindByCode(ctx, code)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return invalid(code, apperror.ReasonNotFound, fmt.Sprintf("voucher %s not found", code)), nil
		}
		return Validation{}, fmt.Errorf("failed to find voucher: %w", err)
	}

	now := l.now()
	switch {
	case !v.Active:
		return invalid(code, apperror.ReasonInactive, "voucher is inactive"), nil
	case now.Before(v.StartsAt):
		return invalid(code, apperror.ReasonInactive, fmt.Sprintf("voucher is not active until %s", v.StartsAt.Format(time.RFC3339))), nil
	case now.After(v.EndsAt):
		return invalid(code, apperror.ReasonExpired, "voucher has expired"), nil
	case v.limitReached():
		return invalid(code, apperror.ReasonUsageLimit, "voucher usage limit reached"), nil
	}

	if orderAmount.LessThan(v.MinimumOrderAmount) {
		return invalid(code, apperror.ReasonBelowMinimum,
			fmt.Sprintf("order amount must be at least %s to use this voucher", v.MinimumOrderAmount.StringFixed(0))), nil
	}

	if userID != nil && v.UsageLimitPerUser != nil {
		used, err := store.CountUsageByUser(ctx, v.ID, *userID)
		if err != nil {
			return Validation{}, fmt.Errorf("failed to count voucher usage: %w", err)
		}
		if used >= *v.UsageLimitPerUser {
			return invalid(code, apperror.ReasonPerUserLimit, "you have reached the usage limit for this voucher"), nil
		}
	}

	discount, freeShipping := Discount(v, orderAmount)
	return Validation{
		Valid:          true,
		Code:           code,
		DiscountAmount: discount,
		FreeShipping:   freeShipping,
		Voucher:        v,
	}, nil
}

// RecordUsage appends a usage row and increments the used count by one.
// It must run in the same transaction as the order it redeems for.
func (l *Ledger) RecordUsage(ctx context.Context, store Store, voucherID, userID, orderID uuid.UUID, discount decimal.Decimal) error {
	if err := store.IncrementUsage(ctx, voucherID); err != nil {
		return err
	}

	usage := &Usage{
		VoucherID:      voucherID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
		UsedAt:         l.now(),
	}
	if err := store.InsertUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to insert voucher usage: %w", err)
	}
	return nil
}

// Discount computes the discount v gives on orderAmount.
func Discount(v *Voucher, orderAmount decimal.Decimal) (decimal.Decimal, bool) {
	switch v.Type {
	case TypePercentage:
		d := orderAmount.Mul(v.Value).Div(hundred).Round(2)
		if v.MaximumDiscountAmount != nil && d.GreaterThan(*v.MaximumDiscountAmount) {
			d = *v.MaximumDiscountAmount
		}
		return d, false
	case TypeFixedAmount:
		return decimal.Min(v.Value, orderAmount), false
	case TypeFreeShipping:
		return decimal.Zero, true
	default:
		return decimal.Zero, false
	}
}
