package voucher

import (
	"context"
	"fmt"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// service implements the Service interface.
type service struct {
	store  Store
	ledger *Ledger
}

// NewService creates a voucher service over a non-locking store.
func NewService(store Store, ledger *Ledger) Service {
	if store == nil || ledger == nil {
		panic("voucher: nil dependency")
	}
	return &service{store: store, ledger: ledger}
}

// Validate previews a voucher against a cart amount without recording usage.
func (s *service) Validate(ctx context.Context, code string, orderAmount decimal.Decimal, userID *uuid.UUID) (Validation, error) {
	if orderAmount.IsNegative() {
		return Validation{}, apperror.InvalidInput("order amount cannot be negative")
	}
	return s.ledger.Validate(ctx, s.store, code, orderAmount, userID)
}

// Create validates and stores a new voucher.
func (s *service) Create(ctx context.Context, in NewVoucher) (*Voucher, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, apperror.InvalidInput("voucher code is required")
	}
	if !in.Type.Valid() {
		return nil, apperror.InvalidInput("unknown voucher type %q", in.Type)
	}
	if in.Value.IsNegative() || in.MinimumOrderAmount.IsNegative() {
		return nil, apperror.InvalidInput("voucher amounts cannot be negative")
	}
	if in.Type == TypePercentage && in.Value.GreaterThan(hundred) {
		return nil, apperror.InvalidInput("percentage cannot exceed 100, got %s", in.Value)
	}
	if in.MaximumDiscountAmount != nil && in.MaximumDiscountAmount.IsNegative() {
		return nil, apperror.InvalidInput("maximum discount cannot be negative")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, apperror.InvalidInput("voucher must end after it starts")
	}
	if (in.UsageLimit != nil && *in.UsageLimit <= 0) || (in.UsageLimitPerUser != nil && *in.UsageLimitPerUser <= 0) {
		return nil, apperror.InvalidInput("usage limits must be positive")
	}

	v := &Voucher{
		ID:                    uuid.New(),
		Code:                  code,
		Type:                  in.Type,
		Value:                 in.Value,
		MinimumOrderAmount:    in.MinimumOrderAmount,
		MaximumDiscountAmount: in.MaximumDiscountAmount,
		UsageLimit:            in.UsageLimit,
		UsageLimitPerUser:     in.UsageLimitPerUser,
		Active:                in.Active,
		StartsAt:              in.StartsAt,
		EndsAt:                in.EndsAt,
	}
	if err := s.store.Create(ctx, v); err != nil {
		if apperror.IsBusiness(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create voucher: %w", err)
	}
	return v, nil
}

// List returns every voucher.
func (s *service) List(ctx context.Context) ([]*Voucher, error) {
	return s.store.List(ctx)
}
