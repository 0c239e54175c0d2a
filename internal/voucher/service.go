package voucher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewVoucher describes a voucher to create.
type NewVoucher struct {
	Code                  string           `json:"code"`
	Type                  Type             `json:"type"`
	Value                 decimal.Decimal  `json:"value"`
	MinimumOrderAmount    decimal.Decimal  `json:"minimum_order_amount"`
	MaximumDiscountAmount *decimal.Decimal `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser     *int             `json:"usage_limit_per_user,omitempty"`
	Active                bool             `json:"active"`
	StartsAt              time.Time        `json:"starts_at"`
	EndsAt                time.Time        `json:"ends_at"`
}

// Service defines the voucher operations exposed outside an order.
type Service interface {
	Validate(ctx context.Context, code string, orderAmount decimal.Decimal, userID *uuid.UUID) (Validation, error)
	Create(ctx context.Context, in NewVoucher) (*Voucher, error)
	List(ctx context.Context) ([]*Voucher, error)
}
