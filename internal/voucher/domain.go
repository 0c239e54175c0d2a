package voucher

import (
	"time"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the discount rule a voucher applies.
type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFixedAmount  Type = "fixed_amount"
	TypeFreeShipping Type = "free_shipping"
)

// Valid reports whether t is a known voucher type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping:
		return true
	}
	return false
}

// Voucher is a discount code with usage limits and a validity window.
// Code is unique and stored uppercase.
type Voucher struct {
	ID                    uuid.UUID        `json:"id"`
	Code                  string           `json:"code"`
	Type                  Type             `json:"type"`
	Value                 decimal.Decimal  `json:"value"`
	MinimumOrderAmount    decimal.Decimal  `json:"minimum_order_amount"`
	MaximumDiscountAmount *decimal.Decimal `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser     *int             `json:"usage_limit_per_user,omitempty"`
	UsedCount             int              `json:"used_count"`
	Active                bool             `json:"active"`
	StartsAt              time.Time        `json:"starts_at"`
	EndsAt                time.Time        `json:"ends_at"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// IsValid reports whether the voucher can be redeemed at now, ignoring the
// order amount and per-user limits.
func (v *Voucher) IsValid(now time.Time) bool {
	return v.Active &&
		!now.Before(v.StartsAt) && !now.After(v.EndsAt) &&
		!v.limitReached()
}

func (v *Voucher) limitReached() bool {
	return v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit
}

// Usage is one redemption of a voucher by a user for an order. Usage rows
// are append-only.
type Usage struct {
	ID             int64           `json:"id"`
	VoucherID      uuid.UUID       `json:"voucher_id"`
	UserID         uuid.UUID       `json:"user_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}

// Validation is the outcome of checking a code against an order amount.
type Validation struct {
	Valid          bool                   `json:"valid"`
	Reason         apperror.VoucherReason `json:"reason,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Code           string                 `json:"code"`
	DiscountAmount decimal.Decimal        `json:"discount_amount"`
	FreeShipping   bool                   `json:"free_shipping"`
	Voucher        *Voucher               `json:"-"`
}

// Err returns the InvalidVoucher error for a failed validation, or nil.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return apperror.InvalidVoucher(v.Reason, v.Message)
}

func invalid(code string, reason apperror.VoucherReason, message string) Validation {
	return Validation{Code: code, Reason: reason, Message: message, DiscountAmount: decimal.Zero}
}
