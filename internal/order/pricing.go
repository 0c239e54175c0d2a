package order

import (
	"bytes"
	"slices"
	"strings"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingPolicy is a flat fee waived above a subtotal threshold.
type ShippingPolicy struct {
	Fee decimal.Decimal
	// FreeThreshold waives the fee when the subtotal reaches it. Zero means
	// the fee is never waived by amount.
	FreeThreshold decimal.Decimal
}

// DefaultShippingPolicy charges 30,000 on every order.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{Fee: decimal.NewFromInt(30_000)}
}

// FeeFor returns the shipping fee for subTotal. A free-shipping voucher
// always waives it.
func (p ShippingPolicy) FeeFor(subTotal decimal.Decimal, freeShipping bool) decimal.Decimal {
	if freeShipping {
		return decimal.Zero
	}
	if p.FreeThreshold.IsPositive() && subTotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.Fee
}

// Limits bound the size of a cart.
type Limits struct {
	MaxLineItems    int
	MaxItemQuantity int
}

// DefaultLimits allows 50 distinct books and 100 copies of each.
func DefaultLimits() Limits {
	return Limits{MaxLineItems: 50, MaxItemQuantity: 100}
}

// normalizeItems merges duplicate book ids, keeping first-seen order, and
// enforces limits on the merged cart.
func normalizeItems(items []LineItem, limits Limits) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, apperror.InvalidInput("order must contain at least one item")
	}

	merged := make([]LineItem, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.BookID == uuid.Nil {
			return nil, apperror.InvalidInput("line item is missing a book id")
		}
		if it.Quantity <= 0 {
			return nil, apperror.InvalidInput("quantity for book %s must be positive", it.BookID)
		}
		if i, ok := index[it.BookID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.BookID] = len(merged)
		merged = append(merged, it)
	}

	if limits.MaxLineItems > 0 && len(merged) > limits.MaxLineItems {
		return nil, apperror.InvalidInput("order has %d distinct books, at most %d allowed", len(merged), limits.MaxLineItems)
	}
	for _, it := range merged {
		if limits.MaxItemQuantity > 0 && it.Quantity > limits.MaxItemQuantity {
			return nil, apperror.InvalidInput("quantity %d for book %s exceeds the limit of %d", it.Quantity, it.BookID, limits.MaxItemQuantity)
		}
	}
	return merged, nil
}

// lockOrder returns the book ids of items sorted ascending. Every
// transaction that touches several books locks them in this order.
func lockOrder[T any](items []T, id func(T) uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, id(it))
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(ids)
}

// formatAmount renders d with thousands separators, e.g. 50,000 or 1,234.50.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Equal(d.Truncate(0)) {
		s = d.StringFixed(0)
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
