// internal/audit/invariants.go
package audit

import "context"

// RegisterInvariants registers the stock, voucher and order checks.
func (a *Auditor) RegisterInvariants() {
	a.RegisterCheck(a.StockCheck())
	a.RegisterCheck(a.VoucherLedgerCheck())
	a.RegisterCheck(a.OrderTotalsCheck())
}

func (a *Auditor) count(query string) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		var n float64
		err := a.db.QueryRowContext(ctx, query).Scan(&n)
		return n, err
	}
}

var zero = Threshold{Operator: "==", Value: 0}

// StockCheck verifies no book is oversold.
func (a *Auditor) StockCheck() Check {
	return Check{
		Name:       "stock",
		Hypothesis: "Book quantities never drop below zero",
		Metrics: []Metric{
			{
				Name:      "negative_stock",
				Query:     a.count(`SELECT COUNT(*) FROM books WHERE quantity < 0`),
				Threshold: zero,
			},
		},
	}
}

// VoucherLedgerCheck verifies used counts against limits and usage rows.
func (a *Auditor) VoucherLedgerCheck() Check {
	return Check{
		Name:       "voucher_ledger",
		Hypothesis: "Every redemption is counted once and no voucher exceeds its limit",
		Metrics: []Metric{
			{
				Name: "over_limit",
				Query: a.count(`
					SELECT COUNT(*) FROM vouchers
					WHERE usage_limit IS NOT NULL AND used_count > usage_limit
				`),
				Threshold: zero,
			},
			{
				Name: "count_mismatch",
				Query: a.count(`
					SELECT COUNT(*) FROM vouchers v
					WHERE v.used_count <> (SELECT COUNT(*) FROM voucher_usages u WHERE u.voucher_id = v.id)
				`),
				Threshold: zero,
			},
		},
	}
}

// OrderTotalsCheck verifies stored order amounts against their details.
func (a *Auditor) OrderTotalsCheck() Check {
	return Check{
		Name:       "order_totals",
		Hypothesis: "Stored totals reconcile with their lines, discount and shipping",
		Metrics: []Metric{
			{
				Name:      "non_positive_quantity",
				Query:     a.count(`SELECT COUNT(*) FROM order_details WHERE quantity <= 0`),
				Threshold: zero,
			},
			{
				Name: "subtotal_mismatch",
				Query: a.count(`
					SELECT COUNT(*) FROM orders o
					WHERE o.sub_total <> (
						SELECT COALESCE(SUM(d.quantity * d.unit_price), 0)
						FROM order_details d WHERE d.order_id = o.id
					)
				`),
				Threshold: zero,
			},
			{
				Name: "total_mismatch",
				Query: a.count(`
					SELECT COUNT(*) FROM orders
					WHERE total <> GREATEST(sub_total - voucher_discount, 0) + shipping_fee
				`),
				Threshold: zero,
			},
		},
	}
}
