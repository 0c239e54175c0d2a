package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/database"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrStaleOrder is returned by UpdateStatus when the stored version moved
// underneath the caller.
var ErrStaleOrder = errors.New("order was modified concurrently")

// Store persists orders with their details.
type Store interface {
	// Save inserts a new order and all of its details.
	Save(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*Order, error)
	GetByStatus(ctx context.Context, status Status) ([]*Order, error)
	GetByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error)
	// UpdateStatus writes the mutable header fields of o. o.Version must
	// already be incremented; the write fails with ErrStaleOrder unless the
	// stored version is o.Version-1.
	UpdateStatus(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresStore implements Store over a database.Querier.
type PostgresStore struct {
	q    database.Querier
	lock bool
}

// NewPostgresStore creates a store over q. With lock set, Get locks the
// order row until the surrounding transaction ends.
func NewPostgresStore(q database.Querier, lock bool) *PostgresStore {
	return &PostgresStore{q: q, lock: lock}
}

const orderColumns = `id, user_id, status, shipping_address, payment_method, sub_total,
	voucher_code, voucher_discount, shipping_fee, free_shipping, total, cancel_reason,
	version, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	var voucherCode sql.NullString
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.ShippingAddress,
		&o.PaymentMethod,
		&o.SubTotal,
		&voucherCode,
		&o.VoucherDiscount,
		&o.ShippingFee,
		&o.FreeShipping,
		&o.Total,
		&o.CancelReason,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if voucherCode.Valid {
		o.VoucherCode = &voucherCode.String
	}
	return o, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, o *Order) error {
	var voucherCode sql.NullString
	if o.VoucherCode != nil {
		voucherCode = sql.NullString{String: *o.VoucherCode, Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, shipping_address, payment_method, sub_total,
			voucher_code, voucher_discount, shipping_fee, free_shipping, total, cancel_reason,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		o.ID, o.UserID, o.Status, o.ShippingAddress, o.PaymentMethod, o.SubTotal,
		voucherCode, o.VoucherDiscount, o.ShippingFee, o.FreeShipping, o.Total, o.CancelReason,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.InvalidInput("order %s already exists", o.ID)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, d := range o.Details {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO order_details (order_id, line_no, book_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, i+1, d.BookID, d.Quantity, d.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order detail %d: %w", i+1, err)
		}
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if s.lock {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("order", id)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := s.loadDetails(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByUser returns the user's orders, newest first.
func (s *PostgresStore) GetByUser(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	return s.list(ctx, `WHERE user_id = $1`, userID)
}

// GetByStatus returns orders in status, newest first.
func (s *PostgresStore) GetByStatus(ctx context.Context, status Status) ([]*Order, error) {
	return s.list(ctx, `WHERE status = $1`, status)
}

// GetByDateRange returns orders created within [from, to], newest first.
func (s *PostgresStore) GetByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error) {
	return s.list(ctx, `WHERE created_at >= $1 AND created_at <= $2`, from, to)
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*Order, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	if err := s.loadDetails(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) loadDetails(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT order_id, book_id, quantity, unit_price
		FROM order_details
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, line_no
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.OrderID, &d.BookID, &d.Quantity, &d.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order detail: %w", err)
		}
		o := byID[d.OrderID]
		o.Details = append(o.Details, d)
	}
	return rows.Err()
}

// UpdateStatus implements Store.
func (s *PostgresStore) UpdateStatus(ctx context.Context, o *Order) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancel_reason = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6
	`, o.ID, o.Status, o.CancelReason, o.Version, o.UpdatedAt, o.Version-1)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrStaleOrder
	}
	return nil
}

// Delete removes the order and, by cascade, its details.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("order", id)
	}
	return nil
}
