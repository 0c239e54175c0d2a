package voucher

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store persists vouchers and their usage ledger.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	CountUsageByUser(ctx context.Context, voucherID, userID uuid.UUID) (int, error)
	// IncrementUsage raises used_count by one unless the usage limit is
	// already reached, in which case it returns InvalidVoucher(usage-limit).
	IncrementUsage(ctx context.Context, voucherID uuid.UUID) error
	InsertUsage(ctx context.Context, usage *Usage) error
	Create(ctx context.Context, v *Voucher) error
	List(ctx context.Context) ([]*Voucher, error)
}

// PostgresStore implements Store over a database.Querier.
type PostgresStore struct {
	q    database.Querier
	lock bool
}

// NewPostgresStore creates a store over q. With lock set, FindByCode takes
// a row lock so concurrent redemptions of one voucher serialize.
func NewPostgresStore(q database.Querier, lock bool) *PostgresStore {
	return &PostgresStore{q: q, lock: lock}
}

const voucherColumns = `id, code, type, value, min_order_amount, max_discount_amount,
	usage_limit, usage_limit_per_user, used_count, active, starts_at, ends_at, created_at, updated_at`

func scanVoucher(row interface{ Scan(...any) error }) (*Voucher, error) {
	v := &Voucher{}
	var maxDiscount decimal.NullDecimal
	var usageLimit, perUser sql.NullInt64

	err := row.Scan(
		&v.ID,
		&v.Code,
		&v.Type,
		&v.Value,
		&v.MinimumOrderAmount,
		&maxDiscount,
		&usageLimit,
		&perUser,
		&v.UsedCount,
		&v.Active,
		&v.StartsAt,
		&v.EndsAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		d := maxDiscount.Decimal
		v.MaximumDiscountAmount = &d
	}
	if usageLimit.Valid {
		n := int(usageLimit.Int64)
		v.UsageLimit = &n
	}
	if perUser.Valid {
		n := int(perUser.Int64)
		v.UsageLimitPerUser = &n
	}
	return v, nil
}

// FindByCode looks a voucher up by its uppercase code.
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`
	if s.lock {
		query += ` FOR UPDATE`
	}

	v, err := scanVoucher(s.q.QueryRowContext(ctx, query, NormalizeCode(code)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("voucher", code)
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, nil
}

// CountUsageByUser counts the ledger rows for (voucher, user).
func (s *PostgresStore) CountUsageByUser(ctx context.Context, voucherID, userID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2
	`, voucherID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count voucher usage: %w", err)
	}
	return n, nil
}

// IncrementUsage implements Store.
func (s *PostgresStore) IncrementUsage(ctx context.Context, voucherID uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`, voucherID)
	if err != nil {
		return fmt.Errorf("failed to increment voucher usage: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperror.InvalidVoucher(apperror.ReasonUsageLimit, "voucher usage limit reached")
	}
	return nil
}

// InsertUsage appends a usage row.
func (s *PostgresStore) InsertUsage(ctx context.Context, usage *Usage) error {
	return s.q.QueryRowContext(ctx, `
		INSERT INTO voucher_usages (voucher_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, usage.VoucherID, usage.UserID, usage.OrderID, usage.DiscountAmount, usage.UsedAt).Scan(&usage.ID)
}

// Create inserts a new voucher.
func (s *PostgresStore) Create(ctx context.Context, v *Voucher) error {
	var maxDiscount decimal.NullDecimal
	if v.MaximumDiscountAmount != nil {
		maxDiscount = decimal.NewNullDecimal(*v.MaximumDiscountAmount)
	}

	err := s.q.QueryRowContext(ctx, `
		INSERT INTO vouchers (id, code, type, value, min_order_amount, max_discount_amount,
			usage_limit, usage_limit_per_user, used_count, active, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`,
		v.ID, v.Code, v.Type, v.Value, v.MinimumOrderAmount, maxDiscount,
		nullInt(v.UsageLimit), nullInt(v.UsageLimitPerUser), v.UsedCount, v.Active, v.StartsAt, v.EndsAt,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.InvalidInput("voucher code %s already exists", v.Code)
		}
		return fmt.Errorf("failed to insert voucher: %w", err)
	}
	return nil
}

// List returns all vouchers, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Voucher, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vouchers: %w", err)
	}
	return vouchers, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
