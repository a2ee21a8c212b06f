package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, description, discount_type, value,
		minimum_purchase, maximum_discount, usage_limit, used_count,
		usage_per_user, start_date, end_date, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	countUserUsagesSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE UPPER(coupon_code) = UPPER($1) AND user_id = $2`

	// Conditional increment: the WHERE clause keeps used_count at or below
	// usage_limit no matter how many redemptions race.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE UPPER(code) = UPPER($1) AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING code`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_code, user_id) VALUES ($1, $2)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive
// coupons are still returned so the validator can distinguish "not active"
// from "no such code". Returns coupon.ErrInvalidCode when the code is
// unknown.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// UserUsageCount returns how many times the user has consumed the coupon.
func (r *CouponRepository) UserUsageCount(ctx context.Context, code, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserUsagesSQL, code, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usages of coupon %q for user %q: %w", code, userID, err)
	}
	return n, nil
}

// Redeem consumes one use of the coupon for the user. The counter increment
// is conditional on the global limit not being exhausted; when the condition
// fails Redeem reports false and records nothing.
func (r *CouponRepository) Redeem(ctx context.Context, code, userID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning redeem transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var canonical string
	err = tx.QueryRow(ctx, redeemCouponSQL, code).Scan(&canonical)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("redeeming coupon %q: %w", code, err)
	}

	if _, err := tx.Exec(ctx, insertUsageSQL, canonical, userID); err != nil {
		return false, fmt.Errorf("recording usage of coupon %q: %w", code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing redeem of coupon %q: %w", code, err)
	}
	return true, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                               coupon.Coupon
		value, minPurchase, maxDiscount decimal.Decimal
		usageLimit, usedCount, perUser  int32
	)
	err := row.Scan(
		&c.Code, &c.Description, &c.Type, &value,
		&minPurchase, &maxDiscount, &usageLimit, &usedCount,
		&perUser, &c.StartDate, &c.EndDate, &c.Active,
	)
	c.Value = value
	c.MinimumPurchase = minPurchase
	c.MaximumDiscount = maxDiscount
	c.UsageLimit = int(usageLimit)
	c.UsedCount = int(usedCount)
	c.UsagePerUser = int(perUser)
	return c, err
}
