package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/cart"
)

const (
	getCartByOwnerSQL = `SELECT id, user_id, session_id, items, coupon_code, coupon_discount, created_at, updated_at
		FROM carts WHERE (user_id = $1 AND $1 <> '') OR (session_id = $2 AND $2 <> '')`

	upsertCartSQL = `INSERT INTO carts (id, user_id, session_id, items, coupon_code, coupon_discount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			items = EXCLUDED.items,
			coupon_code = EXCLUDED.coupon_code,
			coupon_discount = EXCLUDED.coupon_discount,
			updated_at = EXCLUDED.updated_at`

	clearCartSQL = `UPDATE carts
		SET items = '[]', coupon_code = '', coupon_discount = 0, updated_at = now()
		WHERE id = $1`

	purgeGuestCartsSQL = `DELETE FROM carts WHERE user_id = '' AND updated_at < $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Cart lines
// are stored as a JSONB document on the cart row.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindByOwner returns the cart owned by the given user or session.
// Returns cart.ErrNotFound when the owner has no cart.
func (r *CartRepository) FindByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartByOwnerSQL, owner.UserID, owner.SessionID)
	if err != nil {
		return nil, fmt.Errorf("finding cart: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	return &c, nil
}

// Save upserts the cart row, replacing its items and coupon fields.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertCartSQL,
		c.ID, c.UserID, c.SessionID, itemsJSON,
		c.CouponCode, c.CouponDiscount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving cart %q: %w", c.ID, err)
	}
	return nil
}

// Clear empties the cart's items and coupon, keeping the row.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}

// PurgeGuestsIdleSince deletes session-owned carts not touched since the
// cutoff and returns the number removed.
func (r *CartRepository) PurgeGuestsIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, purgeGuestCartsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging guest carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c         cart.Cart
		itemsJSON []byte
		discount  decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.SessionID, &itemsJSON,
		&c.CouponCode, &discount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.CouponDiscount = discount
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return c, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	return c, nil
}
