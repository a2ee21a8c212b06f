package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora/storefront/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, items, shipping_address, billing_address,
		subtotal, shipping_cost, tax, discount, total,
		status, payment_method, payment_status, payment_intent_id,
		coupon_code, coupon_discount, notes,
		tracking_number, tracking_url, estimated_delivery,
		shipped_at, delivered_at, cancelled_at, cancel_reason, created_at`

	createOrderSQL = `INSERT INTO orders (id, number, user_id, items, shipping_address, billing_address,
		subtotal, shipping_cost, tax, discount, total,
		status, payment_method, payment_status,
		coupon_code, coupon_discount, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderByNumberSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE number = $1 AND ($2 = '' OR user_id = $2)`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	setPaymentIntentSQL = `UPDATE orders SET payment_intent_id = $2 WHERE id = $1`

	// Conditional cancel: only the transition winner gets a row update, so
	// racing cancellations release stock at most once.
	markCancelledSQL = `UPDATE orders
		SET status = 'cancelled', payment_status = 'cancelled', cancel_reason = $2, cancelled_at = $3
		WHERE id = $1 AND status IN ('pending', 'confirmed')`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Item
// snapshots and addresses are stored as JSONB documents on the order row.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its frozen item snapshots.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, itemsJSON, shippingJSON, billingJSON,
		o.Subtotal, o.ShippingCost, o.Tax, o.Discount, o.Total,
		o.Status, o.PaymentMethod, o.PaymentStatus,
		o.CouponCode, o.CouponDiscount, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

// FindByNumber returns the order with the given number, scoped to userID when
// it is non-empty. Returns order.ErrNotFound when no matching order exists.
func (r *OrderRepository) FindByNumber(ctx context.Context, number, userID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders newest first, optionally filtered by
// status.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, status order.Status, limit, offset int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// SetPaymentIntent attaches a provider intent ID to the order.
func (r *OrderRepository) SetPaymentIntent(ctx context.Context, orderID, intentID string) error {
	_, err := r.pool.Exec(ctx, setPaymentIntentSQL, orderID, intentID)
	if err != nil {
		return fmt.Errorf("setting payment intent on order %q: %w", orderID, err)
	}
	return nil
}

// MarkCancelled moves the order to cancelled, conditional on the current
// status still permitting cancellation. Reports false when the condition
// failed and nothing changed.
func (r *OrderRepository) MarkCancelled(ctx context.Context, orderID, reason string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, markCancelledSQL, orderID, reason, at)
	if err != nil {
		return false, fmt.Errorf("cancelling order %q: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		shipJSON  []byte
		billJSON  []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON, &shipJSON, &billJSON,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Discount, &o.Total,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentIntentID,
		&o.CouponCode, &o.CouponDiscount, &o.Notes,
		&o.TrackingNumber, &o.TrackingURL, &o.EstimatedDelivery,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CancelReason, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shipJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billJSON, &o.BillingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	return o, nil
}
