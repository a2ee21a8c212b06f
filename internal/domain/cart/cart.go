package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when no cart exists for the given owner.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when the referenced line item is not in
	// the cart.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrEmpty is returned when an operation requires a non-empty cart.
	ErrEmpty = errors.New("cart is empty")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Item is one cart line: a product reference, the unit price captured when
// the line was added or last updated, and a quantity. The captured price does
// not follow later catalog price changes.
type Item struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// Owner identifies who a cart belongs to: exactly one of an authenticated
// user or an anonymous session.
type Owner struct {
	UserID    string
	SessionID string
}

// Cart holds a shopper's pending line items and an optionally applied coupon.
type Cart struct {
	ID             string
	UserID         string
	SessionID      string
	Items          []Item
	CouponCode     string
	CouponDiscount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ItemCount returns the total number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Lines converts the cart items into pricing lines using the captured unit
// prices.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, it := range c.Items {
		lines[i] = pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return lines
}

// itemIndex returns the index of the line for productID, or -1.
func (c *Cart) itemIndex(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Repository defines persistence operations for carts.
type Repository interface {
	// FindByOwner returns the cart for the given owner.
	// Returns ErrNotFound when the owner has no cart.
	FindByOwner(ctx context.Context, owner Owner) (*Cart, error)

	// Save upserts the cart's items and coupon fields.
	Save(ctx context.Context, c *Cart) error

	// Clear empties the cart's items and removes any applied coupon. The
	// cart record itself is kept.
	Clear(ctx context.Context, cartID string) error

	// PurgeGuestsIdleSince deletes session-owned carts untouched since the
	// cutoff and returns how many were removed.
	PurgeGuestsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}
