package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/pricing"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the subtotal.
	TypeFixed Type = "fixed"
)

var (
	// ErrInvalidCode is returned when a coupon code is not found.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is past its end date.
	ErrExpired = errors.New("coupon has expired")
	// ErrNotActive is returned when a coupon is disabled, not yet started,
	// or has exhausted its global usage limit.
	ErrNotActive = errors.New("coupon is not valid")
	// ErrUserLimitReached is returned when the user has already consumed
	// their allowed uses of the coupon.
	ErrUserLimitReached = errors.New("coupon user limit reached")
)

// BelowMinimumError indicates the cart subtotal does not meet the coupon's
// minimum purchase requirement.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum purchase of $%s required for this coupon", e.Minimum.StringFixed(2))
}

// Coupon defines a discount code's behaviour and eligibility constraints.
// A UsageLimit of 0 means unlimited global uses.
type Coupon struct {
	Code            string
	Description     string
	Type            Type
	Value           decimal.Decimal
	MinimumPurchase decimal.Decimal
	MaximumDiscount decimal.Decimal
	UsageLimit      int
	UsedCount       int
	UsagePerUser    int
	StartDate       time.Time
	EndDate         time.Time
	Active          bool
}

// IsValid reports whether the coupon is active, within its validity window,
// and has global uses remaining.
func (c *Coupon) IsValid(now time.Time) bool {
	return c.Active &&
		!now.Before(c.StartDate) &&
		!now.After(c.EndDate) &&
		(c.UsageLimit == 0 || c.UsedCount < c.UsageLimit)
}

// IsExpired reports whether the coupon's end date has passed.
func (c *Coupon) IsExpired(now time.Time) bool {
	return now.After(c.EndDate)
}

// DiscountKind maps the coupon type to the pricing calculator's discount kind.
func (c *Coupon) DiscountKind() pricing.DiscountKind {
	if c.Type == TypeFixed {
		return pricing.DiscountFixed
	}
	return pricing.DiscountPercentage
}

// Discount computes the coupon's discount amount for the given subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return pricing.Discount(subtotal, c.DiscountKind(), c.Value, c.MaximumDiscount)
}

// Usage is a single consumption record: who used the coupon and when.
type Usage struct {
	UserID string
	UsedAt time.Time
}

// Repository provides coupon lookup, per-user usage counting, and atomic
// redemption.
type Repository interface {
	// FindByCode looks up a coupon by its code (case-insensitive).
	// Returns ErrInvalidCode when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// UserUsageCount returns how many usage records exist for the given
	// coupon and user.
	UserUsageCount(ctx context.Context, code, userID string) (int, error)

	// Redeem increments the coupon's used count and appends a usage record
	// for the user. The increment is conditional on the global usage limit
	// not being exhausted; Redeem returns false without mutating anything
	// when the limit has been reached.
	Redeem(ctx context.Context, code, userID string) (bool, error)
}
