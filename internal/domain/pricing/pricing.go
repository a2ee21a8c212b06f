// Package pricing implements the order pricing rules: subtotal, shipping,
// tax, discount, and total. All functions are pure; monetary values use
// decimal arithmetic and each component is rounded to 2 decimal places
// exactly once before summation.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for invalid numeric input.
var (
	ErrNegativePrice   = errors.New("unit price cannot be negative")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Line is a priced line item: a captured unit price and a quantity.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// DiscountKind selects how a coupon value is turned into a discount amount.
type DiscountKind string

const (
	// DiscountPercentage treats the value as a percentage of the subtotal.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed treats the value as a fixed monetary amount.
	DiscountFixed DiscountKind = "fixed"
)

// Config holds the pricing constants. Use DefaultConfig for the standard
// store settings.
type Config struct {
	// TaxRate is the flat sales tax rate applied to the subtotal.
	TaxRate decimal.Decimal
	// FreeShippingThreshold is the subtotal at or above which shipping is free.
	FreeShippingThreshold decimal.Decimal
	// BaseShippingFee is the flat fee for the first unit shipped.
	BaseShippingFee decimal.Decimal
	// PerItemFee is added for every unit after the first.
	PerItemFee decimal.Decimal
}

// DefaultConfig returns the standard pricing constants: 8% tax, free shipping
// at $100, $5.99 base shipping plus $0.99 per additional unit.
func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.08"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		BaseShippingFee:       decimal.RequireFromString("5.99"),
		PerItemFee:            decimal.RequireFromString("0.99"),
	}
}

// Subtotal returns the sum of unit price times quantity across all lines.
// It rejects negative prices and non-positive quantities.
func Subtotal(lines []Line) (decimal.Decimal, error) {
	sum := zero
	for _, l := range lines {
		if l.UnitPrice.IsNegative() {
			return zero, ErrNegativePrice
		}
		if l.Quantity <= 0 {
			return zero, ErrInvalidQuantity
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum, nil
}

// Tax returns the sales tax for the given subtotal, rounded to 2 decimal
// places.
func (c Config) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.TaxRate).Round(2)
}

// Shipping returns the shipping cost for the given subtotal and total unit
// count. Orders at or above the free-shipping threshold ship free; otherwise
// the cost is the base fee plus a per-unit fee for every unit after the first,
// rounded to 2 decimal places.
func (c Config) Shipping(subtotal decimal.Decimal, itemCount int) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		return zero
	}
	extra := itemCount - 1
	if extra < 0 {
		extra = 0
	}
	cost := c.BaseShippingFee.Add(c.PerItemFee.Mul(decimal.NewFromInt(int64(extra))))
	return cost.Round(2)
}

// Discount returns the discount amount for the given subtotal and coupon
// parameters. Percentage discounts are rounded to 2 decimal places; the
// result is clamped to maxDiscount when positive, then to the subtotal so a
// discount can never exceed what it discounts.
func Discount(subtotal decimal.Decimal, kind DiscountKind, value, maxDiscount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch kind {
	case DiscountPercentage:
		d = subtotal.Mul(value).Div(hundred).Round(2)
	case DiscountFixed:
		d = value
	default:
		return zero
	}
	if maxDiscount.IsPositive() && d.GreaterThan(maxDiscount) {
		d = maxDiscount
	}
	return decimal.Min(d, subtotal)
}

// Total returns subtotal + shipping + tax - discount, rounded to 2 decimal
// places and floored at zero.
func Total(subtotal, shipping, tax, discount decimal.Decimal) decimal.Decimal {
	t := subtotal.Add(shipping).Add(tax).Sub(discount).Round(2)
	if t.IsNegative() {
		return zero
	}
	return t
}
