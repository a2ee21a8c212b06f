package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/coupon"
	"github.com/velora/storefront/internal/domain/inventory"
	"github.com/velora/storefront/internal/domain/pricing"
	"github.com/velora/storefront/internal/domain/product"
)

// DefaultMaxPerLine is the per-line quantity cap.
const DefaultMaxPerLine = 99

// ProductUnavailableError indicates the referenced product does not exist or
// is not purchasable.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// QuantityLimitError indicates a line would exceed the per-line quantity cap.
type QuantityLimitError struct {
	Limit int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity cannot exceed %d per item", e.Limit)
}

// Summary is the computed pricing breakdown for a cart, for display.
type Summary struct {
	Subtotal  decimal.Decimal
	Shipping  decimal.Decimal
	Tax       decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// Service implements the cart operations: line mutation with availability and
// cap checks, and strict coupon application. Unlike checkout, applying a
// coupon here rejects invalid codes synchronously.
type Service struct {
	carts      Repository
	products   product.Repository
	coupons    coupon.Validator
	pricing    pricing.Config
	maxPerLine int
	now        func() time.Time
}

// NewService creates a cart Service with the required dependencies.
func NewService(
	carts Repository,
	products product.Repository,
	coupons coupon.Validator,
	cfg pricing.Config,
) *Service {
	return &Service{
		carts:      carts,
		products:   products,
		coupons:    coupons,
		pricing:    cfg,
		maxPerLine: DefaultMaxPerLine,
		now:        time.Now,
	}
}

// Get returns the owner's cart and its computed summary. A missing cart is
// reported as an empty one rather than an error.
func (s *Service) Get(ctx context.Context, owner Owner) (*Cart, Summary, error) {
	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{UserID: owner.UserID, SessionID: owner.SessionID}, Summary{}, nil
		}
		return nil, Summary{}, errors.Wrap(err, "find cart")
	}

	sum, err := s.summarize(c)
	if err != nil {
		return nil, Summary{}, err
	}
	return c, sum, nil
}

// AddItem adds qty units of a product to the owner's cart, creating the cart
// on first use. An existing line is merged: quantities add up and the unit
// price is re-snapshotted from the catalog.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductUnavailableError{ProductID: productID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, &ProductUnavailableError{ProductID: productID}
	}

	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "find cart")
		}
		now := s.now()
		c = &Cart{
			ID:        uuid.New().String(),
			UserID:    owner.UserID,
			SessionID: owner.SessionID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	newQty := qty
	if i := c.itemIndex(productID); i >= 0 {
		newQty += c.Items[i].Quantity
	}
	if newQty > s.maxPerLine {
		return nil, &QuantityLimitError{Limit: s.maxPerLine}
	}
	if newQty > p.Quantity {
		return nil, &inventory.InsufficientStockError{
			ProductID: productID,
			Requested: newQty,
			Available: p.Quantity,
		}
	}

	if i := c.itemIndex(productID); i >= 0 {
		c.Items[i].Quantity = newQty
		c.Items[i].UnitPrice = p.Price
	} else {
		c.Items = append(c.Items, Item{
			ProductID: productID,
			UnitPrice: p.Price,
			Quantity:  qty,
			AddedAt:   s.now(),
		})
	}
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// UpdateItem sets the quantity of an existing line, re-snapshotting the unit
// price from the catalog.
func (s *Service) UpdateItem(ctx context.Context, owner Owner, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if qty > s.maxPerLine {
		return nil, &QuantityLimitError{Limit: s.maxPerLine}
	}

	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	i := c.itemIndex(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductUnavailableError{ProductID: productID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if qty > p.Quantity {
		return nil, &inventory.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: p.Quantity,
		}
	}

	c.Items[i].Quantity = qty
	c.Items[i].UnitPrice = p.Price
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID string) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	i := c.itemIndex(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}

	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Clear empties the owner's cart and removes any applied coupon.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.carts.Clear(ctx, c.ID)
}

// ApplyCoupon validates the code against the cart's captured-price subtotal
// and the owner's usage history, then stores the code and computed discount
// on the cart. Invalid coupons are rejected here, in contrast to checkout
// which silently ignores them.
func (s *Service) ApplyCoupon(ctx context.Context, owner Owner, code string) (*Cart, decimal.Decimal, error) {
	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, ErrEmpty
		}
		return nil, decimal.Zero, errors.Wrap(err, "find cart")
	}
	if c.IsEmpty() {
		return nil, decimal.Zero, ErrEmpty
	}

	subtotal, err := pricing.Subtotal(c.Lines())
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "cart subtotal")
	}

	cpn, err := s.coupons.Validate(ctx, code, subtotal, owner.UserID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	discount := cpn.Discount(subtotal)
	c.CouponCode = cpn.Code
	c.CouponDiscount = discount
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "save cart")
	}
	return c, discount, nil
}

// RemoveCoupon clears the applied coupon from the owner's cart.
func (s *Service) RemoveCoupon(ctx context.Context, owner Owner) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	c.CouponCode = ""
	c.CouponDiscount = decimal.Zero
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// summarize computes the display pricing breakdown from the cart's captured
// prices and applied coupon discount.
func (s *Service) summarize(c *Cart) (Summary, error) {
	subtotal, err := pricing.Subtotal(c.Lines())
	if err != nil {
		return Summary{}, errors.Wrap(err, "cart subtotal")
	}

	itemCount := c.ItemCount()
	shipping := s.pricing.Shipping(subtotal, itemCount)
	tax := s.pricing.Tax(subtotal)
	discount := c.CouponDiscount

	return Summary{
		Subtotal:  subtotal,
		Shipping:  shipping,
		Tax:       tax,
		Discount:  discount,
		Total:     pricing.Total(subtotal, shipping, tax, discount),
		ItemCount: itemCount,
	}, nil
}
