// Package inventory guards product stock levels. Reservations use an atomic
// decrement-if-sufficient storage primitive so concurrent checkouts against
// the same product can never drive stock negative.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/velora/storefront/internal/domain/product"
)

// InsufficientStockError indicates a reservation asked for more units than
// are available.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Guard performs stock reservations and releases against a product
// repository.
type Guard struct {
	products product.Repository
}

// NewGuard creates a Guard backed by the given product repository.
func NewGuard(products product.Repository) *Guard {
	return &Guard{products: products}
}

// Reserve atomically decrements stock for the product by qty and increments
// its sold count. It returns an InsufficientStockError when the available
// quantity is below qty; in that case no stock is touched.
func (g *Guard) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return errors.Errorf("reserve quantity must be positive, got %d", qty)
	}

	ok, err := g.products.ReserveStock(ctx, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "reserve stock for product %s", productID)
	}
	if !ok {
		available := 0
		if p, err := g.products.GetByID(ctx, productID); err == nil {
			available = p.Quantity
		}
		return &InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: available,
		}
	}
	return nil
}

// Release returns qty units of the product to stock, reversing a prior
// reservation.
func (g *Guard) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return errors.Errorf("release quantity must be positive, got %d", qty)
	}
	if err := g.products.ReleaseStock(ctx, productID, qty); err != nil {
		return errors.Wrapf(err, "release stock for product %s", productID)
	}
	return nil
}
