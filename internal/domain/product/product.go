package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Quantity is the
// available stock; SoldCount tracks units sold and is adjusted together with
// Quantity on every reservation and release.
type Product struct {
	ID        string
	Name      string
	SKU       string
	Price     decimal.Decimal
	Quantity  int
	SoldCount int
	Image     string
	Active    bool
}

// Repository defines catalog reads and the atomic stock operations.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// ReserveStock decrements quantity by qty and increments sold_count by
	// qty in a single conditional update. It returns false without mutating
	// anything when the available quantity is below qty.
	ReserveStock(ctx context.Context, id string, qty int) (bool, error)

	// ReleaseStock increments quantity by qty and decrements sold_count by
	// qty. Used when a reserved line is returned to stock on cancellation.
	ReleaseStock(ctx context.Context, id string, qty int) error
}
