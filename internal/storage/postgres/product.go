package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, sku, price, quantity, sold_count, image, active
		FROM products WHERE active = TRUE ORDER BY id`

	getProductByIDSQL = `SELECT id, name, sku, price, quantity, sold_count, image, active
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, sku, price, quantity, sold_count, image, active
		FROM products WHERE id = ANY($1)`

	// Conditional decrement: the WHERE clause guarantees stock never goes
	// negative regardless of how many transactions race on the same row.
	reserveStockSQL = `UPDATE products
		SET quantity = quantity - $2, sold_count = sold_count + $2
		WHERE id = $1 AND quantity >= $2`

	releaseStockSQL = `UPDATE products
		SET quantity = quantity + $2, sold_count = sold_count - $2
		WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ReserveStock decrements quantity and increments sold_count in one
// conditional update. It reports false when the row was not updated, i.e.
// available stock was below qty.
func (r *ProductRepository) ReserveStock(ctx context.Context, id string, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, reserveStockSQL, id, qty)
	if err != nil {
		return false, fmt.Errorf("reserving %d units of product %q: %w", qty, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseStock returns qty units to stock, reversing a reservation.
func (r *ProductRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, releaseStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("releasing %d units of product %q: %w", qty, id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &price,
		&p.Quantity, &p.SoldCount, &p.Image, &p.Active,
	)
	p.Price = price
	return p, err
}
