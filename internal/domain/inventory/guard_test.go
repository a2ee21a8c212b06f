package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora/storefront/internal/domain/product"
)

type fakeStock struct {
	mu       sync.Mutex
	quantity int
	fail     error
}

func (f *fakeStock) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (f *fakeStock) GetByID(_ context.Context, id string) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &product.Product{ID: id, Quantity: f.quantity, Active: true}, nil
}

func (f *fakeStock) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}

func (f *fakeStock) ReserveStock(_ context.Context, _ string, qty int) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quantity < qty {
		return false, nil
	}
	f.quantity -= qty
	return true, nil
}

func (f *fakeStock) ReleaseStock(_ context.Context, _ string, qty int) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quantity += qty
	return nil
}

func TestReserve(t *testing.T) {
	stock := &fakeStock{quantity: 5}
	g := NewGuard(stock)

	require.NoError(t, g.Reserve(context.Background(), "p1", 3))
	assert.Equal(t, 2, stock.quantity)

	err := g.Reserve(context.Background(), "p1", 3)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "p1", insufficient.ProductID)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 2, stock.quantity, "failed reservation touches nothing")
}

func TestReserve_InvalidQuantity(t *testing.T) {
	g := NewGuard(&fakeStock{quantity: 5})

	require.Error(t, g.Reserve(context.Background(), "p1", 0))
	require.Error(t, g.Reserve(context.Background(), "p1", -1))
}

func TestReserve_RepositoryError(t *testing.T) {
	sentinel := errors.New("connection reset")
	g := NewGuard(&fakeStock{quantity: 5, fail: sentinel})

	err := g.Reserve(context.Background(), "p1", 1)
	require.ErrorIs(t, err, sentinel)

	var insufficient *InsufficientStockError
	assert.False(t, errors.As(err, &insufficient), "infra errors are not stock errors")
}

func TestRelease(t *testing.T) {
	stock := &fakeStock{quantity: 2}
	g := NewGuard(stock)

	require.NoError(t, g.Release(context.Background(), "p1", 3))
	assert.Equal(t, 5, stock.quantity)

	require.Error(t, g.Release(context.Background(), "p1", 0))
}

func TestReserve_Concurrent(t *testing.T) {
	const workers = 16
	stock := &fakeStock{quantity: 10}
	g := NewGuard(stock)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Reserve(context.Background(), "p1", 1)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 10, succeeded, "reservations stop exactly at zero")
	assert.Equal(t, 0, stock.quantity)
}
