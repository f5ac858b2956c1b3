package products

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	mdshared "github.com/meridian-ops/meridian-ops/internal/masterdata/shared"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type memRepo struct {
	nextID   int64
	products map[int64]Product
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[int64]Product{}}
}

func (r *memRepo) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if filters.IsActive != nil && p.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, fmt.Errorf("products: product %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memRepo) GetBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("products: sku %s: %w", sku, shared.ErrNotFound)
}

func (r *memRepo) Create(ctx context.Context, product Product) (Product, error) {
	for _, p := range r.products {
		if p.SKU == product.SKU {
			return Product{}, fmt.Errorf("products: sku %s: %w", product.SKU, shared.ErrDuplicate)
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

func (r *memRepo) Update(ctx context.Context, id int64, product Product) error {
	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("products: product %d: %w", id, shared.ErrNotFound)
	}
	product.ID = id
	r.products[id] = product
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("products: product %d: %w", id, shared.ErrNotFound)
	}
	delete(r.products, id)
	return nil
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "Widget", UOM: "pcs"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, Product{SKU: "WDG-1", UOM: "pcs"})
	require.ErrorIs(t, err, shared.ErrValidation)

	min, max := int64(10), int64(5)
	_, err = svc.Create(ctx, Product{SKU: "WDG-1", Name: "Widget", UOM: "pcs", MinThreshold: &min, MaxThreshold: &max})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(ctx, Product{SKU: "WDG-1", Name: "Widget", UOM: "pcs", UnitPrice: 4.5, IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateRejectsDuplicateSKU(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{SKU: "WDG-1", Name: "Widget", UOM: "pcs"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Product{SKU: "WDG-1", Name: "Widget Mk2", UOM: "pcs"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestStockStatusClassification(t *testing.T) {
	min, max := int64(10), int64(100)
	p := Product{MinThreshold: &min, MaxThreshold: &max}

	require.Equal(t, StockLow, p.StockStatus(9))
	require.Equal(t, StockOK, p.StockStatus(10))
	require.Equal(t, StockOK, p.StockStatus(100))
	require.Equal(t, StockOverstock, p.StockStatus(101))

	// Without thresholds everything is ok.
	require.Equal(t, StockOK, Product{}.StockStatus(0))
	require.Equal(t, StockOK, Product{}.StockStatus(1_000_000))
}

func TestGetBySKU(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, Product{SKU: "WDG-2", Name: "Widget", UOM: "pcs"})
	require.NoError(t, err)

	got, err := svc.GetBySKU(ctx, "WDG-2")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.GetBySKU(ctx, "MISSING")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
