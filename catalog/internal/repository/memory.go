package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// MemoryTxRunner is a TxRunner for tests; fn receives a nil transaction and
// there is no rollback of in-memory writes.
type MemoryTxRunner struct{}

// WithinTx calls fn directly.
func (MemoryTxRunner) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

// MemoryProductRepository is an in-memory ProductRepository keyed by SKU.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
}

// NewMemoryProductRepository creates an empty product repository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[string]*models.Product),
	}
}

func (r *MemoryProductRepository) Create(_ context.Context, _ pgx.Tx, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.SKU]; exists {
		return ErrProductExists
	}

	clone := *p
	r.products[p.SKU] = &clone
	return nil
}

func (r *MemoryProductRepository) Update(_ context.Context, _ pgx.Tx, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.SKU]; !exists {
		return ErrProductNotFound
	}

	clone := *p
	r.products[p.SKU] = &clone
	return nil
}

func (r *MemoryProductRepository) Delete(_ context.Context, _ pgx.Tx, sku string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[sku]; !exists {
		return ErrProductNotFound
	}

	delete(r.products, sku)
	return nil
}

func (r *MemoryProductRepository) GetBySKU(_ context.Context, sku string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[sku]
	if !ok {
		return nil, ErrProductNotFound
	}

	clone := *p
	return &clone, nil
}

func (r *MemoryProductRepository) List(_ context.Context, limit, offset int) ([]*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.Product, 0, len(r.products))
	for _, p := range r.products {
		clone := *p
		all = append(all, &clone)
	}

	if offset >= len(all) {
		return []*models.Product{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// MemoryCouponRepository is an in-memory CouponRepository keyed by ID.
type MemoryCouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*models.Coupon
}

// NewMemoryCouponRepository creates an empty coupon repository.
func NewMemoryCouponRepository() *MemoryCouponRepository {
	return &MemoryCouponRepository{
		coupons: make(map[string]*models.Coupon),
	}
}

func (r *MemoryCouponRepository) Create(_ context.Context, _ pgx.Tx, c *models.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.coupons[c.ID]; exists {
		return ErrCouponExists
	}
	for _, existing := range r.coupons {
		if existing.Code == c.Code {
			return ErrCouponExists
		}
	}

	clone := *c
	r.coupons[c.ID] = &clone
	return nil
}

func (r *MemoryCouponRepository) Delete(_ context.Context, _ pgx.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.coupons[id]; !exists {
		return ErrCouponNotFound
	}

	delete(r.coupons, id)
	return nil
}

func (r *MemoryCouponRepository) GetByID(_ context.Context, id string) (*models.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[id]
	if !ok {
		return nil, ErrCouponNotFound
	}

	clone := *c
	return &clone, nil
}

func (r *MemoryCouponRepository) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.coupons {
		if c.Code == code {
			clone := *c
			return &clone, nil
		}
	}

	return nil, ErrCouponNotFound
}
