package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// MemoryCounter is an in-memory Counter for tests and local development.
type MemoryCounter struct {
	mu    sync.Mutex
	items map[string]*models.InventoryItem
}

// NewMemoryCounter creates an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		items: make(map[string]*models.InventoryItem),
	}
}

// Get retrieves the item for a SKU.
func (c *MemoryCounter) Get(_ context.Context, sku string) (*models.InventoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[sku]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *item
	return &clone, nil
}

// Create inserts a new item at version 1.
func (c *MemoryCounter) Create(_ context.Context, sku string, quantity int) (*models.InventoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	item := &models.InventoryItem{
		SKU:       sku,
		Quantity:  quantity,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.items[sku] = item

	clone := *item
	return &clone, nil
}

// Apply performs the conditional adjustment under the counter's lock.
func (c *MemoryCounter) Apply(_ context.Context, sku string, delta int, expectedVersion int64) (ApplyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[sku]
	if !ok {
		metrics.InventoryApplyTotal.WithLabelValues(NotFound.String()).Inc()
		return ApplyResult{Status: NotFound}, nil
	}

	if item.Version != expectedVersion {
		metrics.InventoryApplyTotal.WithLabelValues(Conflict.String()).Inc()
		return ApplyResult{Status: Conflict}, nil
	}

	if item.Quantity+delta < 0 {
		metrics.InventoryApplyTotal.WithLabelValues(InsufficientStock.String()).Inc()
		return ApplyResult{Status: InsufficientStock}, nil
	}

	item.Quantity += delta
	item.Version++
	item.UpdatedAt = time.Now().UTC()

	metrics.InventoryApplyTotal.WithLabelValues(Applied.String()).Inc()
	return ApplyResult{Status: Applied, Quantity: item.Quantity, Version: item.Version}, nil
}

// ApplyTx ignores the transaction; in-memory writes have no rollback.
func (c *MemoryCounter) ApplyTx(ctx context.Context, _ pgx.Tx, sku string, delta int, expectedVersion int64) (ApplyResult, error) {
	return c.Apply(ctx, sku, delta, expectedVersion)
}
