package slotpool

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
)

// MemoryPool is an in-memory Pool for tests and local development.
type MemoryPool struct {
	mu    sync.Mutex
	slots map[string]int
}

// NewMemoryPool creates an empty in-memory slot pool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		slots: make(map[string]int),
	}
}

// Materialize adds count slots for the coupon. The transaction is ignored.
func (p *MemoryPool) Materialize(_ context.Context, _ pgx.Tx, couponID string, count int) error {
	if count <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[couponID] += count
	return nil
}

// ConsumeOne claims one slot if any remain.
func (p *MemoryPool) ConsumeOne(_ context.Context, couponID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots[couponID] <= 0 {
		metrics.SlotConsumeTotal.WithLabelValues("exhausted").Inc()
		return false, nil
	}

	p.slots[couponID]--
	if p.slots[couponID] == 0 {
		delete(p.slots, couponID)
	}
	metrics.SlotConsumeTotal.WithLabelValues("consumed").Inc()
	return true, nil
}

// ReleaseAll removes every remaining slot for the coupon. The transaction
// is ignored.
func (p *MemoryPool) ReleaseAll(_ context.Context, _ pgx.Tx, couponID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	released := int64(p.slots[couponID])
	delete(p.slots, couponID)
	return released, nil
}

// Remaining counts the slots left for the coupon.
func (p *MemoryPool) Remaining(_ context.Context, couponID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[couponID], nil
}
