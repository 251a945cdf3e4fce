// Package inventory implements the versioned stock counter. Every write is
// conditioned on the version the writer read, so lost updates are
// impossible; the caller distinguishes a version race from a real shortage
// and retries only the former.
package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// ErrNotFound is returned by Get when no item exists for the SKU.
var ErrNotFound = errors.New("inventory item not found")

// ApplyStatus classifies the outcome of a conditional adjustment.
type ApplyStatus int

const (
	// Applied means the delta was written and the version advanced.
	Applied ApplyStatus = iota

	// Conflict means another writer advanced the version first. The item
	// still exists; re-read and retry with the new version.
	Conflict

	// InsufficientStock means the delta would take the quantity negative.
	// Retrying at the same stock level cannot succeed.
	InsufficientStock

	// NotFound means no item exists for the SKU.
	NotFound
)

// String returns the metrics label for the status.
func (s ApplyStatus) String() string {
	switch s {
	case Applied:
		return "applied"
	case Conflict:
		return "conflict"
	case InsufficientStock:
		return "insufficient_stock"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ApplyResult reports one conditional adjustment. Quantity and Version are
// meaningful only when Status is Applied.
type ApplyResult struct {
	Status   ApplyStatus
	Quantity int
	Version  int64
}

// Counter is the versioned stock surface.
type Counter interface {
	// Get returns the item for a SKU, or NotFound via ErrNotFound.
	Get(ctx context.Context, sku string) (*models.InventoryItem, error)

	// Create inserts a new item at version 1.
	Create(ctx context.Context, sku string, quantity int) (*models.InventoryItem, error)

	// Apply adds delta (negative to deduct) to the SKU's quantity,
	// conditional on expectedVersion. The result's status tells the
	// caller whether to accept, retry, or give up.
	Apply(ctx context.Context, sku string, delta int, expectedVersion int64) (ApplyResult, error)

	// ApplyTx is Apply on the caller's transaction, so the adjustment
	// commits or aborts together with the caller's other writes.
	ApplyTx(ctx context.Context, tx pgx.Tx, sku string, delta int, expectedVersion int64) (ApplyResult, error)
}
