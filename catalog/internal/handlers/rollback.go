package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/catalog/internal/idempotency"
	"github.com/storefront-systems/storefront-stack/catalog/internal/inventory"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// restockRetries bounds version-conflict retries while restocking a SKU.
const restockRetries = 5

// RollbackHandler restores inventory for compensating events. Each item is
// restocked through the versioned counter, and the compensated event's dedup
// marker is released so a corrected replay is not silently dropped.
type RollbackHandler struct {
	counter inventory.Counter
	guard   idempotency.Guard
	logger  *logging.Logger
}

// NewRollbackHandler creates the inventory rollback handler.
func NewRollbackHandler(counter inventory.Counter, guard idempotency.Guard, logger *logging.Logger) *RollbackHandler {
	if logger == nil {
		logger = logging.Default()
	}

	return &RollbackHandler{
		counter: counter,
		guard:   guard,
		logger:  logger.With(logging.Component("rollback-handler")),
	}
}

// Handle restocks every SKU in the payload. Restocks are additions, so a
// partially applied batch that gets redelivered only risks over-crediting
// stock; the dispatcher's dedup guard prevents the whole-event replay case.
func (h *RollbackHandler) Handle(ctx context.Context, evt *dispatch.Event) error {
	var payload models.RollbackBySKUsPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return dispatch.Permanent(fmt.Errorf("unmarshal rollback payload: %w", err))
	}
	if len(payload.Items) == 0 {
		return dispatch.Permanent(fmt.Errorf("rollback payload has no items"))
	}

	for _, item := range payload.Items {
		if item.SKU == "" || item.Quantity <= 0 {
			return dispatch.Permanent(fmt.Errorf("rollback item %q has invalid quantity %d", item.SKU, item.Quantity))
		}

		if err := h.restock(ctx, item.SKU, item.Quantity); err != nil {
			return fmt.Errorf("restock %s: %w", item.SKU, err)
		}

		h.logger.InfoContext(ctx, "inventory restocked",
			logging.SKU(item.SKU),
			logging.EventID(evt.EventID))
	}

	if payload.CompensatesEventID != "" {
		// Releasing the marker lets a corrected version of the
		// compensated event through. Failure here is logged, not
		// returned: the restock already happened and a retry would
		// double-credit it.
		if err := h.guard.Invalidate(ctx, models.AggregateInventory, payload.CompensatesEventID); err != nil {
			h.logger.WarnContext(ctx, "failed to release dedup marker",
				logging.EventID(payload.CompensatesEventID),
				logging.Error(err))
		}
	}

	return nil
}

// restock adds quantity back to a SKU, retrying through version conflicts.
// A SKU the counter has never seen is created instead; rollbacks can arrive
// before the item's own creation has been processed.
func (h *RollbackHandler) restock(ctx context.Context, sku string, quantity int) error {
	for attempt := 0; attempt < restockRetries; attempt++ {
		item, err := h.counter.Get(ctx, sku)
		if errors.Is(err, inventory.ErrNotFound) {
			if _, err := h.counter.Create(ctx, sku, quantity); err != nil {
				return fmt.Errorf("create inventory item: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read inventory item: %w", err)
		}

		res, err := h.counter.Apply(ctx, sku, quantity, item.Version)
		if err != nil {
			return fmt.Errorf("apply restock: %w", err)
		}

		switch res.Status {
		case inventory.Applied:
			return nil
		case inventory.Conflict:
			continue
		case inventory.NotFound:
			// Deleted between Get and Apply; recreate on next pass.
			continue
		default:
			return fmt.Errorf("unexpected restock status %s", res.Status)
		}
	}

	return fmt.Errorf("too many version conflicts restocking %s", sku)
}
