package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/inventory"
	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/catalog/internal/repository"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// defaultConflictRetries bounds optimistic-concurrency retries per
// adjustment. Conflicts beyond this indicate contention the caller should
// back off from rather than spin on.
const defaultConflictRetries = 3

// InventoryAdjustedPayload is the payload of inventory_adjusted events.
type InventoryAdjustedPayload struct {
	SKU      string `json:"sku"`
	Delta    int    `json:"delta"`
	Quantity int    `json:"quantity"`
	Version  int64  `json:"version"`
}

// InventoryService implements stock use cases on the versioned counter.
type InventoryService struct {
	tx         repository.TxRunner
	counter    inventory.Counter
	outbox     OutboxAppender
	maxRetries int
	logger     *logging.Logger
}

// NewInventoryService creates an inventory service.
func NewInventoryService(tx repository.TxRunner, counter inventory.Counter, outbox OutboxAppender, logger *logging.Logger) *InventoryService {
	if logger == nil {
		logger = logging.Default()
	}

	return &InventoryService{
		tx:         tx,
		counter:    counter,
		outbox:     outbox,
		maxRetries: defaultConflictRetries,
		logger:     logger.With(logging.Component("inventory-service")),
	}
}

// CreateItem registers a SKU with its starting quantity.
func (s *InventoryService) CreateItem(ctx context.Context, sku string, quantity int) (*models.InventoryItem, error) {
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrInvalidInput)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}

	item, err := s.counter.Create(ctx, sku, quantity)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "inventory item created", logging.SKU(sku))
	return item, nil
}

// GetItem retrieves the item for a SKU.
func (s *InventoryService) GetItem(ctx context.Context, sku string) (*models.InventoryItem, error) {
	return s.counter.Get(ctx, sku)
}

// AdjustQuantity applies delta to a SKU under optimistic concurrency. The
// adjustment and its inventory_adjusted outbox row commit in one
// transaction, so a durable stock change always has its event and a failed
// append undoes the change. Version conflicts are retried at the fresh
// version; InsufficientStock and NotFound are terminal for the attempt.
func (s *InventoryService) AdjustQuantity(ctx context.Context, sku string, delta int) (*models.InventoryItem, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		item, err := s.counter.Get(ctx, sku)
		if err != nil {
			return nil, err
		}

		var res inventory.ApplyResult
		err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
			var applyErr error
			res, applyErr = s.counter.ApplyTx(ctx, tx, sku, delta, item.Version)
			if applyErr != nil {
				return applyErr
			}
			if res.Status != inventory.Applied {
				return nil
			}

			evt, evtErr := models.NewDomainEvent(models.EventInventoryAdjusted, InventoryAdjustedPayload{
				SKU:      sku,
				Delta:    delta,
				Quantity: res.Quantity,
				Version:  res.Version,
			})
			if evtErr != nil {
				return evtErr
			}
			return s.outbox.Append(ctx, tx, evt)
		})
		if err != nil {
			return nil, err
		}

		switch res.Status {
		case inventory.Applied:
			return &models.InventoryItem{
				SKU:      sku,
				Quantity: res.Quantity,
				Version:  res.Version,
			}, nil

		case inventory.Conflict:
			metrics.InventoryRetriesTotal.Inc()
			continue

		case inventory.InsufficientStock:
			return nil, fmt.Errorf("adjust %s by %d: %w", sku, delta, ErrInsufficientStock)

		case inventory.NotFound:
			return nil, inventory.ErrNotFound
		}
	}

	return nil, fmt.Errorf("adjust %s: %w", sku, ErrTooManyConflicts)
}

// RequestRollback emits a compensation event asking consumers to restock
// the listed SKUs. compensatesEventID names the event whose effects are
// being undone; its dedup marker is cleared on the consumer side so an
// intentional replay is accepted.
func (s *InventoryService) RequestRollback(ctx context.Context, items []models.RollbackItem, compensatesEventID string) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: rollback needs at least one item", ErrInvalidInput)
	}

	evt, err := models.NewDomainEvent(models.EventInventoryCreatedRollbackSKU, models.RollbackBySKUsPayload{
		Items:              items,
		CompensatesEventID: compensatesEventID,
	})
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "rollback requested", logging.EventID(evt.EventID))
	return nil
}
