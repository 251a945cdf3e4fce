// Package handlers contains the downstream event handlers invoked by the
// dispatcher once an envelope is decoded and accepted.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// ProductIndex is the search-side surface the indexing handler needs.
// Satisfied by search.ProductIndexer.
type ProductIndex interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, sku string) error
}

// SearchIndexHandler projects product events into the search index.
type SearchIndexHandler struct {
	index  ProductIndex
	logger *logging.Logger
}

// NewSearchIndexHandler creates the search projection handler.
func NewSearchIndexHandler(index ProductIndex, logger *logging.Logger) *SearchIndexHandler {
	if logger == nil {
		logger = logging.Default()
	}

	return &SearchIndexHandler{
		index:  index,
		logger: logger.With(logging.Component("search-index-handler")),
	}
}

// Handle applies one product event to the index. Index and delete are
// idempotent (SKU-keyed upsert, missing-document delete succeeds), so
// replays are harmless.
func (h *SearchIndexHandler) Handle(ctx context.Context, evt *dispatch.Event) error {
	switch evt.EventType {
	case models.EventProductCreated, models.EventProductUpdated:
		var product models.Product
		if err := json.Unmarshal(evt.Payload, &product); err != nil {
			// Redelivery gets the same bytes; retrying cannot help.
			return dispatch.Permanent(fmt.Errorf("unmarshal product payload: %w", err))
		}
		if product.SKU == "" {
			return dispatch.Permanent(fmt.Errorf("product payload missing sku"))
		}

		if err := h.index.IndexProduct(ctx, &product); err != nil {
			return fmt.Errorf("index product: %w", err)
		}

		h.logger.InfoContext(ctx, "product indexed", logging.SKU(product.SKU))
		return nil

	case models.EventProductDeleted:
		var payload struct {
			SKU string `json:"sku"`
		}
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return dispatch.Permanent(fmt.Errorf("unmarshal delete payload: %w", err))
		}
		if payload.SKU == "" {
			return dispatch.Permanent(fmt.Errorf("delete payload missing sku"))
		}

		if err := h.index.DeleteProduct(ctx, payload.SKU); err != nil {
			return fmt.Errorf("delete product from index: %w", err)
		}

		h.logger.InfoContext(ctx, "product removed from index", logging.SKU(payload.SKU))
		return nil

	default:
		return dispatch.Permanent(fmt.Errorf("unexpected event type %s", evt.EventType))
	}
}
