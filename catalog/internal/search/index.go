package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// ProductIndex is the index holding the product search read model.
const ProductIndex = "catalog-products"

// productMappings is the fixed mapping for product documents. SKU is the
// document ID, so writes are naturally idempotent under event replay.
var productMappings = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"sku":         map[string]interface{}{"type": "keyword"},
			"name":        map[string]interface{}{"type": "text"},
			"description": map[string]interface{}{"type": "text"},
			"price_cents": map[string]interface{}{"type": "long"},
			"active":      map[string]interface{}{"type": "boolean"},
			"created_at":  map[string]interface{}{"type": "date"},
			"updated_at":  map[string]interface{}{"type": "date"},
		},
	},
}

// ProductIndexer maintains product documents in OpenSearch.
type ProductIndexer struct {
	client *OpenSearchClient
}

// NewProductIndexer creates a product indexer.
func NewProductIndexer(client *OpenSearchClient) *ProductIndexer {
	return &ProductIndexer{client: client}
}

// EnsureIndex creates the product index if it does not exist.
func (i *ProductIndexer) EnsureIndex(ctx context.Context) error {
	c := i.client.Client()

	exists, err := c.Indices.Exists([]string{ProductIndex},
		c.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(productMappings)
	if err != nil {
		return fmt.Errorf("failed to marshal index mappings: %w", err)
	}

	res, err := c.Indices.Create(ProductIndex,
		c.Indices.Create.WithBody(bytes.NewReader(body)),
		c.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// Racing instances may create it first.
		if strings.Contains(res.String(), "resource_already_exists_exception") {
			return nil
		}
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index: %s - %s", res.Status(), string(detail))
	}

	return nil
}

// IndexProduct upserts a product document keyed by SKU.
func (i *ProductIndexer) IndexProduct(ctx context.Context, p *models.Product) error {
	c := i.client.Client()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal product document: %w", err)
	}

	res, err := c.Index(ProductIndex, bytes.NewReader(data),
		c.Index.WithDocumentID(p.SKU),
		c.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to index product %s: %w", p.SKU, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index product %s: %s - %s", p.SKU, res.Status(), string(detail))
	}

	return nil
}

// DeleteProduct removes a product document. A missing document is success:
// the deletion may have been applied by an earlier delivery.
func (i *ProductIndexer) DeleteProduct(ctx context.Context, sku string) error {
	c := i.client.Client()

	res, err := c.Delete(ProductIndex, sku,
		c.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", sku, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete product %s: %s - %s", sku, res.Status(), string(detail))
	}

	return nil
}
