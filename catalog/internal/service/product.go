package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/catalog/internal/repository"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// CreateProductInput holds the fields for a new product.
type CreateProductInput struct {
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Active      bool
}

// UpdateProductInput holds optional field updates; nil means unchanged.
type UpdateProductInput struct {
	Name        *string
	Description *string
	PriceCents  *int64
	Active      *bool
}

// ProductService implements product use cases.
type ProductService struct {
	tx       repository.TxRunner
	products repository.ProductRepository
	outbox   OutboxAppender
	logger   *logging.Logger
}

// NewProductService creates a product service.
func NewProductService(tx repository.TxRunner, products repository.ProductRepository, outbox OutboxAppender, logger *logging.Logger) *ProductService {
	if logger == nil {
		logger = logging.Default()
	}

	return &ProductService{
		tx:       tx,
		products: products,
		outbox:   outbox,
		logger:   logger.With(logging.Component("product-service")),
	}
}

// CreateProduct creates a product and records product_created in the same
// transaction.
func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if input.SKU == "" || input.Name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	if input.PriceCents < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate product id: %w", err)
	}

	now := time.Now().UTC()
	product := &models.Product{
		ID:          id.String(),
		SKU:         input.SKU,
		Name:        input.Name,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		Active:      input.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	evt, err := models.NewDomainEvent(models.EventProductCreated, product)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.products.Create(ctx, tx, product); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product created",
		logging.SKU(product.SKU),
		logging.EventID(evt.EventID))
	return product, nil
}

// UpdateProduct applies field updates and records product_updated in the
// same transaction.
func (s *ProductService) UpdateProduct(ctx context.Context, sku string, input UpdateProductInput) (*models.Product, error) {
	product, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.PriceCents != nil {
		if *input.PriceCents < 0 {
			return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
		}
		product.PriceCents = *input.PriceCents
	}
	if input.Active != nil {
		product.Active = *input.Active
	}
	product.UpdatedAt = time.Now().UTC()

	evt, err := models.NewDomainEvent(models.EventProductUpdated, product)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.products.Update(ctx, tx, product); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product updated",
		logging.SKU(product.SKU),
		logging.EventID(evt.EventID))
	return product, nil
}

// DeleteProduct removes a product and records product_deleted in the same
// transaction.
func (s *ProductService) DeleteProduct(ctx context.Context, sku string) error {
	product, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}

	evt, err := models.NewDomainEvent(models.EventProductDeleted, map[string]string{
		"id":  product.ID,
		"sku": product.SKU,
	})
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.products.Delete(ctx, tx, sku); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "product deleted",
		logging.SKU(sku),
		logging.EventID(evt.EventID))
	return nil
}

// GetProduct retrieves a product by SKU.
func (s *ProductService) GetProduct(ctx context.Context, sku string) (*models.Product, error) {
	return s.products.GetBySKU(ctx, sku)
}

// ListProducts retrieves a page of products.
func (s *ProductService) ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.products.List(ctx, limit, offset)
}
