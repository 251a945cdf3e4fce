// Package repository persists catalog aggregates. Mutating methods take the
// caller's transaction so aggregate writes and their outbox rows commit or
// abort together.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductExists   = errors.New("product already exists")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExists    = errors.New("coupon already exists")
)

// ProductRepository manages product aggregates.
type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Product) error
	Update(ctx context.Context, tx pgx.Tx, p *models.Product) error
	Delete(ctx context.Context, tx pgx.Tx, sku string) error
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, limit, offset int) ([]*models.Product, error)
}

// CouponRepository manages coupon aggregates.
type CouponRepository interface {
	Create(ctx context.Context, tx pgx.Tx, c *models.Coupon) error
	Delete(ctx context.Context, tx pgx.Tx, id string) error
	GetByID(ctx context.Context, id string) (*models.Coupon, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// TxRunner scopes a function to one transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
