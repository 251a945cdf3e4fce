package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/common/database"
)

// NewPool creates a pgx connection pool with the standard settings and
// verifies connectivity.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// PgxTxRunner implements TxRunner on a connection pool.
type PgxTxRunner struct {
	pool *pgxpool.Pool
}

// NewPgxTxRunner creates a TxRunner backed by the pool.
func NewPgxTxRunner(pool *pgxpool.Pool) *PgxTxRunner {
	return &PgxTxRunner{pool: pool}
}

// WithinTx runs fn inside one transaction.
func (r *PgxTxRunner) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// PostgresProductRepository implements ProductRepository using PostgreSQL.
type PostgresProductRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProductRepository creates a product repository.
func NewPostgresProductRepository(pool *pgxpool.Pool) *PostgresProductRepository {
	return &PostgresProductRepository{pool: pool}
}

// Create inserts a product using tx.
func (r *PostgresProductRepository) Create(ctx context.Context, tx pgx.Tx, p *models.Product) error {
	query := `
		INSERT INTO products (id, sku, name, description, price_cents, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		p.ID, p.SKU, p.Name, p.Description, p.PriceCents, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProductExists
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update rewrites a product's mutable fields using tx.
func (r *PostgresProductRepository) Update(ctx context.Context, tx pgx.Tx, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price_cents = $3, active = $4, updated_at = $5
		WHERE sku = $6
	`

	result, err := tx.Exec(ctx, query,
		p.Name, p.Description, p.PriceCents, p.Active, p.UpdatedAt, p.SKU,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product using tx.
func (r *PostgresProductRepository) Delete(ctx context.Context, tx pgx.Tx, sku string) error {
	result, err := tx.Exec(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

// GetBySKU retrieves a product by SKU.
func (r *PostgresProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	query := `
		SELECT id, sku, name, description, price_cents, active, created_at, updated_at
		FROM products
		WHERE sku = $1
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	p := &models.Product{}
	err := r.pool.QueryRow(ctx, query, sku).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// List retrieves a page of products ordered by creation time.
func (r *PostgresProductRepository) List(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	query := `
		SELECT id, sku, name, description, price_cents, active, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		p := &models.Product{}
		if err := rows.Scan(
			&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

// PostgresCouponRepository implements CouponRepository using PostgreSQL.
type PostgresCouponRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCouponRepository creates a coupon repository.
func NewPostgresCouponRepository(pool *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{pool: pool}
}

// Create inserts a coupon using tx.
func (r *PostgresCouponRepository) Create(ctx context.Context, tx pgx.Tx, c *models.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, kind, max_uses, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		c.ID, c.Code, c.Kind, c.MaxUses, c.Active, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCouponExists
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	return nil
}

// Delete removes a coupon using tx.
func (r *PostgresCouponRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	result, err := tx.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCouponNotFound
	}

	return nil
}

// GetByID retrieves a coupon by ID.
func (r *PostgresCouponRepository) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByCode retrieves a coupon by its redemption code.
func (r *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.get(ctx, `WHERE code = $1`, code)
}

func (r *PostgresCouponRepository) get(ctx context.Context, where string, arg any) (*models.Coupon, error) {
	query := `
		SELECT id, code, kind, max_uses, active, expires_at, created_at
		FROM coupons
	` + where

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	c := &models.Coupon{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Code, &c.Kind, &c.MaxUses, &c.Active, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return c, nil
}
