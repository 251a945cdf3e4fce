package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/common/database"
)

// PostgresCounter implements Counter on the inventory table.
type PostgresCounter struct {
	pool *pgxpool.Pool
}

// rowQuerier is the subset of pgxpool.Pool and pgx.Tx the conditional
// adjustment writes through.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresCounter creates a counter backed by PostgreSQL.
func NewPostgresCounter(pool *pgxpool.Pool) *PostgresCounter {
	return &PostgresCounter{pool: pool}
}

// Get retrieves the item for a SKU.
func (c *PostgresCounter) Get(ctx context.Context, sku string) (*models.InventoryItem, error) {
	query := `
		SELECT sku, quantity, version, created_at, updated_at
		FROM inventory
		WHERE sku = $1
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	item := &models.InventoryItem{}
	err := c.pool.QueryRow(ctx, query, sku).Scan(
		&item.SKU, &item.Quantity, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}

	return item, nil
}

// Create inserts a new item at version 1.
func (c *PostgresCounter) Create(ctx context.Context, sku string, quantity int) (*models.InventoryItem, error) {
	query := `
		INSERT INTO inventory (sku, quantity, version, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		RETURNING sku, quantity, version, created_at, updated_at
	`

	item := &models.InventoryItem{}
	err := c.pool.QueryRow(ctx, query, sku, quantity, time.Now().UTC()).Scan(
		&item.SKU, &item.Quantity, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}

	return item, nil
}

// Apply performs the conditional adjustment as a single autocommit
// statement on the pool.
func (c *PostgresCounter) Apply(ctx context.Context, sku string, delta int, expectedVersion int64) (ApplyResult, error) {
	return c.apply(ctx, c.pool, sku, delta, expectedVersion)
}

// ApplyTx performs the conditional adjustment on the caller's transaction,
// so the quantity change shares the fate of whatever else the caller
// writes, the outbox row in particular.
func (c *PostgresCounter) ApplyTx(ctx context.Context, tx pgx.Tx, sku string, delta int, expectedVersion int64) (ApplyResult, error) {
	return c.apply(ctx, tx, sku, delta, expectedVersion)
}

// apply runs the adjustment as a single statement: the version match and
// the non-negative guard sit in the same WHERE clause, so a row is updated
// only when both hold. A zero row count is then classified by an advisory
// re-read.
func (c *PostgresCounter) apply(ctx context.Context, q rowQuerier, sku string, delta int, expectedVersion int64) (ApplyResult, error) {
	query := `
		UPDATE inventory
		SET quantity = quantity + $1,
		    version = version + 1,
		    updated_at = $2
		WHERE sku = $3
		  AND version = $4
		  AND quantity + $1 >= 0
		RETURNING quantity, version
	`

	var quantity int
	var version int64
	err := q.QueryRow(ctx, query, delta, time.Now().UTC(), sku, expectedVersion).Scan(&quantity, &version)
	if err == nil {
		metrics.InventoryApplyTotal.WithLabelValues(Applied.String()).Inc()
		return ApplyResult{Status: Applied, Quantity: quantity, Version: version}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ApplyResult{}, fmt.Errorf("failed to apply inventory delta: %w", err)
	}

	// Nothing matched. Re-read to tell a stale version from a shortage;
	// the classification is advisory since the row may move again, but
	// Conflict tells the caller a retry is worthwhile.
	status, err := c.classify(ctx, sku, delta, expectedVersion)
	if err != nil {
		return ApplyResult{}, err
	}

	metrics.InventoryApplyTotal.WithLabelValues(status.String()).Inc()
	return ApplyResult{Status: status}, nil
}

func (c *PostgresCounter) classify(ctx context.Context, sku string, delta int, expectedVersion int64) (ApplyStatus, error) {
	item, err := c.Get(ctx, sku)
	if errors.Is(err, ErrNotFound) {
		return NotFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to classify apply failure: %w", err)
	}

	if item.Version != expectedVersion {
		return Conflict, nil
	}
	return InsufficientStock, nil
}
