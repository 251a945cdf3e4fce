package slotpool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/common/database"
)

// PostgresPool implements Pool on the coupon_slots table.
type PostgresPool struct {
	pool *pgxpool.Pool
}

// NewPostgresPool creates a slot pool backed by PostgreSQL.
func NewPostgresPool(pool *pgxpool.Pool) *PostgresPool {
	return &PostgresPool{pool: pool}
}

// Materialize bulk-inserts count slot rows via COPY on the caller's
// transaction.
func (p *PostgresPool) Materialize(ctx context.Context, tx pgx.Tx, couponID string, count int) error {
	if count <= 0 {
		return nil
	}

	rows := make([][]interface{}, 0, count)
	for i := 0; i < count; i++ {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate slot id: %w", err)
		}
		rows = append(rows, []interface{}{id.String(), couponID})
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"coupon_slots"},
		[]string{"slot_id", "coupon_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to materialize slots: %w", err)
	}
	if copied != int64(count) {
		return fmt.Errorf("materialized %d of %d slots", copied, count)
	}

	return nil
}

// ConsumeOne claims one slot with a single atomic statement. SKIP LOCKED
// keeps concurrent redeemers from queueing on the same row; the row count
// of the DELETE is the verdict.
func (p *PostgresPool) ConsumeOne(ctx context.Context, couponID string) (bool, error) {
	query := `
		DELETE FROM coupon_slots
		WHERE slot_id = (
			SELECT slot_id FROM coupon_slots
			WHERE coupon_id = $1
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx, query, couponID)
	if err != nil {
		return false, fmt.Errorf("failed to consume slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		metrics.SlotConsumeTotal.WithLabelValues("exhausted").Inc()
		return false, nil
	}

	metrics.SlotConsumeTotal.WithLabelValues("consumed").Inc()
	return true, nil
}

// ReleaseAll deletes every remaining slot for the coupon on the caller's
// transaction.
func (p *PostgresPool) ReleaseAll(ctx context.Context, tx pgx.Tx, couponID string) (int64, error) {
	tag, err := tx.Exec(ctx,
		`DELETE FROM coupon_slots WHERE coupon_id = $1`, couponID)
	if err != nil {
		return 0, fmt.Errorf("failed to release slots: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Remaining counts the slots left for the coupon.
func (p *PostgresPool) Remaining(ctx context.Context, couponID string) (int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_slots WHERE coupon_id = $1`, couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", err)
	}

	return n, nil
}
