package slotpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupSlotDatabase starts a PostgreSQL testcontainer with the slot table.
func setupSlotDatabase(t *testing.T) *PostgresPool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("storefront_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	schema := `
		CREATE TABLE coupon_slots (
			slot_id UUID PRIMARY KEY,
			coupon_id TEXT NOT NULL
		);
		CREATE INDEX idx_coupon_slots_coupon_id ON coupon_slots (coupon_id)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatalf("Failed to create slot table: %v", err)
	}

	return NewPostgresPool(pool)
}

// materialize mints slots through a committed transaction.
func materialize(t *testing.T, p *PostgresPool, couponID string, count int) {
	t.Helper()
	ctx := context.Background()

	tx, err := p.pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	require.NoError(t, p.Materialize(ctx, tx, couponID, count))
	require.NoError(t, tx.Commit(ctx))
}

func TestPostgresPool_MaterializeAndConsume(t *testing.T) {
	pool := setupSlotDatabase(t)
	ctx := context.Background()

	materialize(t, pool, "coupon-1", 2)

	remaining, err := pool.Remaining(ctx, "coupon-1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	ok, err := pool.ConsumeOne(ctx, "coupon-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pool.ConsumeOne(ctx, "coupon-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pool.ConsumeOne(ctx, "coupon-1")
	require.NoError(t, err)
	assert.False(t, ok, "consume past the budget must be denied")
}

func TestPostgresPool_ConcurrentConsumersNeverOverdraw(t *testing.T) {
	pool := setupSlotDatabase(t)
	ctx := context.Background()

	const budget = 10
	const consumers = 40

	materialize(t, pool, "coupon-race", budget)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := pool.ConsumeOne(ctx, "coupon-race")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, budget, granted)

	remaining, err := pool.Remaining(ctx, "coupon-race")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestPostgresPool_ConsumeIsolatedPerCoupon(t *testing.T) {
	pool := setupSlotDatabase(t)
	ctx := context.Background()

	materialize(t, pool, "coupon-a", 1)
	materialize(t, pool, "coupon-b", 1)

	ok, err := pool.ConsumeOne(ctx, "coupon-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Draining coupon-a must not touch coupon-b's budget.
	remaining, err := pool.Remaining(ctx, "coupon-b")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestPostgresPool_ReleaseAll(t *testing.T) {
	pool := setupSlotDatabase(t)
	ctx := context.Background()

	materialize(t, pool, "coupon-del", 5)

	tx, err := pool.pool.Begin(ctx)
	require.NoError(t, err)
	released, err := pool.ReleaseAll(ctx, tx, "coupon-del")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, int64(5), released)

	ok, err := pool.ConsumeOne(ctx, "coupon-del")
	require.NoError(t, err)
	assert.False(t, ok)
}
