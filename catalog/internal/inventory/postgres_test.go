package inventory

import (
	"context"
	"errors"
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

// setupInventoryDatabase starts a PostgreSQL testcontainer with the
// inventory table.
func setupInventoryDatabase(t *testing.T) *PostgresCounter {
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
		CREATE TABLE inventory (
			sku TEXT PRIMARY KEY,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatalf("Failed to create inventory table: %v", err)
	}

	return NewPostgresCounter(pool)
}

func TestPostgresCounter_ApplyAdvancesVersion(t *testing.T) {
	counter := setupInventoryDatabase(t)
	ctx := context.Background()

	item, err := counter.Create(ctx, "SKU-1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Version)

	res, err := counter.Apply(ctx, "SKU-1", -4, 1)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 6, res.Quantity)
	assert.Equal(t, int64(2), res.Version)
}

func TestPostgresCounter_ClassifiesZeroRowUpdates(t *testing.T) {
	counter := setupInventoryDatabase(t)
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-1", 3)
	require.NoError(t, err)

	t.Run("stale version", func(t *testing.T) {
		res, err := counter.Apply(ctx, "SKU-1", -1, 99)
		require.NoError(t, err)
		assert.Equal(t, Conflict, res.Status)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		res, err := counter.Apply(ctx, "SKU-1", -10, 1)
		require.NoError(t, err)
		assert.Equal(t, InsufficientStock, res.Status)
	})

	t.Run("unknown sku", func(t *testing.T) {
		res, err := counter.Apply(ctx, "missing", -1, 1)
		require.NoError(t, err)
		assert.Equal(t, NotFound, res.Status)
	})
}

func TestPostgresCounter_ApplyTxRollsBackWithTransaction(t *testing.T) {
	counter := setupInventoryDatabase(t)
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-1", 10)
	require.NoError(t, err)

	tx, err := counter.pool.Begin(ctx)
	require.NoError(t, err)

	res, err := counter.ApplyTx(ctx, tx, "SKU-1", -4, 1)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	require.NoError(t, tx.Rollback(ctx))

	// The adjustment must share the fate of the caller's transaction.
	item, err := counter.Get(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, int64(1), item.Version)
}

func TestPostgresCounter_ConcurrentWritersOneWins(t *testing.T) {
	counter := setupInventoryDatabase(t)
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-race", 100)
	require.NoError(t, err)

	const writers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := counter.Apply(ctx, "SKU-race", -1, 1)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Status == Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, applied, "only one writer may win at version 1")

	item, err := counter.Get(ctx, "SKU-race")
	require.NoError(t, err)
	assert.Equal(t, 99, item.Quantity)
	assert.Equal(t, int64(2), item.Version)
}

func TestPostgresCounter_GetUnknownSKU(t *testing.T) {
	counter := setupInventoryDatabase(t)

	_, err := counter.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
