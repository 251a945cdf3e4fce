package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter_ApplyAdvancesVersion(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	item, err := counter.Create(ctx, "SKU-1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Version)

	res, err := counter.Apply(ctx, "SKU-1", -3, 1)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 7, res.Quantity)
	assert.Equal(t, int64(2), res.Version)

	res, err = counter.Apply(ctx, "SKU-1", 5, 2)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 12, res.Quantity)
	assert.Equal(t, int64(3), res.Version)
}

func TestMemoryCounter_StaleVersionConflicts(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-1", 10)
	require.NoError(t, err)

	res, err := counter.Apply(ctx, "SKU-1", -1, 1)
	require.NoError(t, err)
	require.Equal(t, Applied, res.Status)

	// Writing with the version we already spent must conflict, not apply.
	res, err = counter.Apply(ctx, "SKU-1", -1, 1)
	require.NoError(t, err)
	assert.Equal(t, Conflict, res.Status)

	// Retrying at the new version succeeds.
	res, err = counter.Apply(ctx, "SKU-1", -1, 2)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 8, res.Quantity)
}

func TestMemoryCounter_InsufficientStock(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-1", 2)
	require.NoError(t, err)

	res, err := counter.Apply(ctx, "SKU-1", -3, 1)
	require.NoError(t, err)
	assert.Equal(t, InsufficientStock, res.Status)

	// The failed attempt must not burn the version.
	res, err = counter.Apply(ctx, "SKU-1", -2, 1)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 0, res.Quantity)
}

func TestMemoryCounter_DeductToExactlyZero(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-1", 5)
	require.NoError(t, err)

	res, err := counter.Apply(ctx, "SKU-1", -5, 1)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Status)
	assert.Equal(t, 0, res.Quantity)
}

func TestMemoryCounter_UnknownSKU(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	res, err := counter.Apply(ctx, "missing", -1, 1)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)

	_, err = counter.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryCounter_ConcurrentWritersOneWins(t *testing.T) {
	counter := NewMemoryCounter()
	ctx := context.Background()

	_, err := counter.Create(ctx, "SKU-race", 100)
	require.NoError(t, err)

	// Both writers read version 1; exactly one apply may succeed.
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
	assert.Equal(t, 1, applied)

	item, err := counter.Get(ctx, "SKU-race")
	require.NoError(t, err)
	assert.Equal(t, 99, item.Quantity)
	assert.Equal(t, int64(2), item.Version)
}

func TestApplyStatus_String(t *testing.T) {
	tests := []struct {
		status ApplyStatus
		want   string
	}{
		{Applied, "applied"},
		{Conflict, "conflict"},
		{InsufficientStock, "insufficient_stock"},
		{NotFound, "not_found"},
		{ApplyStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}
