package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard_TryAccept_FirstWins(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	defer guard.Close()

	ctx := context.Background()

	accepted, err := guard.TryAccept(ctx, "product", "evt-1")
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = guard.TryAccept(ctx, "product", "evt-1")
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestMemoryGuard_TryAccept_ConcurrentSingleWinner(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	defer guard.Close()

	ctx := context.Background()

	const callers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, err := guard.TryAccept(ctx, "coupon", "evt-race")
			if err != nil {
				t.Error(err)
				return
			}
			if accepted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestMemoryGuard_ExpiredMarkerReaccepts(t *testing.T) {
	guard := NewMemoryGuard(10 * time.Millisecond)
	defer guard.Close()

	ctx := context.Background()

	accepted, err := guard.TryAccept(ctx, "product", "evt-ttl")
	require.NoError(t, err)
	assert.True(t, accepted)

	time.Sleep(20 * time.Millisecond)

	accepted, err = guard.TryAccept(ctx, "product", "evt-ttl")
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestMemoryGuard_Invalidate(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	defer guard.Close()

	ctx := context.Background()

	accepted, err := guard.TryAccept(ctx, "inventory", "evt-comp")
	require.NoError(t, err)
	assert.True(t, accepted)

	require.NoError(t, guard.Invalidate(ctx, "inventory", "evt-comp"))

	accepted, err = guard.TryAccept(ctx, "inventory", "evt-comp")
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestMemoryGuard_Cleanup(t *testing.T) {
	guard := NewMemoryGuard(5 * time.Millisecond)
	defer guard.Close()

	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := guard.TryAccept(ctx, "product", id)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, guard.Len())

	time.Sleep(10 * time.Millisecond)
	guard.cleanup()

	assert.Equal(t, 0, guard.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "dedup:product:evt-1", Key("product", "evt-1"))
}
