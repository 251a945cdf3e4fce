package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard implements Guard with an in-process map. Suitable for tests
// and single-replica deployments only: markers are not shared across
// processes.
type MemoryGuard struct {
	mu        sync.Mutex
	markers   map[string]time.Time
	ttl       time.Duration
	cleanupCh chan struct{}
}

// NewMemoryGuard creates an in-memory guard and starts its expiry loop.
// Call Close to stop the loop.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	g := &MemoryGuard{
		markers:   make(map[string]time.Time),
		ttl:       ttl,
		cleanupCh: make(chan struct{}),
	}

	go g.cleanupLoop()

	return g
}

// TryAccept records the marker under the guard's lock; the lock makes the
// check-and-set atomic for in-process callers.
func (g *MemoryGuard) TryAccept(_ context.Context, aggregate, eventID string) (bool, error) {
	key := Key(aggregate, eventID)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, exists := g.markers[key]; exists && now.Before(expiry) {
		return false, nil
	}

	g.markers[key] = now.Add(g.ttl)
	return true, nil
}

// Invalidate removes a marker.
func (g *MemoryGuard) Invalidate(_ context.Context, aggregate, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.markers, Key(aggregate, eventID))
	return nil
}

// Len returns the number of live markers (expired entries not yet swept
// are counted).
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.markers)
}

// cleanupLoop periodically removes expired markers.
func (g *MemoryGuard) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.cleanupCh:
			return
		}
	}
}

func (g *MemoryGuard) cleanup() {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for key, expiry := range g.markers {
		if now.After(expiry) {
			delete(g.markers, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (g *MemoryGuard) Close() {
	close(g.cleanupCh)
}
