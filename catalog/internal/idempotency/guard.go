// Package idempotency tracks which events have already been applied so
// at-least-once delivery produces exactly-once effects.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTL is the default marker retention window. It must exceed the
// transport's maximum redelivery delay; the event stream keeps messages
// for 24h, so markers default to twice that.
const DefaultTTL = 48 * time.Hour

// Guard records first acceptance of (aggregate, event id) keys.
//
// Implementations must make TryAccept an atomic check-and-set: concurrent
// first-acceptance attempts for the same key resolve to exactly one winner.
// Store failures are returned as errors - the guard fails closed, and the
// caller leaves the message unacked for redelivery rather than risking a
// double apply.
type Guard interface {
	// TryAccept returns true and records the marker on first call for a
	// key, false on every later call within the retention window.
	TryAccept(ctx context.Context, aggregate, eventID string) (bool, error)

	// Invalidate removes a marker so a compensating event can
	// intentionally replay.
	Invalidate(ctx context.Context, aggregate, eventID string) error
}

// Key builds the marker key for an (aggregate, event id) pair.
func Key(aggregate, eventID string) string {
	return "dedup:" + aggregate + ":" + eventID
}
