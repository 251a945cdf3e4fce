// Package slotpool manages pre-materialized coupon usage slots. A limited
// coupon's budget is minted as rows up front; redemption consumes one row
// atomically, so concurrent redeemers can never overdraw the budget.
package slotpool

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Pool is the slot-pool surface used by coupon redemption. A coupon that
// was never materialized is indistinguishable from an exhausted one; the
// caller decides which verdict applies by consulting the coupon record.
type Pool interface {
	// Materialize mints count slots for a coupon using the caller's
	// transaction, so the slots commit or abort with the coupon row.
	Materialize(ctx context.Context, tx pgx.Tx, couponID string, count int) error

	// ConsumeOne atomically claims and removes one slot. The boolean is
	// the redemption verdict: false means the pool is exhausted. Never
	// returns both true and a non-nil error.
	ConsumeOne(ctx context.Context, couponID string) (bool, error)

	// ReleaseAll removes every remaining slot for a coupon using the
	// caller's transaction and returns how many were released. Used when
	// the coupon is deleted.
	ReleaseAll(ctx context.Context, tx pgx.Tx, couponID string) (int64, error)

	// Remaining counts the slots left. Advisory only: the value may be
	// stale by the time the caller acts on it, so it must never gate a
	// consume decision.
	Remaining(ctx context.Context, couponID string) (int, error)
}
