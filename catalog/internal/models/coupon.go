package models

import "time"

// CouponKind distinguishes coupons with a fixed redemption budget from
// coupons valid for unlimited use while active.
type CouponKind string

const (
	CouponLimited   CouponKind = "limited"
	CouponUnlimited CouponKind = "unlimited"
)

// Coupon is a redemption offer. Limited coupons get a slot pool of exactly
// MaxUses rows at creation; unlimited coupons are validated purely by
// Active and ExpiresAt.
type Coupon struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Kind      CouponKind `json:"kind"`
	MaxUses   int        `json:"max_uses,omitempty"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Usable reports whether the coupon is active and not expired at t.
// Slot availability is checked separately, atomically, at consume time.
func (c *Coupon) Usable(t time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && !t.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// CouponSlot is one pre-materialized redemption token. Consuming a
// redemption deletes exactly one slot row.
type CouponSlot struct {
	SlotID   string `json:"slot_id"`
	CouponID string `json:"coupon_id"`
}
