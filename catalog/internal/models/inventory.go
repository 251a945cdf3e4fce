package models

import "time"

// InventoryItem tracks on-hand quantity for a SKU under optimistic
// concurrency: every successful mutation bumps Version by exactly one, and
// writers must present the version they read.
type InventoryItem struct {
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
