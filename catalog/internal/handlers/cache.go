package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// CouponCacheKey returns the cache key for a coupon code lookup.
func CouponCacheKey(code string) string {
	return "coupon:code:" + code
}

// CouponCacheHandler drops cached coupon lookups when the source of truth
// changes. Deleting instead of updating keeps the handler idempotent; the
// next lookup repopulates the cache.
type CouponCacheHandler struct {
	client *redis.Client
	logger *logging.Logger
}

// NewCouponCacheHandler creates the cache invalidation handler.
func NewCouponCacheHandler(client *redis.Client, logger *logging.Logger) *CouponCacheHandler {
	if logger == nil {
		logger = logging.Default()
	}

	return &CouponCacheHandler{
		client: client,
		logger: logger.With(logging.Component("coupon-cache-handler")),
	}
}

// Handle invalidates the cache entry for the event's coupon code.
func (h *CouponCacheHandler) Handle(ctx context.Context, evt *dispatch.Event) error {
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return dispatch.Permanent(fmt.Errorf("unmarshal coupon payload: %w", err))
	}
	if payload.Code == "" {
		return dispatch.Permanent(fmt.Errorf("coupon payload missing code"))
	}

	if err := h.client.Del(ctx, CouponCacheKey(payload.Code)).Err(); err != nil {
		return fmt.Errorf("invalidate coupon cache: %w", err)
	}

	h.logger.DebugContext(ctx, "coupon cache invalidated",
		logging.EventType(string(evt.EventType)))
	return nil
}
