package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate names used in outbox rows, change envelopes, and dedup keys.
// Always lowercase nouns.
const (
	AggregateProduct   = "product"
	AggregateCoupon    = "coupon"
	AggregateInventory = "inventory"
	AggregateCustomer  = "customer"
)

// EventType identifies a kind of domain event. The set is closed: every
// type the backend emits or consumes is declared here, and the dispatcher
// registry is keyed by (aggregate, type) pairs drawn from this set.
type EventType string

const (
	EventProductCreated EventType = "product_created"
	EventProductUpdated EventType = "product_updated"
	EventProductDeleted EventType = "product_deleted"

	EventCouponCreated EventType = "coupon_created"
	EventCouponDeleted EventType = "coupon_deleted"

	EventInventoryAdjusted           EventType = "inventory_adjusted"
	EventInventoryCreatedRollbackSKU EventType = "inventory_created_rollback_by_skus"

	EventCustomerCreated EventType = "customer_created"
)

// knownEventTypes is the registry of event types this backend understands.
var knownEventTypes = map[EventType]string{
	EventProductCreated:              AggregateProduct,
	EventProductUpdated:              AggregateProduct,
	EventProductDeleted:              AggregateProduct,
	EventCouponCreated:               AggregateCoupon,
	EventCouponDeleted:               AggregateCoupon,
	EventInventoryAdjusted:           AggregateInventory,
	EventInventoryCreatedRollbackSKU: AggregateInventory,
	EventCustomerCreated:             AggregateCustomer,
}

// IsKnown reports whether the event type belongs to the fixed registry.
func (t EventType) IsKnown() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Aggregate returns the aggregate name an event type belongs to, or "" for
// unknown types.
func (t EventType) Aggregate() string {
	return knownEventTypes[t]
}

// DomainEvent is a state change raised by a use case. Its fields are the
// aggregate-to-outbox contract: a unique stable ID, a lowercase aggregate
// name, a registered type, and a UTC occurrence instant.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	AggregateName string    `json:"aggregate_name"`
	Type          EventType `json:"event_type"`
	OccurredOn    time.Time `json:"occurred_on"`
	Payload       any       `json:"payload"`
}

// NewDomainEvent creates a DomainEvent with a fresh ID and UTC timestamp.
// The event type must belong to the registry; this is a programming-error
// check, not a runtime condition.
func NewDomainEvent(eventType EventType, payload any) (DomainEvent, error) {
	aggregate := eventType.Aggregate()
	if aggregate == "" {
		return DomainEvent{}, fmt.Errorf("unregistered event type %q", eventType)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return DomainEvent{}, fmt.Errorf("generate event id: %w", err)
	}

	return DomainEvent{
		EventID:       id.String(),
		AggregateName: aggregate,
		Type:          eventType,
		OccurredOn:    time.Now().UTC(),
		Payload:       payload,
	}, nil
}

// OutboxRecord is a persisted domain event awaiting relay. Created in the
// same transaction as the aggregate write; never mutated except to stamp
// published_at.
type OutboxRecord struct {
	EventID       string          `json:"event_id"`
	AggregateName string          `json:"aggregate_name"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredOn    time.Time       `json:"occurred_on"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
}

// EventRef identifies one event for idempotency tracking.
type EventRef struct {
	AggregateName string `json:"aggregate_name"`
	EventID       string `json:"event_id"`
}

// RollbackBySKUsPayload is the payload of inventory_created_rollback_by_skus
// events: compensate a failed downstream step by restocking the listed SKUs.
type RollbackBySKUsPayload struct {
	Items []RollbackItem `json:"items"`
	// CompensatesEventID is the event whose effects are being undone; its
	// dedup marker is invalidated so an intentional replay is accepted.
	CompensatesEventID string `json:"compensates_event_id,omitempty"`
}

// RollbackItem is one SKU/quantity pair to restock.
type RollbackItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}
