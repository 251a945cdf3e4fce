package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainEvent(t *testing.T) {
	evt, err := NewDomainEvent(EventProductCreated, map[string]string{"sku": "SKU-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, AggregateProduct, evt.AggregateName)
	assert.Equal(t, EventProductCreated, evt.Type)
	assert.False(t, evt.OccurredOn.IsZero())
	assert.Equal(t, time.UTC, evt.OccurredOn.Location())
}

func TestNewDomainEvent_UnregisteredType(t *testing.T) {
	_, err := NewDomainEvent(EventType("order_shipped"), nil)
	require.Error(t, err)
}

func TestNewDomainEvent_UniqueIDs(t *testing.T) {
	a, err := NewDomainEvent(EventCouponCreated, nil)
	require.NoError(t, err)
	b, err := NewDomainEvent(EventCouponCreated, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestEventType_Registry(t *testing.T) {
	tests := []struct {
		eventType EventType
		known     bool
		aggregate string
	}{
		{EventProductCreated, true, AggregateProduct},
		{EventProductUpdated, true, AggregateProduct},
		{EventProductDeleted, true, AggregateProduct},
		{EventCouponCreated, true, AggregateCoupon},
		{EventCouponDeleted, true, AggregateCoupon},
		{EventInventoryAdjusted, true, AggregateInventory},
		{EventInventoryCreatedRollbackSKU, true, AggregateInventory},
		{EventCustomerCreated, true, AggregateCustomer},
		{EventType("order_shipped"), false, ""},
		{EventType(""), false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.known, tt.eventType.IsKnown())
			assert.Equal(t, tt.aggregate, tt.eventType.Aggregate())
		})
	}
}

func TestCoupon_Usable(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{
			name:   "active without expiry",
			coupon: Coupon{Active: true},
			want:   true,
		},
		{
			name:   "active before expiry",
			coupon: Coupon{Active: true, ExpiresAt: &future},
			want:   true,
		},
		{
			name:   "active past expiry",
			coupon: Coupon{Active: true, ExpiresAt: &past},
			want:   false,
		},
		{
			name:   "inactive",
			coupon: Coupon{Active: false},
			want:   false,
		},
		{
			name:   "expires exactly now",
			coupon: Coupon{Active: true, ExpiresAt: &now},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.Usable(now))
		})
	}
}
