package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

type fakeIndex struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	failing bool
}

func (f *fakeIndex) IndexProduct(ctx context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		return errors.New("opensearch unavailable")
	}
	f.indexed = append(f.indexed, p.SKU)
	return nil
}

func (f *fakeIndex) DeleteProduct(ctx context.Context, sku string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		return errors.New("opensearch unavailable")
	}
	f.deleted = append(f.deleted, sku)
	return nil
}

func productEvent(t *testing.T, eventType models.EventType, payload interface{}) *dispatch.Event {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return &dispatch.Event{
		EventID:       "0198c2f0-0000-7000-8000-00000000000a",
		AggregateName: models.AggregateProduct,
		EventType:     eventType,
		Payload:       data,
		OccurredOn:    time.Now().UTC(),
	}
}

func isPermanent(err error) bool {
	var perm *dispatch.PermanentError
	return errors.As(err, &perm)
}

func TestSearchIndexHandler_IndexesCreatedAndUpdated(t *testing.T) {
	index := &fakeIndex{}
	h := NewSearchIndexHandler(index, nil)
	ctx := context.Background()

	product := &models.Product{SKU: "SKU-1", Name: "Widget", PriceCents: 1999}

	require.NoError(t, h.Handle(ctx, productEvent(t, models.EventProductCreated, product)))
	require.NoError(t, h.Handle(ctx, productEvent(t, models.EventProductUpdated, product)))

	assert.Equal(t, []string{"SKU-1", "SKU-1"}, index.indexed)
	assert.Empty(t, index.deleted)
}

func TestSearchIndexHandler_DeletesBySKU(t *testing.T) {
	index := &fakeIndex{}
	h := NewSearchIndexHandler(index, nil)

	evt := productEvent(t, models.EventProductDeleted, map[string]string{"sku": "SKU-9"})
	require.NoError(t, h.Handle(context.Background(), evt))

	assert.Equal(t, []string{"SKU-9"}, index.deleted)
}

func TestSearchIndexHandler_MalformedPayloadIsPermanent(t *testing.T) {
	h := NewSearchIndexHandler(&fakeIndex{}, nil)

	evt := productEvent(t, models.EventProductCreated, nil)
	evt.Payload = json.RawMessage(`{"sku": 42}`)

	err := h.Handle(context.Background(), evt)
	require.Error(t, err)
	assert.True(t, isPermanent(err), "malformed payloads must not be retried")
}

func TestSearchIndexHandler_MissingSKUIsPermanent(t *testing.T) {
	h := NewSearchIndexHandler(&fakeIndex{}, nil)

	err := h.Handle(context.Background(), productEvent(t, models.EventProductCreated, &models.Product{Name: "no sku"}))
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestSearchIndexHandler_IndexFailureIsRecoverable(t *testing.T) {
	h := NewSearchIndexHandler(&fakeIndex{failing: true}, nil)

	err := h.Handle(context.Background(), productEvent(t, models.EventProductCreated, &models.Product{SKU: "SKU-1"}))
	require.Error(t, err)
	assert.False(t, isPermanent(err), "a flaky index should be retried")
}

func TestSearchIndexHandler_UnexpectedEventTypeIsPermanent(t *testing.T) {
	h := NewSearchIndexHandler(&fakeIndex{}, nil)

	err := h.Handle(context.Background(), productEvent(t, models.EventCouponCreated, map[string]string{}))
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}
