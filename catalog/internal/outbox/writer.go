// Package outbox persists domain events in the same transaction as the
// aggregate write and relays them to the broker afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// Writer appends outbox rows inside a caller-owned transaction.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Append serializes the event payload and inserts an outbox row using tx.
// A serialization failure is returned to the caller so the enclosing
// transaction aborts; an event that cannot be represented must take the
// aggregate write down with it.
func (w *Writer) Append(ctx context.Context, tx pgx.Tx, evt models.DomainEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", evt.Type, err)
	}

	query := `
		INSERT INTO outbox_events (event_id, aggregate_name, event_type, payload, occurred_on)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := tx.Exec(ctx, query,
		evt.EventID, evt.AggregateName, evt.Type, payload, evt.OccurredOn,
	); err != nil {
		return fmt.Errorf("failed to append outbox row: %w", err)
	}

	metrics.OutboxAppendsTotal.WithLabelValues(evt.AggregateName, string(evt.Type)).Inc()
	return nil
}
