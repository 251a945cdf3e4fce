package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/common/logging"
	"github.com/storefront-systems/storefront-stack/common/messaging"
)

// Publisher is the broker-side surface the relay needs. Satisfied by the
// JetStream client; the sync ack is what gives the relay its at-least-once
// guarantee.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// RelayConfig holds relay tuning parameters.
type RelayConfig struct {
	// BatchSize caps the rows claimed per pass. Zero means 100.
	BatchSize int

	// Interval is the pause between passes. Zero means 1s.
	Interval time.Duration

	// Database is the logical database name stamped into envelope sources.
	Database string
}

// backlogSampleInterval is how many relay passes separate backlog gauge
// samples. The gauge costs a full COUNT(*) over outbox_events, which on a
// large retained outbox dwarfs the pass itself.
const backlogSampleInterval = 10

// Relay moves unpublished outbox rows to the broker. Multiple relay
// instances can run against the same table; SKIP LOCKED keeps them from
// claiming the same rows.
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	cfg       RelayConfig
	logger    *logging.Logger
	passes    int
}

// NewRelay creates a relay.
func NewRelay(pool *pgxpool.Pool, publisher Publisher, cfg RelayConfig, logger *logging.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Relay{
		pool:      pool,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(logging.Component("outbox-relay")),
	}
}

// Run drains the outbox until ctx is cancelled. A pass that publishes a
// full batch is followed immediately by another pass so a backlog is not
// throttled to one batch per interval.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		relayed, err := r.RunOnce(ctx)
		if err != nil {
			metrics.OutboxRelayErrors.Inc()
			r.logger.ErrorContext(ctx, "relay pass failed", logging.Error(err))
		}
		if relayed == r.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of unpublished rows, publishes them in
// occurred_on order, and stamps published_at on the ones the broker acked.
// Rows after a publish failure stay unpublished and are retried next pass.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin relay transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT event_id, aggregate_name, event_type, payload, occurred_on
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY occurred_on
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox rows: %w", err)
	}

	records := []models.OutboxRecord{}
	for rows.Next() {
		var rec models.OutboxRecord
		if err := rows.Scan(&rec.EventID, &rec.AggregateName, &rec.EventType, &rec.Payload, &rec.OccurredOn); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	published := []string{}
	var publishErr error
	for _, rec := range records {
		data, err := r.envelope(rec)
		if err != nil {
			publishErr = err
			break
		}

		if err := r.publisher.Publish(ctx, messaging.EventSubject(rec.AggregateName), data); err != nil {
			publishErr = fmt.Errorf("failed to publish event %s: %w", rec.EventID, err)
			break
		}
		published = append(published, rec.EventID)
	}

	if len(published) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_events SET published_at = now() WHERE event_id = ANY($1)`,
			published,
		); err != nil {
			return 0, fmt.Errorf("failed to stamp published_at: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit relay transaction: %w", err)
		}
		metrics.OutboxRelayedTotal.Add(float64(len(published)))
	}

	r.passes++
	if r.passes%backlogSampleInterval == 1 {
		r.observeBacklog(ctx)
	}
	return len(published), publishErr
}

// envelope wraps a record in the change-envelope wire format. Relay always
// reports a create: an outbox row is born once and never mutated, apart
// from the published_at stamp the consumer never sees.
func (r *Relay) envelope(rec models.OutboxRecord) ([]byte, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox record %s: %w", rec.EventID, err)
	}

	wire := map[string]any{
		"payload": map[string]any{
			"before": nil,
			"after":  json.RawMessage(doc),
			"source": map[string]string{
				"name":  "catalog",
				"db":    r.cfg.Database,
				"table": "outbox_events",
			},
			"op": "c",
		},
	}
	return json.Marshal(wire)
}

func (r *Relay) observeBacklog(ctx context.Context) {
	var backlog int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`,
	).Scan(&backlog)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to observe outbox backlog", logging.Error(err))
		return
	}
	metrics.OutboxBacklog.Set(float64(backlog))
}
