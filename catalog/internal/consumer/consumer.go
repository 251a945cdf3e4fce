// Package consumer runs the durable JetStream subscription that feeds
// change envelopes into the dispatcher and settles each delivery according
// to the dispatch outcome.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/common/logging"
	"github.com/storefront-systems/storefront-stack/common/messaging"
	"github.com/storefront-systems/storefront-stack/common/messaging/nats"
)

// Config holds consumer construction parameters.
type Config struct {
	// Name is the durable consumer name. Zero means catalog-workers.
	Name string

	// RetryDelay is the NAK delay before redelivery. Zero means 5s.
	RetryDelay time.Duration

	// MaxDeliver caps delivery attempts; a retryable message at its last
	// attempt is dead-lettered instead of redelivered forever. Zero means 5.
	MaxDeliver int
}

// Consumer binds a durable JetStream consumer to the dispatcher.
type Consumer struct {
	js         *nats.JetStreamClient
	dispatcher *dispatch.Dispatcher
	dlq        dispatch.DeadLetterer
	cfg        Config
	logger     *logging.Logger
	stop       func()
}

// New creates a consumer.
func New(js *nats.JetStreamClient, dispatcher *dispatch.Dispatcher, dlq dispatch.DeadLetterer, cfg Config, logger *logging.Logger) *Consumer {
	if cfg.Name == "" {
		cfg.Name = messaging.QueueCatalogWorkers
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Consumer{
		js:         js,
		dispatcher: dispatcher,
		dlq:        dlq,
		cfg:        cfg,
		logger:     logger.With(logging.Component("consumer")),
	}
}

// Start creates the durable consumer and begins processing. It returns once
// the subscription is live; messages are handled on JetStream's callback
// goroutines until Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	consumerCfg := nats.DefaultConsumerConfig(c.cfg.Name, messaging.SubjectCatalogEventsAll)
	consumerCfg.MaxDeliver = c.cfg.MaxDeliver

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, messaging.StreamCatalogEvents, consumerCfg)
	if err != nil {
		return fmt.Errorf("create durable consumer: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.stop = cons.Stop
	c.logger.InfoContext(ctx, "consumer started",
		logging.Subject(messaging.SubjectCatalogEventsAll))
	return nil
}

// Stop halts message delivery. In-flight handlers finish; unacked messages
// are redelivered to the next instance.
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
	}
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	m := &messaging.Message{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
	}
	if headers := msg.Headers(); headers != nil {
		m.Metadata = make(map[string]string)
		for k := range headers {
			m.Metadata[k] = headers.Get(k)
		}
	}

	outcome := c.dispatcher.Dispatch(ctx, m)

	switch outcome.Disposition {
	case dispatch.Ack, dispatch.DeadLetter:
		if err := msg.Ack(); err != nil {
			c.logger.WarnContext(ctx, "failed to ack message",
				logging.Subject(m.Subject), logging.Error(err))
		}

	case dispatch.Retry:
		if c.exhausted(msg) {
			c.terminate(ctx, msg, m, outcome)
			return
		}
		if err := msg.NakWithDelay(c.cfg.RetryDelay); err != nil {
			c.logger.WarnContext(ctx, "failed to nak message",
				logging.Subject(m.Subject), logging.Error(err))
		}
	}
}

// exhausted reports whether this delivery is the message's last allowed
// attempt.
func (c *Consumer) exhausted(msg jetstream.Msg) bool {
	meta, err := msg.Metadata()
	if err != nil {
		return false
	}
	return int(meta.NumDelivered) >= c.cfg.MaxDeliver
}

// terminate dead-letters a message that keeps failing and terms it so
// JetStream stops redelivering. A poison envelope must not wedge the
// consumer group.
func (c *Consumer) terminate(ctx context.Context, msg jetstream.Msg, m *messaging.Message, outcome dispatch.Outcome) {
	cause := outcome.Err
	if cause == nil {
		cause = fmt.Errorf("retries exhausted")
	}

	if c.dlq != nil {
		if err := c.dlq.Write(ctx, m, cause, "max_deliveries"); err != nil {
			// DLQ unreachable: NAK and let the next redelivery try again.
			c.logger.ErrorContext(ctx, "failed to dead-letter exhausted message",
				logging.Subject(m.Subject), logging.Error(err))
			_ = msg.NakWithDelay(c.cfg.RetryDelay)
			return
		}
		metrics.DeadLetteredTotal.WithLabelValues("max_deliveries").Inc()
	}

	c.logger.ErrorContext(ctx, "message delivery attempts exhausted",
		logging.Subject(m.Subject), logging.Error(cause))
	if err := msg.Term(); err != nil {
		c.logger.WarnContext(ctx, "failed to term message",
			logging.Subject(m.Subject), logging.Error(err))
	}
}
