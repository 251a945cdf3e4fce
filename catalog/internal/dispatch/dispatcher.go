// Package dispatch routes decoded, de-duplicated change envelopes to
// domain-side handlers and decides how each delivery is settled.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-systems/storefront-stack/catalog/internal/cdc"
	"github.com/storefront-systems/storefront-stack/catalog/internal/idempotency"
	"github.com/storefront-systems/storefront-stack/catalog/internal/metrics"
	"github.com/storefront-systems/storefront-stack/common/logging"
	"github.com/storefront-systems/storefront-stack/common/messaging"
)

// State is the terminal state of one envelope's pass through the
// dispatcher: RECEIVED -> DECODED -> {DEDUPLICATED | ACCEPTED} -> HANDLED,
// with FAILED reachable from decode, acceptance, and handling.
type State string

const (
	StateDeduplicated State = "deduplicated"
	StateHandled      State = "handled"
	StateSkipped      State = "skipped"
	StateFailed       State = "failed"
)

// Disposition tells the transport adapter how to settle the delivery.
type Disposition int

const (
	// Ack settles the message; processing is complete (or correctly a
	// no-op).
	Ack Disposition = iota

	// Retry leaves the message unsettled for transport redelivery.
	Retry

	// DeadLetter means the envelope was written to the DLQ; the original
	// message is acked to stop a poison loop.
	DeadLetter
)

// Outcome reports how an envelope was resolved.
type Outcome struct {
	State       State
	Disposition Disposition
	Err         error
}

// PermanentError marks a handler failure that redelivery cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the dispatcher dead-letters instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// DeadLetterer records envelopes that failed non-recoverably.
type DeadLetterer interface {
	Write(ctx context.Context, msg *messaging.Message, cause error, reason string) error
}

// Dispatcher applies the per-envelope state machine.
type Dispatcher struct {
	registry       *Registry
	guard          idempotency.Guard
	dlq            DeadLetterer
	handlerTimeout time.Duration
	logger         *logging.Logger
}

// Config holds dispatcher construction parameters.
type Config struct {
	Registry *Registry
	Guard    idempotency.Guard
	DLQ      DeadLetterer

	// HandlerTimeout bounds each handler invocation. A timeout is treated
	// as a recoverable failure. Zero means 30s.
	HandlerTimeout time.Duration

	Logger *logging.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Dispatcher{
		registry:       cfg.Registry,
		guard:          cfg.Guard,
		dlq:            cfg.DLQ,
		handlerTimeout: cfg.HandlerTimeout,
		logger:         logger.With(logging.Component("dispatcher")),
	}
}

// Dispatch processes one transport message and returns how to settle it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *messaging.Message) Outcome {
	env, err := cdc.Decode(msg.Data)
	if err != nil {
		return d.failed(ctx, msg, fmt.Errorf("decode envelope: %w", err), Retry)
	}

	if env.Operation == cdc.OpUnknown {
		return d.failed(ctx, msg, errors.New("unrecognized change operation"), Retry)
	}

	if err := env.Validate(); err != nil {
		return d.failed(ctx, msg, err, Retry)
	}

	evt, err := eventFromEnvelope(env)
	if err != nil {
		return d.failed(ctx, msg, err, Retry)
	}

	ctx = logging.WithMessageID(ctx, evt.EventID)

	accepted, err := d.guard.TryAccept(ctx, evt.AggregateName, evt.EventID)
	if err != nil {
		// Fail closed: an unreachable marker store must not be read as
		// "not yet accepted".
		return d.failed(ctx, msg, fmt.Errorf("idempotency check: %w", err), Retry)
	}
	if !accepted {
		d.logger.DebugContext(ctx, "envelope deduplicated",
			logging.Aggregate(evt.AggregateName),
			logging.EventID(evt.EventID))
		metrics.EnvelopesTotal.WithLabelValues(string(StateDeduplicated)).Inc()
		return Outcome{State: StateDeduplicated, Disposition: Ack}
	}

	handler := d.registry.Lookup(evt.AggregateName, evt.EventType)
	if handler == nil {
		// Unknown event types are acked and ignored so newer producers
		// don't wedge older consumers.
		d.logger.InfoContext(ctx, "no handler for event type, skipping",
			logging.Aggregate(evt.AggregateName),
			logging.EventType(string(evt.EventType)))
		metrics.EnvelopesTotal.WithLabelValues(string(StateSkipped)).Inc()
		return Outcome{State: StateSkipped, Disposition: Ack}
	}

	start := time.Now()
	err = d.invoke(ctx, handler, evt)
	metrics.HandlerDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var perm *PermanentError
		if errors.As(err, &perm) {
			return d.deadLetter(ctx, msg, perm.Err)
		}

		// Recoverable: release the marker so the redelivered message is
		// processed rather than deduplicated into a lost event. Best
		// effort only - if the release fails, or the process dies before
		// reaching it, the marker stands until its TTL and the redelivery
		// is deduplicated. Losing one retry is the accepted cost of never
		// applying a handler twice.
		if invErr := d.guard.Invalidate(ctx, evt.AggregateName, evt.EventID); invErr != nil {
			d.logger.WarnContext(ctx, "failed to release marker after handler error",
				logging.EventID(evt.EventID),
				logging.Error(invErr))
		}
		return d.failed(ctx, msg, fmt.Errorf("handle %s: %w", evt.EventType, err), Retry)
	}

	d.logger.InfoContext(ctx, "envelope handled",
		logging.Aggregate(evt.AggregateName),
		logging.EventType(string(evt.EventType)),
		logging.Duration(time.Since(start).Milliseconds()))
	metrics.EnvelopesTotal.WithLabelValues(string(StateHandled)).Inc()
	return Outcome{State: StateHandled, Disposition: Ack}
}

// invoke runs the handler under the configured timeout.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, evt *Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) failed(ctx context.Context, msg *messaging.Message, err error, disposition Disposition) Outcome {
	d.logger.ErrorContext(ctx, "envelope failed",
		logging.Subject(msg.Subject),
		logging.Error(err))
	metrics.EnvelopesTotal.WithLabelValues(string(StateFailed)).Inc()
	return Outcome{State: StateFailed, Disposition: disposition, Err: err}
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg *messaging.Message, cause error) Outcome {
	if d.dlq == nil {
		return d.failed(ctx, msg, cause, Retry)
	}

	if err := d.dlq.Write(ctx, msg, cause, "handler_error"); err != nil {
		// DLQ unreachable: keep the message unacked rather than lose it.
		return d.failed(ctx, msg, fmt.Errorf("dead-letter envelope: %w", err), Retry)
	}

	d.logger.ErrorContext(ctx, "envelope dead-lettered",
		logging.Subject(msg.Subject),
		logging.Error(cause))
	metrics.EnvelopesTotal.WithLabelValues(string(StateFailed)).Inc()
	metrics.DeadLetteredTotal.WithLabelValues("handler_error").Inc()
	return Outcome{State: StateFailed, Disposition: DeadLetter, Err: cause}
}

// eventFromEnvelope extracts the domain event from the snapshot that
// describes the row's final content: after for creates/updates, before for
// deletes.
func eventFromEnvelope(env *cdc.Envelope) (*Event, error) {
	snapshot := env.After
	if env.Operation == cdc.OpDelete {
		snapshot = env.Before
	}

	var evt Event
	if err := json.Unmarshal(snapshot, &evt); err != nil {
		return nil, fmt.Errorf("unmarshal event document: %w", err)
	}

	if evt.EventID == "" || evt.AggregateName == "" {
		return nil, errors.New("event document missing event_id or aggregate_name")
	}

	evt.Operation = env.Operation
	return &evt, nil
}
