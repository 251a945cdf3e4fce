package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storefront-systems/storefront-stack/catalog/internal/cdc"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

// Event is a decoded, de-duplicated domain event handed to a handler.
type Event struct {
	EventID       string           `json:"event_id"`
	AggregateName string           `json:"aggregate_name"`
	EventType     models.EventType `json:"event_type"`
	Payload       json.RawMessage  `json:"payload"`
	OccurredOn    time.Time        `json:"occurred_on"`

	// Operation is the row-level change the envelope described.
	Operation cdc.Operation `json:"-"`
}

// Handler processes one accepted event. Return nil to ack. Return a plain
// error for recoverable failures (the message is redelivered) or wrap it
// with Permanent for failures where redelivery cannot help (the envelope is
// dead-lettered).
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle calls f(ctx, evt).
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// HandlerKey routes an event to its handler.
type HandlerKey struct {
	Aggregate string
	EventType models.EventType
}

// Registry is the statically-constructed handler mapping passed to the
// dispatcher at startup. It is populated once during wiring and read-only
// afterwards; there is no ambient global registry.
type Registry struct {
	handlers map[HandlerKey]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[HandlerKey]Handler),
	}
}

// Register binds a handler to an event type. The type must belong to the
// fixed event registry and must not already be bound; both violations are
// wiring bugs, reported as errors so startup fails loudly.
func (r *Registry) Register(eventType models.EventType, h Handler) error {
	aggregate := eventType.Aggregate()
	if aggregate == "" {
		return fmt.Errorf("dispatch: cannot register unknown event type %q", eventType)
	}

	key := HandlerKey{Aggregate: aggregate, EventType: eventType}
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("dispatch: handler already registered for %s/%s", aggregate, eventType)
	}

	r.handlers[key] = h
	return nil
}

// Lookup returns the handler for (aggregate, event type), or nil if none is
// bound. A nil result is not an error: unhandled event types are acked and
// skipped for forward compatibility.
func (r *Registry) Lookup(aggregate string, eventType models.EventType) Handler {
	return r.handlers[HandlerKey{Aggregate: aggregate, EventType: eventType}]
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.handlers)
}
