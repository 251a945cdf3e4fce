package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldAggregate = "aggregate"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldSKU       = "sku"
	FieldCouponID  = "coupon_id"
	FieldSubject   = "subject"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute for the component name.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// Aggregate returns a slog attribute for the aggregate name.
func Aggregate(name string) slog.Attr {
	return slog.String(FieldAggregate, name)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for an event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// SKU returns a slog attribute for a stock keeping unit.
func SKU(sku string) slog.Attr {
	return slog.String(FieldSKU, sku)
}

// CouponID returns a slog attribute for a coupon ID.
func CouponID(id string) slog.Attr {
	return slog.String(FieldCouponID, id)
}

// Subject returns a slog attribute for a broker subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
