// Package messaging defines standard subject names for the storefront message bus.
package messaging

// Subject constants for the storefront message bus.
// Follow the pattern: {domain}.{category}.{resource}
const (
	// Change-envelope subjects - relayed outbox rows, one subject per aggregate
	SubjectCatalogEventsProduct   = "catalog.events.product"
	SubjectCatalogEventsCoupon    = "catalog.events.coupon"
	SubjectCatalogEventsInventory = "catalog.events.inventory"
	SubjectCatalogEventsCustomer  = "catalog.events.customer"

	// SubjectCatalogEventsAll matches every relayed change envelope.
	SubjectCatalogEventsAll = "catalog.events.>"

	// Dead-letter subjects - non-recoverable envelopes (append .{reason})
	SubjectCatalogDLQ = "catalog.dlq"
)

// Queue group names for load-balanced consumers.
// Workers in the same queue group share messages (each message processed once).
const (
	QueueCatalogWorkers = "catalog-workers" // Pool of change-envelope processors
)

// Stream names for JetStream persistence.
const (
	StreamCatalogEvents = "CATALOG_EVENTS"
	StreamCatalogDLQ    = "CATALOG_DLQ"
)

// EventSubject returns the change-envelope subject for an aggregate.
// Example: catalog.events.product
func EventSubject(aggregate string) string {
	return "catalog.events." + aggregate
}

// DLQSubject returns the dead-letter subject for a failure reason.
// Example: catalog.dlq.decode_error
func DLQSubject(reason string) string {
	return SubjectCatalogDLQ + "." + reason
}
