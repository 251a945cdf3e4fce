// Package cdc decodes change-capture messages into typed envelopes.
// Decoding is pure: no I/O, safe to call from any number of workers.
package cdc

import "encoding/json"

// Operation is the kind of row-level change an envelope describes.
type Operation int

const (
	// OpUnknown is any operation code outside the create/update/delete set.
	// Unknown codes decode explicitly so the dispatcher can reject instead
	// of misinterpreting.
	OpUnknown Operation = iota
	OpCreate
	OpUpdate
	OpDelete
)

// String returns the wire code for the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "c"
	case OpUpdate:
		return "u"
	case OpDelete:
		return "d"
	default:
		return "unknown"
	}
}

// Source identifies where a change originated.
type Source struct {
	Name     string `json:"name"`
	Database string `json:"db"`
	Table    string `json:"table"`
}

// Envelope is one decoded row-level change with optional before/after
// snapshots. Snapshots stay as raw JSON; handlers unmarshal the shape they
// expect for their aggregate.
type Envelope struct {
	Operation Operation
	Before    json.RawMessage
	After     json.RawMessage
	Source    Source
}

// HasBefore reports whether the envelope carries a non-null before snapshot.
func (e *Envelope) HasBefore() bool {
	return len(e.Before) > 0 && string(e.Before) != "null"
}

// HasAfter reports whether the envelope carries a non-null after snapshot.
func (e *Envelope) HasAfter() bool {
	return len(e.After) > 0 && string(e.After) != "null"
}
