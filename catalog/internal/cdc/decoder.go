package cdc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Contract violations detected by Validate. The dispatcher treats these as
// malformed envelopes: failed, never acked as handled.
var (
	ErrMissingBefore = errors.New("cdc: update/delete envelope has no before snapshot")
	ErrMissingAfter  = errors.New("cdc: create envelope has no after snapshot")
)

// wireMessage mirrors the transport-level JSON:
// {"payload": {"before": ..., "after": ..., "source": {...}, "op": "c"|"u"|"d"}}
type wireMessage struct {
	Payload wireEnvelope `json:"payload"`
}

type wireEnvelope struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source Source          `json:"source"`
	Op     string          `json:"op"`
}

// Decode parses a captured-change message into an Envelope. Operation codes
// outside {c,u,d} decode to OpUnknown rather than defaulting. A JSON-level
// failure is returned as an error; contract-level checks live in Validate
// so the caller can distinguish the two.
func Decode(raw []byte) (*Envelope, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("cdc: unmarshal change message: %w", err)
	}

	env := &Envelope{
		Before: normalizeNull(msg.Payload.Before),
		After:  normalizeNull(msg.Payload.After),
		Source: msg.Payload.Source,
	}

	switch msg.Payload.Op {
	case "c":
		env.Operation = OpCreate
	case "u":
		env.Operation = OpUpdate
	case "d":
		env.Operation = OpDelete
	default:
		env.Operation = OpUnknown
	}

	return env, nil
}

// Validate applies the defensive contract checks: updates and deletes must
// carry the prior state, creates must carry the new state.
func (e *Envelope) Validate() error {
	switch e.Operation {
	case OpUpdate, OpDelete:
		if !e.HasBefore() {
			return ErrMissingBefore
		}
	case OpCreate:
		if !e.HasAfter() {
			return ErrMissingAfter
		}
	}
	return nil
}

// normalizeNull maps a JSON null snapshot to an absent one so HasBefore and
// HasAfter have a single representation to test.
func normalizeNull(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
