package messaging

import (
	"testing"
	"time"
)

func TestMessage_Fields(t *testing.T) {
	// Test that Message struct can be created with all fields
	now := time.Now()
	msg := Message{
		Subject:   "catalog.events.product",
		Data:      []byte("test data"),
		Metadata:  map[string]string{"key": "value"},
		Timestamp: now,
	}

	if msg.Subject != "catalog.events.product" {
		t.Errorf("expected Subject 'catalog.events.product', got %q", msg.Subject)
	}
	if string(msg.Data) != "test data" {
		t.Errorf("expected Data 'test data', got %q", string(msg.Data))
	}
	if msg.Metadata["key"] != "value" {
		t.Errorf("expected Metadata key 'value', got %q", msg.Metadata["key"])
	}
	if !msg.Timestamp.Equal(now) {
		t.Errorf("expected Timestamp %v, got %v", now, msg.Timestamp)
	}
}

func TestMessage_ZeroValue(t *testing.T) {
	// Test that zero value Message is valid
	var msg Message

	if msg.Subject != "" {
		t.Errorf("expected empty Subject, got %q", msg.Subject)
	}
	if msg.Data != nil {
		t.Errorf("expected nil Data, got %v", msg.Data)
	}
	if msg.Metadata != nil {
		t.Errorf("expected nil Metadata, got %v", msg.Metadata)
	}
	if !msg.Timestamp.IsZero() {
		t.Errorf("expected zero Timestamp, got %v", msg.Timestamp)
	}
}
