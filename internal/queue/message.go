package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher is the enqueue side of the broker, narrowed so callers
// that only hand events to the queue can take a fake in tests.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
}

// Envelope is the wire format between the ingest API and the worker.
type Envelope struct {
	MessageID string          `json:"message_id"`
	BatchID   string          `json:"batch_id,omitempty"`
	TenantID  string          `json:"tenant_id"`
	APIKeyID  string          `json:"api_key_id,omitempty"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	QueuedAt  time.Time       `json:"queued_at"`
}
