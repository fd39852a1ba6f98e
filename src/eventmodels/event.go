package eventmodels

import (
	"fmt"
	"time"
)

// Event is one normalized unit of ingested data. Values are treated as
// immutable once produced; use the With* helpers to derive a modified copy.
type Event struct {
	SourceID  string                 `json:"source_id"`
	Category  Category               `json:"category"`
	Key       string                 `json:"key,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewEvent(sourceID string, category Category, key string, ts time.Time, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return Event{
		SourceID:  sourceID,
		Category:  category,
		Key:       key,
		Timestamp: ts,
		Payload:   payload,
	}
}

func (e Event) WithMetadata(key string, value interface{}) Event {
	meta := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value

	e.Metadata = meta
	return e
}

func (e Event) WithPayloadField(key string, value interface{}) Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	e.Payload = payload
	return e
}

// Float returns a numeric payload field regardless of its concrete numeric type.
func (e Event) Float(field string) (float64, bool) {
	switch v := e.Payload[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (e Event) String() string {
	return fmt.Sprintf("Event{source=%s category=%s key=%s ts=%s}", e.SourceID, e.Category, e.Key, e.Timestamp.Format(time.RFC3339))
}
