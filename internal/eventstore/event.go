// Package eventstore implements an append-only, memory-bounded event log
// grouped into per-stream sequences.
package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampFormat is the wire format for event timestamps: ISO-8601 UTC
// with fractional seconds.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// ErrInvalidEvent marks a validation failure on an event's fields.
// Validation failures are never retried.
var ErrInvalidEvent = errors.New("invalid event")

// Event is an immutable record appended to a stream. StreamID may be
// empty, which denotes the unscoped global stream.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"event_type"`
	StreamID  string         `json:"stream_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Validate checks the stable field contract.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event_type must not be empty: %w", ErrInvalidEvent)
	}
	return nil
}

type eventJSON struct {
	ID        string         `json:"id"`
	Type      string         `json:"event_type"`
	StreamID  string         `json:"stream_id"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// MarshalJSON renders the timestamp in the stable wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Type:      e.Type,
		StreamID:  e.StreamID,
		Timestamp: e.Timestamp.UTC().Format(TimestampFormat),
		Payload:   e.Payload,
	})
}

// UnmarshalJSON parses the stable wire format.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampFormat, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parse event timestamp: %w", err)
	}
	*e = Event{
		ID:        raw.ID,
		Type:      raw.Type,
		StreamID:  raw.StreamID,
		Timestamp: ts,
		Payload:   raw.Payload,
	}
	return nil
}
