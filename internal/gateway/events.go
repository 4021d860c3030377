package gateway

import (
	"encoding/json"
	"time"
)

// Frame is the wire format pushed to websocket clients, one per room event.
// Payload carries the event-specific body produced by the engine; EventID
// lets clients dedupe across reconnects.
type Frame struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
