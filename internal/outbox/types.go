// Package outbox relays room events from the room_events table to the
// message bus. Events are written in the same transaction as the state
// change; the relay listens for Postgres notifications and falls back to
// polling, so delivery is at-least-once and consumers must dedupe by id.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one outbox row as seen by the relay and its publishers.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Publisher delivers one event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
