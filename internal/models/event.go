package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RoomEvent is a transactional-outbox row: appended in the same write as the
// state change it describes, published to the bus by the outbox relay.
type RoomEvent struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
