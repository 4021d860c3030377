package models

import (
	"time"

	"github.com/google/uuid"
)

// Round is one question instance bound to a room and round index.
// Immutable once created.
type Round struct {
	RoomID       uuid.UUID `json:"room_id"`
	Index        int       `json:"index"`
	Prompt       string    `json:"prompt"`
	Choices      []string  `json:"choices"`
	CorrectIndex int       `json:"correct_index"`
	StartedAt    time.Time `json:"started_at"`
}
