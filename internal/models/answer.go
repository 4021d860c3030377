package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one participant's response to one round. At most one answer
// exists per (participant, round); retries return the stored record.
type Answer struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	RoomID        uuid.UUID `json:"room_id"`
	RoundIndex    int       `json:"round_index"`
	ChoiceIndex   int       `json:"choice_index"`
	Correct       bool      `json:"correct"`
	ScoreDelta    int       `json:"score_delta"`
	ResponseMs    int64     `json:"response_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
