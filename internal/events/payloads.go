// Package events holds the room event payload types shared between the
// engine, the outbox relay and the websocket gateway.
package events

import "time"

// Event types recorded in the outbox and published on the bus.
const (
	TypeRoomCreated      = "RoomCreated"
	TypeRoomStarted      = "RoomStarted"
	TypeRoundStarted     = "RoundStarted"
	TypeRoundRevealed    = "RoundRevealed"
	TypeLeaderboardShown = "LeaderboardShown"
	TypeRoomPaused       = "RoomPaused"
	TypeRoomResumed      = "RoomResumed"
	TypeRoomCompleted    = "RoomCompleted"
	TypeRoomExpired      = "RoomExpired"
)

// RoomCreatedPayload is the payload for a RoomCreated event.
type RoomCreatedPayload struct {
	RoomID    string    `json:"room_id"`
	Code      string    `json:"code"`
	DeckID    string    `json:"deck_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomStartedPayload is the payload for a RoomStarted event.
type RoomStartedPayload struct {
	RoomID      string    `json:"room_id"`
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
}

// RoundStartedPayload is the payload for a RoundStarted event.
type RoundStartedPayload struct {
	RoomID     string    `json:"room_id"`
	RoundIndex int       `json:"round_index"`
	StartedAt  time.Time `json:"started_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// RoundRevealedPayload is the payload for a RoundRevealed event.
type RoundRevealedPayload struct {
	RoomID       string    `json:"room_id"`
	RoundIndex   int       `json:"round_index"`
	CorrectIndex int       `json:"correct_index"`
	RevealedAt   time.Time `json:"revealed_at"`
}

// LeaderboardShownPayload is the payload for a LeaderboardShown event.
type LeaderboardShownPayload struct {
	RoomID     string    `json:"room_id"`
	RoundIndex int       `json:"round_index"`
	ShownAt    time.Time `json:"shown_at"`
}

// RoomPausedPayload is the payload for a RoomPaused event.
type RoomPausedPayload struct {
	RoomID      string    `json:"room_id"`
	PausedAt    time.Time `json:"paused_at"`
	RemainingMs int64     `json:"remaining_ms"`
}

// RoomResumedPayload is the payload for a RoomResumed event.
type RoomResumedPayload struct {
	RoomID    string    `json:"room_id"`
	ResumedAt time.Time `json:"resumed_at"`
}

// RoomCompletedPayload is the payload for a RoomCompleted event.
type RoomCompletedPayload struct {
	RoomID      string    `json:"room_id"`
	CompletedAt time.Time `json:"completed_at"`
	TotalRounds int       `json:"total_rounds"`
}

// RoomExpiredPayload is the payload for a RoomExpired event.
type RoomExpiredPayload struct {
	RoomID    string    `json:"room_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
