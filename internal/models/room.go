package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the phase of a quiz room.
type RoomStatus string

const (
	RoomStatusLobby       RoomStatus = "LOBBY"
	RoomStatusQuestion    RoomStatus = "QUESTION"
	RoomStatusReveal      RoomStatus = "REVEAL"
	RoomStatusLeaderboard RoomStatus = "LEADERBOARD"
	RoomStatusResults     RoomStatus = "RESULTS"
	RoomStatusExpired     RoomStatus = "EXPIRED"
)

// Terminal reports whether the status accepts no further transitions.
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusResults || s == RoomStatusExpired
}

// HostAction defines a host control action applied to a room.
type HostAction string

const (
	HostActionStart  HostAction = "START"
	HostActionPause  HostAction = "PAUSE"
	HostActionResume HostAction = "RESUME"
	HostActionSkip   HostAction = "SKIP"
)

// RoomRules holds the per-room rule set. Durations are fixed at creation.
type RoomRules struct {
	TotalRounds         int           `json:"total_rounds"`
	QuestionDuration    time.Duration `json:"question_duration"`
	RevealDuration      time.Duration `json:"reveal_duration"`
	LeaderboardDuration time.Duration `json:"leaderboard_duration"`
}

// Room represents one multiplayer quiz session.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"` // 6 uppercase alphanumeric chars, shareable
	HostIdentity string     `json:"host_identity"`
	HostUserID   *uuid.UUID `json:"host_user_id,omitempty"`
	Status       RoomStatus `json:"status"`
	DeckID       string     `json:"deck_id"`
	Rules        RoomRules  `json:"rules"`
	CurrentRound int        `json:"current_round"`
	PhaseEndsAt  *time.Time `json:"phase_ends_at,omitempty"`

	// PendingAction holds a host action recorded but not yet consumed by the
	// transition check (currently only SKIP survives past the recording write).
	PendingAction *HostAction `json:"pending_action,omitempty"`

	// PausedRemaining is the question time left when the host paused.
	// Non-nil means the phase clock is frozen.
	PausedRemaining *time.Duration `json:"paused_remaining,omitempty"`

	Version   int64     `json:"version"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Paused reports whether the question clock is currently frozen.
func (r *Room) Paused() bool {
	return r.PausedRemaining != nil
}
