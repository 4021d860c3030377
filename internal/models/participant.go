package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents one seat in a room. At most one non-removed
// participant exists per (room, identity) pair; rejoining reuses the record.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	Identity    string    `json:"identity"` // "user:<uuid>" or "guest:<key>"
	IsGuest     bool      `json:"is_guest"`
	Nickname    string    `json:"nickname"`
	AvatarIndex int       `json:"avatar_index"`
	IsHost      bool      `json:"is_host"`
	Ready       bool      `json:"ready"`

	JoinedAt       time.Time  `json:"joined_at"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"` // soft-delete marker

	Score         int     `json:"score"`
	AnswerCount   int     `json:"answer_count"`
	AvgResponseMs float64 `json:"avg_response_ms"`
	Streak        int     `json:"streak"`
	BestStreak    int     `json:"best_streak"`
}

// Removed reports whether the participant has been soft-deleted.
func (p *Participant) Removed() bool {
	return p.RemovedAt != nil
}
