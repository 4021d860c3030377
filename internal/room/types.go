package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/quizroom/internal/models"
)

// MaxParticipants is the cap on non-removed participants per room.
const MaxParticipants = 10

// GuestIdentityPrefix marks identities resolved from an opaque guest key.
const GuestIdentityPrefix = "guest:"

// Default rule set applied when a create request leaves fields zero.
const (
	DefaultTotalRounds         = 5
	DefaultQuestionDuration    = 20 * time.Second
	DefaultRevealDuration      = 5 * time.Second
	DefaultLeaderboardDuration = 5 * time.Second
	DefaultRoomTTL             = 2 * time.Hour
)

// CreateRoomRequest represents a request to create a new room.
type CreateRoomRequest struct {
	HostIdentity string           `json:"host_identity"`
	HostUserID   *uuid.UUID       `json:"host_user_id,omitempty"`
	DeckID       string           `json:"deck_id"`
	Rules        models.RoomRules `json:"rules"`
}

// JoinRequest represents a request to take (or re-take) a seat in a room.
// Identity must already be resolved by the transport: "user:<id>" for
// authenticated members, "guest:<key>" otherwise.
type JoinRequest struct {
	Code     string `json:"code"`
	Identity string `json:"identity"`
	Nickname string `json:"nickname,omitempty"`
}

// SubmitAnswerRequest represents one participant's answer to one round.
// ClientElapsedMs is the client-side stopwatch reading since the question
// appeared; it keeps host pauses from inflating scores.
type SubmitAnswerRequest struct {
	ParticipantID   uuid.UUID `json:"participant_id"`
	RoundIndex      int       `json:"round_index"`
	ChoiceIndex     int       `json:"choice_index"`
	ClientElapsedMs int64     `json:"client_elapsed_ms"`
}

// AnswerResult is the outcome of a submission. Duplicate marks a retried
// submission resolved from the stored answer with no score change.
type AnswerResult struct {
	Answer     models.Answer `json:"answer"`
	Duplicate  bool          `json:"duplicate"`
	Score      int           `json:"score"`
	Streak     int           `json:"streak"`
	BestStreak int           `json:"best_streak"`
}

// ParticipantView is the participant read-model with derived presence.
type ParticipantView struct {
	ID            uuid.UUID `json:"id"`
	Nickname      string    `json:"nickname"`
	AvatarIndex   int       `json:"avatar_index"`
	IsHost        bool      `json:"is_host"`
	IsGuest       bool      `json:"is_guest"`
	Ready         bool      `json:"ready"`
	Score         int       `json:"score"`
	AnswerCount   int       `json:"answer_count"`
	AvgResponseMs float64   `json:"avg_response_ms"`
	Streak        int       `json:"streak"`
	BestStreak    int       `json:"best_streak"`
	Connected     bool      `json:"connected"`
	JoinedAt      time.Time `json:"joined_at"`
}

// RoomSummary is the room read-model returned to clients.
type RoomSummary struct {
	ID           uuid.UUID         `json:"id"`
	Code         string            `json:"code"`
	Status       models.RoomStatus `json:"status"`
	CurrentRound int               `json:"current_round"`
	TotalRounds  int               `json:"total_rounds"`
	PhaseEndsAt  *time.Time        `json:"phase_ends_at,omitempty"`
	Paused       bool              `json:"paused"`
	Version      int64             `json:"version"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// QuestionView is the active question as clients may see it: the correct
// index is never included while the round is open.
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// RevealPayload is returned once a round closes: the correct choice plus the
// per-choice answer-count distribution.
type RevealPayload struct {
	RoundIndex   int    `json:"round_index"`
	Prompt       string `json:"prompt"`
	CorrectIndex int    `json:"correct_index"`
	Distribution []int  `json:"distribution"`
}

// StateSnapshot is the full read-model returned by ReadState.
type StateSnapshot struct {
	Room         RoomSummary        `json:"room"`
	You          ParticipantView    `json:"you"`
	Participants []ParticipantView  `json:"participants"`
	Question     *QuestionView      `json:"question,omitempty"`
	Reveal       *RevealPayload     `json:"reveal,omitempty"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard,omitempty"`
}
