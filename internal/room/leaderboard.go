package room

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/quizroom/internal/models"
)

// LeaderboardEntry is one ranked row of the leaderboard read-model.
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	AvatarIndex   int       `json:"avatar_index"`
	Score         int       `json:"score"`
	AnswerCount   int       `json:"answer_count"`
	AvgResponseMs float64   `json:"avg_response_ms"`
	Connected     bool      `json:"connected"`
}

// Rank produces a strict total order over the non-removed participants and
// assigns ranks 1..N. Equal scores never share a rank: ties break on average
// response time (ascending, zero answers counting as worst), then answer
// count (descending), then join time (ascending). Computed fresh on every
// read, never stored.
func Rank(participants []models.Participant, now time.Time) []LeaderboardEntry {
	ranked := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if !p.Removed() {
			ranked = append(ranked, p)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := effectiveAvg(a), effectiveAvg(b)
		if at != bt {
			return at < bt
		}
		if a.AnswerCount != b.AnswerCount {
			return a.AnswerCount > b.AnswerCount
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})

	entries := make([]LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			AvatarIndex:   p.AvatarIndex,
			Score:         p.Score,
			AnswerCount:   p.AnswerCount,
			AvgResponseMs: p.AvgResponseMs,
			Connected:     Connected(p.LastSeenAt, p.DisconnectedAt, now),
		}
	}
	return entries
}

// effectiveAvg treats a participant with no answers as having the worst
// possible average response time.
func effectiveAvg(p models.Participant) float64 {
	if p.AnswerCount == 0 {
		return math.MaxFloat64
	}
	return p.AvgResponseMs
}
