// Package room implements the multiplayer quiz-room engine: the phase state
// machine, answer scoring, presence and the leaderboard read-model.
//
// No background process drives phase transitions. Every operation evaluates
// pending transitions against the injected clock before acting, so the engine
// is idle between calls and safe to run behind any request/response transport.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizroom/internal/content"
	"github.com/mcdev12/quizroom/internal/events"
	"github.com/mcdev12/quizroom/internal/identity"
	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/scoring"
)

// Repository defines what the engine needs from the durable store.
//
// UpdateRoom must treat room.Version as an optimistic-concurrency check:
// reject the write with ErrConflict when the stored version differs, and
// increment room.Version in place on success. CreateAnswer must reject a
// second answer for the same (participant, round) with ErrDuplicateAnswer.
// InTx runs fn atomically; a returned error must leave every entity as it
// was before the call.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, room *models.Room) error

	CreateParticipant(ctx context.Context, p *models.Participant) error
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)

	CreateRound(ctx context.Context, round *models.Round) error
	GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error)

	CreateAnswer(ctx context.Context, a *models.Answer) error
	GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error)
	ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error)

	AppendEvent(ctx context.Context, ev *models.RoomEvent) error
}

// App is the room engine. All operations are short transactions against the
// repository; the clock is injected so tests can drive phase deadlines.
type App struct {
	repo    Repository
	content content.Provider
	clock   clockwork.Clock
}

// NewApp creates a new room App.
func NewApp(repo Repository, provider content.Provider, clock clockwork.Clock) *App {
	return &App{
		repo:    repo,
		content: provider,
		clock:   clock,
	}
}

// CreateRoom creates a new room in LOBBY with a fresh join code.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if req.HostIdentity == "" {
		return nil, fmt.Errorf("%w: host identity is required", ErrInvalidArgument)
	}
	if req.DeckID == "" {
		return nil, fmt.Errorf("%w: deck id is required", ErrInvalidArgument)
	}

	rules := applyRuleDefaults(req.Rules)

	size, err := a.content.DeckSize(ctx, req.DeckID)
	if err != nil {
		return nil, fmt.Errorf("%w: deck %s", ErrNotFound, req.DeckID)
	}
	if size < rules.TotalRounds {
		return nil, fmt.Errorf("%w: deck %s has %d questions, room wants %d rounds",
			ErrInvalidArgument, req.DeckID, size, rules.TotalRounds)
	}

	now := a.clock.Now()
	newRoom := &models.Room{
		ID:           uuid.New(),
		HostIdentity: req.HostIdentity,
		HostUserID:   req.HostUserID,
		Status:       models.RoomStatusLobby,
		DeckID:       req.DeckID,
		Rules:        rules,
		CurrentRound: 0,
		Version:      1,
		ExpiresAt:    now.Add(DefaultRoomTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = a.repo.InTx(ctx, func(r Repository) error {
		// Codes collide rarely; retry a few times rather than reserving.
		for attempt := 0; attempt < 5; attempt++ {
			code, err := newJoinCode()
			if err != nil {
				return err
			}
			if _, err := r.GetRoomByCode(ctx, code); errors.Is(err, ErrNotFound) {
				newRoom.Code = code
				break
			} else if err != nil {
				return err
			}
		}
		if newRoom.Code == "" {
			return fmt.Errorf("failed to allocate a unique join code")
		}

		if err := r.CreateRoom(ctx, newRoom); err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}

		return a.appendEvent(ctx, r, newRoom.ID, events.TypeRoomCreated, events.RoomCreatedPayload{
			RoomID:    newRoom.ID.String(),
			Code:      newRoom.Code,
			DeckID:    newRoom.DeckID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", newRoom.ID.String()).
		Str("code", newRoom.Code).
		Str("deck_id", newRoom.DeckID).
		Int("total_rounds", rules.TotalRounds).
		Msg("room created")

	return newRoom, nil
}

// Join takes a seat in the room identified by code. Joining is idempotent
// per identity: an existing non-removed participant is refreshed and
// returned; a removed participant may only return while the room is still
// in LOBBY.
func (a *App) Join(ctx context.Context, req JoinRequest) (*models.Participant, error) {
	if req.Identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidArgument)
	}

	var joined *models.Participant
	err := a.repo.InTx(ctx, func(r Repository) error {
		rm, err := r.GetRoomByCode(ctx, NormalizeCode(req.Code))
		if err != nil {
			return fmt.Errorf("room %q: %w", req.Code, err)
		}

		now := a.clock.Now()
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}
		if rm.Status == models.RoomStatusExpired {
			return fmt.Errorf("cannot join: %w", ErrExpired)
		}

		existing, err := r.GetParticipantByIdentity(ctx, rm.ID, req.Identity)
		switch {
		case err == nil && !existing.Removed():
			// Idempotent rejoin: refresh presence, keep the same seat.
			existing.LastSeenAt = &now
			existing.DisconnectedAt = nil
			if req.Nickname != "" {
				existing.Nickname = req.Nickname
			}
			if err := r.UpdateParticipant(ctx, existing); err != nil {
				return fmt.Errorf("failed to refresh participant: %w", err)
			}
			joined = existing
			return nil

		case err == nil && existing.Removed():
			if rm.Status != models.RoomStatusLobby {
				return fmt.Errorf("match in progress: %w", ErrForbidden)
			}
			if full, err := a.roomFull(ctx, r, rm.ID); err != nil {
				return err
			} else if full {
				return fmt.Errorf("room %s: %w", rm.Code, ErrRoomFull)
			}
			existing.RemovedAt = nil
			existing.Ready = false
			existing.LastSeenAt = &now
			existing.DisconnectedAt = nil
			if req.Nickname != "" {
				existing.Nickname = req.Nickname
			}
			if err := r.UpdateParticipant(ctx, existing); err != nil {
				return fmt.Errorf("failed to revive participant: %w", err)
			}
			// Seat changes write the room with a version bump so concurrent
			// joins serialize on the capacity check instead of both counting
			// the same seats.
			rm.UpdatedAt = now
			if err := r.UpdateRoom(ctx, rm); err != nil {
				return err
			}
			joined = existing
			return nil

		case !errors.Is(err, ErrNotFound):
			return err
		}

		if full, err := a.roomFull(ctx, r, rm.ID); err != nil {
			return err
		} else if full {
			return fmt.Errorf("room %s: %w", rm.Code, ErrRoomFull)
		}

		p := &models.Participant{
			ID:         uuid.New(),
			RoomID:     rm.ID,
			Identity:   req.Identity,
			IsGuest:    strings.HasPrefix(req.Identity, GuestIdentityPrefix),
			IsHost:     req.Identity == rm.HostIdentity,
			JoinedAt:   now,
			LastSeenAt: &now,
		}
		if p.IsGuest {
			guestKey := strings.TrimPrefix(req.Identity, GuestIdentityPrefix)
			p.Nickname = identity.DeriveNickname(guestKey)
			p.AvatarIndex = identity.DeriveAvatarIndex(guestKey)
		}
		if req.Nickname != "" {
			p.Nickname = req.Nickname
		}
		if p.Nickname == "" {
			return fmt.Errorf("%w: nickname is required for members", ErrInvalidArgument)
		}

		if err := r.CreateParticipant(ctx, p); err != nil {
			return fmt.Errorf("failed to create participant: %w", err)
		}
		rm.UpdatedAt = now
		if err := r.UpdateRoom(ctx, rm); err != nil {
			return err
		}
		joined = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", joined.RoomID.String()).
		Str("participant_id", joined.ID.String()).
		Bool("guest", joined.IsGuest).
		Bool("host", joined.IsHost).
		Msg("participant joined")

	return joined, nil
}

// SubmitAnswer records one participant's answer for the current round.
// Resubmitting the same (participant, round) returns the stored result
// unchanged and never rescores.
func (a *App) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*AnswerResult, error) {
	var result *AnswerResult
	err := a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, req.ParticipantID)
		if err != nil || p.Removed() {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}

		rm, err := r.GetRoom(ctx, p.RoomID)
		if err != nil {
			return err
		}

		now := a.clock.Now()
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}

		// A retry must get the stored answer back even when the round has
		// meanwhile closed (the first submit may itself have triggered the
		// early reveal). Checked before any phase gate.
		if existing, err := r.GetAnswer(ctx, p.ID, req.RoundIndex); err == nil {
			result = &AnswerResult{
				Answer:     *existing,
				Duplicate:  true,
				Score:      p.Score,
				Streak:     p.Streak,
				BestStreak: p.BestStreak,
			}
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if rm.Status == models.RoomStatusExpired {
			return fmt.Errorf("cannot submit: %w", ErrExpired)
		}
		if rm.Status != models.RoomStatusQuestion || req.RoundIndex != rm.CurrentRound {
			return fmt.Errorf("round %d not open for answers: %w", req.RoundIndex, ErrInvalidPhase)
		}

		round, err := r.GetRound(ctx, rm.ID, rm.CurrentRound)
		if err != nil {
			return err
		}
		if req.ChoiceIndex < 0 || req.ChoiceIndex >= len(round.Choices) {
			return fmt.Errorf("%w: choice index %d out of range", ErrInvalidArgument, req.ChoiceIndex)
		}

		questionMs := rm.Rules.QuestionDuration.Milliseconds()
		elapsed := answerElapsedMs(req.ClientElapsedMs, questionMs, round.StartedAt, now)
		correct := req.ChoiceIndex == round.CorrectIndex

		// Scoring uses time relative to the full question duration, not the
		// phase deadline, so a host pause cannot inflate the time bonus.
		var delta int
		if correct {
			p.Streak++
			if p.Streak > p.BestStreak {
				p.BestStreak = p.Streak
			}
			remaining := int(questionMs - elapsed)
			delta = scoring.Score(scoring.DefaultBasePoints, remaining, p.Streak)
			p.Score += delta
		} else {
			p.Streak = 0
			delta = scoring.Score(scoring.DefaultBasePoints, 0, 0)
		}

		ans := &models.Answer{
			ParticipantID: p.ID,
			RoomID:        rm.ID,
			RoundIndex:    req.RoundIndex,
			ChoiceIndex:   req.ChoiceIndex,
			Correct:       correct,
			ScoreDelta:    delta,
			ResponseMs:    elapsed,
			CreatedAt:     now,
		}
		if err := r.CreateAnswer(ctx, ans); err != nil {
			if errors.Is(err, ErrDuplicateAnswer) {
				// Lost a race against a concurrent retry; surface the winner.
				stored, gerr := r.GetAnswer(ctx, p.ID, req.RoundIndex)
				if gerr != nil {
					return gerr
				}
				result = &AnswerResult{Answer: *stored, Duplicate: true, Score: p.Score, Streak: p.Streak, BestStreak: p.BestStreak}
				return nil
			}
			return fmt.Errorf("failed to store answer: %w", err)
		}

		p.AnswerCount++
		p.AvgResponseMs += (float64(elapsed) - p.AvgResponseMs) / float64(p.AnswerCount)
		p.LastSeenAt = &now
		p.DisconnectedAt = nil
		if err := r.UpdateParticipant(ctx, p); err != nil {
			return fmt.Errorf("failed to update participant stats: %w", err)
		}

		result = &AnswerResult{
			Answer:     *ans,
			Score:      p.Score,
			Streak:     p.Streak,
			BestStreak: p.BestStreak,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadState evaluates pending transitions, refreshes the caller's heartbeat
// and returns the full room read-model. The reveal payload and leaderboard
// are included only once the current round has closed.
func (a *App) ReadState(ctx context.Context, participantID uuid.UUID) (*StateSnapshot, error) {
	var snap *StateSnapshot
	err := a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, participantID)
		if err != nil || p.Removed() {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}

		rm, err := r.GetRoom(ctx, p.RoomID)
		if err != nil {
			return err
		}

		now := a.clock.Now()
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}

		// Reading is the heartbeat. Expired rooms are read-only.
		if rm.Status != models.RoomStatusExpired {
			p.LastSeenAt = &now
			p.DisconnectedAt = nil
			if err := r.UpdateParticipant(ctx, p); err != nil {
				return fmt.Errorf("failed to refresh heartbeat: %w", err)
			}
		}

		all, err := r.ListParticipants(ctx, rm.ID)
		if err != nil {
			return err
		}

		snap = &StateSnapshot{
			Room: summarize(rm),
			You:  viewParticipant(*p, now),
		}
		for _, other := range all {
			if !other.Removed() {
				snap.Participants = append(snap.Participants, viewParticipant(other, now))
			}
		}

		switch rm.Status {
		case models.RoomStatusQuestion:
			round, err := r.GetRound(ctx, rm.ID, rm.CurrentRound)
			if err != nil {
				return err
			}
			snap.Question = &QuestionView{Index: round.Index, Prompt: round.Prompt, Choices: round.Choices}

		case models.RoomStatusReveal, models.RoomStatusLeaderboard, models.RoomStatusResults:
			reveal, err := a.buildReveal(ctx, r, rm)
			if err != nil {
				return err
			}
			snap.Reveal = reveal
			snap.Leaderboard = Rank(all, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ApplyHostAction applies a host control action: start, pause, resume or
// skip. Only the host participant may call it.
func (a *App) ApplyHostAction(ctx context.Context, participantID uuid.UUID, action models.HostAction) (*models.Room, error) {
	var updated *models.Room
	err := a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, participantID)
		if err != nil || p.Removed() {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}
		if !p.IsHost {
			return fmt.Errorf("host action requires the host seat: %w", ErrForbidden)
		}

		rm, err := r.GetRoom(ctx, p.RoomID)
		if err != nil {
			return err
		}

		now := a.clock.Now()
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}
		if rm.Status == models.RoomStatusExpired {
			return fmt.Errorf("cannot control room: %w", ErrExpired)
		}

		switch action {
		case models.HostActionStart:
			if rm.Status != models.RoomStatusLobby {
				return fmt.Errorf("start requires LOBBY: %w", ErrInvalidPhase)
			}
			if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoomStarted, events.RoomStartedPayload{
				RoomID:      rm.ID.String(),
				StartedAt:   now,
				TotalRounds: rm.Rules.TotalRounds,
			}); err != nil {
				return err
			}
			rm.CurrentRound = 0
			rm.Status = models.RoomStatusQuestion
			if err := a.openRound(ctx, r, rm, now); err != nil {
				return err
			}

		case models.HostActionPause:
			if rm.Status != models.RoomStatusQuestion {
				return fmt.Errorf("pause requires QUESTION: %w", ErrInvalidPhase)
			}
			if rm.Paused() {
				updated = rm
				return nil // idempotent
			}
			remaining := rm.PhaseEndsAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			rm.PausedRemaining = &remaining
			if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoomPaused, events.RoomPausedPayload{
				RoomID:      rm.ID.String(),
				PausedAt:    now,
				RemainingMs: remaining.Milliseconds(),
			}); err != nil {
				return err
			}

		case models.HostActionResume:
			if !rm.Paused() {
				return fmt.Errorf("resume requires a paused room: %w", ErrInvalidPhase)
			}
			ends := now.Add(*rm.PausedRemaining)
			rm.PhaseEndsAt = &ends
			rm.PausedRemaining = nil
			if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoomResumed, events.RoomResumedPayload{
				RoomID:    rm.ID.String(),
				ResumedAt: now,
			}); err != nil {
				return err
			}

		case models.HostActionSkip:
			switch rm.Status {
			case models.RoomStatusQuestion, models.RoomStatusReveal, models.RoomStatusLeaderboard:
				skip := models.HostActionSkip
				rm.PendingAction = &skip
				rm.PausedRemaining = nil
			default:
				return fmt.Errorf("nothing to skip in %s: %w", rm.Status, ErrInvalidPhase)
			}

		default:
			return fmt.Errorf("%w: unknown host action %q", ErrInvalidArgument, action)
		}

		// A recorded skip is consumed as a forced deadline.
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}

		rm.UpdatedAt = now
		if err := r.UpdateRoom(ctx, rm); err != nil {
			return err
		}
		updated = rm
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", updated.ID.String()).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Msg("host action applied")

	return updated, nil
}

// Leave soft-removes a participant. The seat can be reclaimed only while
// the room is still in LOBBY.
func (a *App) Leave(ctx context.Context, participantID uuid.UUID) error {
	return a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, participantID)
		if err != nil {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}
		if p.Removed() {
			return nil // idempotent
		}

		rm, err := r.GetRoom(ctx, p.RoomID)
		if err != nil {
			return err
		}
		now := a.clock.Now()
		if err := a.advance(ctx, r, rm, now); err != nil {
			return err
		}

		p.RemovedAt = &now
		return r.UpdateParticipant(ctx, p)
	})
}

// SetReady toggles the lobby ready flag.
func (a *App) SetReady(ctx context.Context, participantID uuid.UUID, ready bool) error {
	return a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, participantID)
		if err != nil || p.Removed() {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}
		rm, err := r.GetRoom(ctx, p.RoomID)
		if err != nil {
			return err
		}
		if rm.Status != models.RoomStatusLobby {
			return fmt.Errorf("ready toggles only in LOBBY: %w", ErrInvalidPhase)
		}
		p.Ready = ready
		now := a.clock.Now()
		p.LastSeenAt = &now
		return r.UpdateParticipant(ctx, p)
	})
}

// MarkDisconnected records an explicit disconnect, e.g. a dropped websocket.
// Presence reports the participant disconnected until the next read.
func (a *App) MarkDisconnected(ctx context.Context, participantID uuid.UUID) error {
	return a.repo.InTx(ctx, func(r Repository) error {
		p, err := r.GetParticipant(ctx, participantID)
		if err != nil || p.Removed() {
			return fmt.Errorf("not a participant: %w", ErrNotFound)
		}
		now := a.clock.Now()
		p.DisconnectedAt = &now
		return r.UpdateParticipant(ctx, p)
	})
}

// advance applies every transition the clock has made due, then persists the
// room if anything changed. Applying the same transition twice is a no-op by
// construction: each branch re-checks the current status and the repository
// rejects stale versions with ErrConflict.
func (a *App) advance(ctx context.Context, r Repository, rm *models.Room, now time.Time) error {
	changed := false

	for {
		if rm.Status == models.RoomStatusExpired {
			break
		}
		if !now.Before(rm.ExpiresAt) {
			rm.Status = models.RoomStatusExpired
			rm.PhaseEndsAt = nil
			rm.PausedRemaining = nil
			rm.PendingAction = nil
			changed = true
			if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoomExpired, events.RoomExpiredPayload{
				RoomID:    rm.ID.String(),
				ExpiredAt: now,
			}); err != nil {
				return err
			}
			break
		}

		skip := rm.PendingAction != nil && *rm.PendingAction == models.HostActionSkip
		due := rm.PhaseEndsAt != nil && !now.Before(*rm.PhaseEndsAt)

		switch rm.Status {
		case models.RoomStatusQuestion:
			if rm.Paused() && !skip {
				// Clock frozen; nothing can become due.
			} else {
				fire := due || skip
				if !fire {
					all, err := a.everyoneAnswered(ctx, r, rm, now)
					if err != nil {
						return err
					}
					fire = all
				}
				if fire {
					rm.PendingAction = nil
					rm.PausedRemaining = nil
					rm.Status = models.RoomStatusReveal
					ends := now.Add(rm.Rules.RevealDuration)
					rm.PhaseEndsAt = &ends
					changed = true

					round, err := r.GetRound(ctx, rm.ID, rm.CurrentRound)
					if err != nil {
						return err
					}
					if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoundRevealed, events.RoundRevealedPayload{
						RoomID:       rm.ID.String(),
						RoundIndex:   rm.CurrentRound,
						CorrectIndex: round.CorrectIndex,
						RevealedAt:   now,
					}); err != nil {
						return err
					}
					continue
				}
			}

		case models.RoomStatusReveal:
			if due || skip {
				rm.PendingAction = nil
				rm.Status = models.RoomStatusLeaderboard
				ends := now.Add(rm.Rules.LeaderboardDuration)
				rm.PhaseEndsAt = &ends
				changed = true
				if err := a.appendEvent(ctx, r, rm.ID, events.TypeLeaderboardShown, events.LeaderboardShownPayload{
					RoomID:     rm.ID.String(),
					RoundIndex: rm.CurrentRound,
					ShownAt:    now,
				}); err != nil {
					return err
				}
				continue
			}

		case models.RoomStatusLeaderboard:
			if due || skip {
				rm.PendingAction = nil
				changed = true
				if rm.CurrentRound+1 < rm.Rules.TotalRounds {
					rm.CurrentRound++
					rm.Status = models.RoomStatusQuestion
					if err := a.openRound(ctx, r, rm, now); err != nil {
						return err
					}
				} else {
					rm.Status = models.RoomStatusResults
					rm.PhaseEndsAt = nil
					if err := a.appendEvent(ctx, r, rm.ID, events.TypeRoomCompleted, events.RoomCompletedPayload{
						RoomID:      rm.ID.String(),
						CompletedAt: now,
						TotalRounds: rm.Rules.TotalRounds,
					}); err != nil {
						return err
					}
				}
				continue
			}

		default:
			// LOBBY waits for the host; RESULTS is terminal.
		}
		break
	}

	if !changed {
		return nil
	}

	rm.UpdatedAt = now
	if err := r.UpdateRoom(ctx, rm); err != nil {
		return err
	}

	log.Debug().
		Str("room_id", rm.ID.String()).
		Str("status", string(rm.Status)).
		Int("round", rm.CurrentRound).
		Msg("room advanced")

	return nil
}

// openRound loads the question for rm.CurrentRound, stores the immutable
// round snapshot and arms the question deadline.
func (a *App) openRound(ctx context.Context, r Repository, rm *models.Room, now time.Time) error {
	q, err := a.content.Question(ctx, rm.DeckID, rm.CurrentRound)
	if err != nil {
		return fmt.Errorf("failed to load question %d of deck %s: %w", rm.CurrentRound, rm.DeckID, err)
	}

	round := &models.Round{
		RoomID:       rm.ID,
		Index:        rm.CurrentRound,
		Prompt:       q.Prompt,
		Choices:      q.Choices,
		CorrectIndex: q.CorrectIndex,
		StartedAt:    now,
	}
	if err := r.CreateRound(ctx, round); err != nil {
		return fmt.Errorf("failed to create round %d: %w", rm.CurrentRound, err)
	}

	ends := now.Add(rm.Rules.QuestionDuration)
	rm.PhaseEndsAt = &ends
	rm.PausedRemaining = nil

	return a.appendEvent(ctx, r, rm.ID, events.TypeRoundStarted, events.RoundStartedPayload{
		RoomID:     rm.ID.String(),
		RoundIndex: rm.CurrentRound,
		StartedAt:  now,
		EndsAt:     ends,
	})
}

// roomFull reports whether the room already seats MaxParticipants
// non-removed participants.
func (a *App) roomFull(ctx context.Context, r Repository, roomID uuid.UUID) (bool, error) {
	all, err := r.ListParticipants(ctx, roomID)
	if err != nil {
		return false, err
	}
	active := 0
	for _, p := range all {
		if !p.Removed() {
			active++
		}
	}
	return active >= MaxParticipants, nil
}

// everyoneAnswered reports whether every connected, non-removed participant
// has an answer for the current round. This is what lets a room reveal early
// instead of waiting out the clock.
func (a *App) everyoneAnswered(ctx context.Context, r Repository, rm *models.Room, now time.Time) (bool, error) {
	participants, err := r.ListParticipants(ctx, rm.ID)
	if err != nil {
		return false, err
	}
	answers, err := r.ListAnswers(ctx, rm.ID, rm.CurrentRound)
	if err != nil {
		return false, err
	}

	answered := make(map[uuid.UUID]bool, len(answers))
	for _, ans := range answers {
		answered[ans.ParticipantID] = true
	}

	connected := 0
	for _, p := range participants {
		if p.Removed() || !Connected(p.LastSeenAt, p.DisconnectedAt, now) {
			continue
		}
		connected++
		if !answered[p.ID] {
			return false, nil
		}
	}
	return connected > 0, nil
}

// buildReveal assembles the post-round payload: the correct choice and the
// per-choice answer distribution for the round that just closed.
func (a *App) buildReveal(ctx context.Context, r Repository, rm *models.Room) (*RevealPayload, error) {
	round, err := r.GetRound(ctx, rm.ID, rm.CurrentRound)
	if err != nil {
		return nil, err
	}
	answers, err := r.ListAnswers(ctx, rm.ID, rm.CurrentRound)
	if err != nil {
		return nil, err
	}

	dist := make([]int, len(round.Choices))
	for _, ans := range answers {
		if ans.ChoiceIndex >= 0 && ans.ChoiceIndex < len(dist) {
			dist[ans.ChoiceIndex]++
		}
	}

	return &RevealPayload{
		RoundIndex:   round.Index,
		Prompt:       round.Prompt,
		CorrectIndex: round.CorrectIndex,
		Distribution: dist,
	}, nil
}

func (a *App) appendEvent(ctx context.Context, r Repository, roomID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return r.AppendEvent(ctx, &models.RoomEvent{
		ID:        uuid.New(),
		RoomID:    roomID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: a.clock.Now(),
	})
}

// answerElapsedMs picks the latency used for scoring and stats. The client
// stopwatch is trusted within the question window; absent or absurd values
// fall back to wall time since the round opened, which can only undercount
// the bonus when the room was paused.
func answerElapsedMs(clientElapsedMs, questionMs int64, roundStartedAt, now time.Time) int64 {
	if clientElapsedMs > 0 && clientElapsedMs <= questionMs {
		return clientElapsedMs
	}
	elapsed := now.Sub(roundStartedAt).Milliseconds()
	return int64(math.Min(float64(questionMs), math.Max(0, float64(elapsed))))
}

func applyRuleDefaults(r models.RoomRules) models.RoomRules {
	if r.TotalRounds <= 0 {
		r.TotalRounds = DefaultTotalRounds
	}
	if r.QuestionDuration <= 0 {
		r.QuestionDuration = DefaultQuestionDuration
	}
	if r.RevealDuration <= 0 {
		r.RevealDuration = DefaultRevealDuration
	}
	if r.LeaderboardDuration <= 0 {
		r.LeaderboardDuration = DefaultLeaderboardDuration
	}
	return r
}

func summarize(rm *models.Room) RoomSummary {
	return RoomSummary{
		ID:           rm.ID,
		Code:         rm.Code,
		Status:       rm.Status,
		CurrentRound: rm.CurrentRound,
		TotalRounds:  rm.Rules.TotalRounds,
		PhaseEndsAt:  rm.PhaseEndsAt,
		Paused:       rm.Paused(),
		Version:      rm.Version,
		ExpiresAt:    rm.ExpiresAt,
	}
}

func viewParticipant(p models.Participant, now time.Time) ParticipantView {
	return ParticipantView{
		ID:            p.ID,
		Nickname:      p.Nickname,
		AvatarIndex:   p.AvatarIndex,
		IsHost:        p.IsHost,
		IsGuest:       p.IsGuest,
		Ready:         p.Ready,
		Score:         p.Score,
		AnswerCount:   p.AnswerCount,
		AvgResponseMs: p.AvgResponseMs,
		Streak:        p.Streak,
		BestStreak:    p.BestStreak,
		Connected:     Connected(p.LastSeenAt, p.DisconnectedAt, now),
		JoinedAt:      p.JoinedAt,
	}
}
