package room_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizroom/internal/content"
	"github.com/mcdev12/quizroom/internal/events"
	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
	"github.com/mcdev12/quizroom/internal/room/memory"
)

const testDeckID = "go-basics"

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testDeck() content.Deck {
	return content.Deck{
		ID:    testDeckID,
		Title: "Go basics",
		Questions: []content.Question{
			{Prompt: "What does := do?", Choices: []string{"declare+assign", "compare", "swap"}, CorrectIndex: 0},
			{Prompt: "Zero value of a slice?", Choices: []string{"empty slice", "nil", "panic"}, CorrectIndex: 1},
			{Prompt: "Who runs deferred calls?", Choices: []string{"GC", "runtime on return", "init"}, CorrectIndex: 1},
		},
	}
}

func newTestEngine(t *testing.T) (*room.App, *memory.Store, *clockwork.FakeClock) {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(testStart)
	app := room.NewApp(store, content.NewStatic(testDeck()), clock)
	return app, store, clock
}

func mustCreateRoom(t *testing.T, app *room.App, rounds int) *models.Room {
	t.Helper()
	rm, err := app.CreateRoom(context.Background(), room.CreateRoomRequest{
		HostIdentity: "user:host",
		DeckID:       testDeckID,
		Rules: models.RoomRules{
			TotalRounds:         rounds,
			QuestionDuration:    20 * time.Second,
			RevealDuration:      5 * time.Second,
			LeaderboardDuration: 5 * time.Second,
		},
	})
	require.NoError(t, err)
	return rm
}

func mustJoin(t *testing.T, app *room.App, code, identity, nickname string) *models.Participant {
	t.Helper()
	p, err := app.Join(context.Background(), room.JoinRequest{Code: code, Identity: identity, Nickname: nickname})
	require.NoError(t, err)
	return p
}

func TestCreateRoom(t *testing.T) {
	app, store, _ := newTestEngine(t)

	rm := mustCreateRoom(t, app, 3)

	assert.Equal(t, models.RoomStatusLobby, rm.Status)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), rm.Code)
	assert.Equal(t, int64(1), rm.Version)
	assert.Equal(t, testStart.Add(room.DefaultRoomTTL), rm.ExpiresAt)

	evs := store.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeRoomCreated, evs[0].EventType)
}

func TestCreateRoomAppliesRuleDefaults(t *testing.T) {
	// A deck big enough for the default round count.
	deck := testDeck()
	for len(deck.Questions) < room.DefaultTotalRounds {
		deck.Questions = append(deck.Questions, deck.Questions[0])
	}
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(testStart)
	app := room.NewApp(store, content.NewStatic(deck), clock)

	rm, err := app.CreateRoom(context.Background(), room.CreateRoomRequest{
		HostIdentity: "user:host",
		DeckID:       testDeckID,
	})
	require.NoError(t, err)

	assert.Equal(t, room.DefaultTotalRounds, rm.Rules.TotalRounds)
	assert.Equal(t, room.DefaultQuestionDuration, rm.Rules.QuestionDuration)
	assert.Equal(t, room.DefaultRevealDuration, rm.Rules.RevealDuration)
	assert.Equal(t, room.DefaultLeaderboardDuration, rm.Rules.LeaderboardDuration)
}

func TestCreateRoomRejectsShortDeck(t *testing.T) {
	app, _, _ := newTestEngine(t)

	_, err := app.CreateRoom(context.Background(), room.CreateRoomRequest{
		HostIdentity: "user:host",
		DeckID:       testDeckID,
		Rules:        models.RoomRules{TotalRounds: 50},
	})
	assert.ErrorIs(t, err, room.ErrInvalidArgument)
}

func TestJoinHostAndGuest(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)

	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	assert.True(t, host.IsHost)
	assert.False(t, host.IsGuest)
	assert.Equal(t, "Alex", host.Nickname)

	guest := mustJoin(t, app, rm.Code, "guest:abc123", "")
	assert.False(t, guest.IsHost)
	assert.True(t, guest.IsGuest)
	assert.NotEmpty(t, guest.Nickname)
	assert.GreaterOrEqual(t, guest.AvatarIndex, 0)
	assert.Less(t, guest.AvatarIndex, 20)
}

func TestJoinIsIdempotentPerIdentity(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)

	first := mustJoin(t, app, rm.Code, "guest:abc123", "")
	second := mustJoin(t, app, rm.Code, "guest:abc123", "")

	assert.Equal(t, first.ID, second.ID)

	snap, err := app.ReadState(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)
}

func TestJoinLowercaseCode(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)

	p, err := app.Join(context.Background(), room.JoinRequest{
		Code: " " + toLower(rm.Code) + " ", Identity: "guest:k1",
	})
	require.NoError(t, err)
	assert.Equal(t, rm.ID, p.RoomID)
}

func TestJoinUnknownCode(t *testing.T) {
	app, _, _ := newTestEngine(t)
	_ = mustCreateRoom(t, app, 3)

	_, err := app.Join(context.Background(), room.JoinRequest{Code: "ZZZZZZ", Identity: "guest:k1"})
	assert.ErrorIs(t, err, room.ErrNotFound)
}

func TestJoinFullRoom(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)

	for i := 0; i < room.MaxParticipants; i++ {
		mustJoin(t, app, rm.Code, fmt.Sprintf("guest:k%d", i), "")
	}

	_, err := app.Join(context.Background(), room.JoinRequest{Code: rm.Code, Identity: "guest:overflow"})
	assert.ErrorIs(t, err, room.ErrRoomFull)
}

func TestLeaveFreesSeatInLobby(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)

	var last *models.Participant
	for i := 0; i < room.MaxParticipants; i++ {
		last = mustJoin(t, app, rm.Code, fmt.Sprintf("guest:k%d", i), "")
	}
	require.NoError(t, app.Leave(context.Background(), last.ID))

	p := mustJoin(t, app, rm.Code, "guest:fresh", "")
	assert.NotEqual(t, last.ID, p.ID)

	// The leaver can reclaim a seat while the room is still in LOBBY,
	// but only if one is free.
	_, err := app.Join(context.Background(), room.JoinRequest{Code: rm.Code, Identity: last.Identity})
	assert.ErrorIs(t, err, room.ErrRoomFull)
}

func TestRejoinAfterLeaveMidGameForbidden(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	require.NoError(t, app.Leave(context.Background(), guest.ID))

	_, err = app.Join(context.Background(), room.JoinRequest{Code: rm.Code, Identity: guest.Identity})
	assert.ErrorIs(t, err, room.ErrForbidden)
}

func TestHostActionRequiresHost(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	_ = mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), guest.ID, models.HostActionStart)
	assert.ErrorIs(t, err, room.ErrForbidden)
}

func TestStartOnlyFromLobby(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	started, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, started.Status)
	assert.Equal(t, 0, started.CurrentRound)
	require.NotNil(t, started.PhaseEndsAt)
	assert.Equal(t, testStart.Add(20*time.Second), *started.PhaseEndsAt)

	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	assert.ErrorIs(t, err, room.ErrInvalidPhase)
}

func TestPhaseFlowThroughAllRounds(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 2)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, snap.Room.Status)
	require.NotNil(t, snap.Question)
	assert.Equal(t, "What does := do?", snap.Question.Prompt)
	assert.Nil(t, snap.Reveal)

	// Question deadline passes; the next read observes REVEAL.
	clock.Advance(21 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)
	require.NotNil(t, snap.Reveal)
	assert.Equal(t, 0, snap.Reveal.CorrectIndex)
	assert.Nil(t, snap.Question)

	clock.Advance(6 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusLeaderboard, snap.Room.Status)
	assert.NotEmpty(t, snap.Leaderboard)

	// Leaderboard deadline passes; round 1 opens.
	clock.Advance(6 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, snap.Room.Status)
	assert.Equal(t, 1, snap.Room.CurrentRound)
	require.NotNil(t, snap.Question)
	assert.Equal(t, "Zero value of a slice?", snap.Question.Prompt)

	// Last round runs out: QUESTION -> REVEAL -> LEADERBOARD -> RESULTS.
	clock.Advance(21 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)

	clock.Advance(6 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusLeaderboard, snap.Room.Status)

	clock.Advance(6 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusResults, snap.Room.Status)
	assert.NotEmpty(t, snap.Leaderboard)
	assert.Nil(t, snap.Room.PhaseEndsAt)
}

func TestVersionIncrementsOnTransitions(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 2)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	started, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)
	assert.Greater(t, started.Version, rm.Version)

	clock.Advance(21 * time.Second)
	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Greater(t, snap.Room.Version, started.Version)
}

func TestJoinBumpsRoomVersion(t *testing.T) {
	app, store, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	ctx := context.Background()

	// Taking a seat writes the room through the version CAS, so two
	// concurrent joins at the capacity edge cannot both pass the count.
	mustJoin(t, app, rm.Code, "user:host", "Alex")
	afterHost, err := store.GetRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Greater(t, afterHost.Version, rm.Version)

	guest := mustJoin(t, app, rm.Code, "guest:abc", "")
	afterGuest, err := store.GetRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Greater(t, afterGuest.Version, afterHost.Version)

	// An idempotent rejoin takes no seat and leaves the version alone.
	mustJoin(t, app, rm.Code, "guest:abc", "")
	afterRejoin, err := store.GetRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, afterGuest.Version, afterRejoin.Version)

	// Reclaiming a freed seat is a seat change again.
	require.NoError(t, app.Leave(ctx, guest.ID))
	mustJoin(t, app, rm.Code, "guest:abc", "")
	afterRevive, err := store.GetRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Greater(t, afterRevive.Version, afterRejoin.Version)
}

func TestSubmitAnswerScoresAndStreaks(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	// 4s in: 16s remain, bonus 40, streak 1, multiplier 1.0.
	res, err := app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID:   host.ID,
		RoundIndex:      0,
		ChoiceIndex:     0,
		ClientElapsedMs: 4000,
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Answer.Correct)
	assert.Equal(t, 140, res.Answer.ScoreDelta)
	assert.Equal(t, 140, res.Score)
	assert.Equal(t, 1, res.Streak)
}

func TestSubmitAnswerIdempotent(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	req := room.SubmitAnswerRequest{ParticipantID: host.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 4000}
	first, err := app.SubmitAnswer(context.Background(), req)
	require.NoError(t, err)

	// A retry with a different choice returns the stored answer untouched.
	req.ChoiceIndex = 2
	req.ClientElapsedMs = 100
	second, err := app.SubmitAnswer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Answer.ChoiceIndex, second.Answer.ChoiceIndex)
	assert.Equal(t, first.Answer.ScoreDelta, second.Answer.ScoreDelta)
	assert.Equal(t, first.Score, second.Score)
}

func TestSubmitRetryAfterRoundClosed(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	req := room.SubmitAnswerRequest{ParticipantID: guest.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 3000}
	first, err := app.SubmitAnswer(context.Background(), req)
	require.NoError(t, err)

	// The deadline passes before the retry arrives, so the retry itself
	// closes the round. It must still get the stored answer back.
	clock.Advance(21 * time.Second)
	second, err := app.SubmitAnswer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Answer.ScoreDelta, second.Answer.ScoreDelta)
	assert.Equal(t, first.Score, second.Score)

	snap, err := app.ReadState(context.Background(), guest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)

	// A fresh submission for the closed round is still rejected.
	_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: host.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 3000,
	})
	assert.ErrorIs(t, err, room.ErrInvalidPhase)
}

func TestSubmitWrongAnswerResetsStreak(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: guest.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 1000,
	})
	require.NoError(t, err)

	// Round 1 after the phases run out.
	clock.Advance(21 * time.Second)
	_, err = app.ReadState(context.Background(), guest.ID)
	require.NoError(t, err)
	clock.Advance(6 * time.Second)
	_, err = app.ReadState(context.Background(), guest.ID)
	require.NoError(t, err)
	clock.Advance(6 * time.Second)
	_, err = app.ReadState(context.Background(), guest.ID)
	require.NoError(t, err)

	res, err := app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: guest.ID, RoundIndex: 1, ChoiceIndex: 0, ClientElapsedMs: 1000,
	})
	require.NoError(t, err)
	assert.False(t, res.Answer.Correct)
	assert.Equal(t, 0, res.Answer.ScoreDelta)
	assert.Equal(t, 0, res.Streak)
	assert.Equal(t, 1, res.BestStreak)
}

func TestSubmitAfterDeadlineRejected(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	clock.Advance(25 * time.Second)
	_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: host.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 4000,
	})
	assert.ErrorIs(t, err, room.ErrInvalidPhase)
}

func TestSubmitForWrongRoundRejected(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: host.ID, RoundIndex: 2, ChoiceIndex: 0,
	})
	assert.ErrorIs(t, err, room.ErrInvalidPhase)
}

func TestEveryoneAnsweredRevealsEarly(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	for _, id := range []uuid.UUID{host.ID, guest.ID} {
		_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
			ParticipantID: id, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 3000,
		})
		require.NoError(t, err)
	}

	// Well before the 20s deadline the next read observes REVEAL.
	clock.Advance(1 * time.Second)
	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)
	assert.Equal(t, []int{2, 0, 0}, snap.Reveal.Distribution)
}

func TestPauseFreezesDeadline(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	paused, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionPause)
	require.NoError(t, err)
	assert.True(t, paused.Paused())

	// Far past the original deadline the room is still on the question.
	clock.Advance(2 * time.Minute)
	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, snap.Room.Status)
	assert.True(t, snap.Room.Paused)

	resumed, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionResume)
	require.NoError(t, err)
	assert.False(t, resumed.Paused())
	require.NotNil(t, resumed.PhaseEndsAt)
	assert.Equal(t, clock.Now().Add(15*time.Second), *resumed.PhaseEndsAt)

	clock.Advance(14 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, snap.Room.Status)

	clock.Advance(2 * time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)
}

func TestPauseIsIdempotentResumeRequiresPause(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionResume)
	assert.ErrorIs(t, err, room.ErrInvalidPhase)

	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionPause)
	require.NoError(t, err)
	again, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionPause)
	require.NoError(t, err)
	assert.True(t, again.Paused())
}

func TestSkipClosesCurrentPhase(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 2)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	rm2, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionSkip)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, rm2.Status)

	rm2, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionSkip)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusLeaderboard, rm2.Status)

	rm2, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionSkip)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusQuestion, rm2.Status)
	assert.Equal(t, 1, rm2.CurrentRound)
}

func TestSkipWhilePaused(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 2)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)
	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionPause)
	require.NoError(t, err)

	rm2, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionSkip)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, rm2.Status)
	assert.False(t, rm2.Paused())
}

func TestSetReadyOnlyInLobby(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	require.NoError(t, app.SetReady(context.Background(), host.ID, true))
	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.True(t, snap.You.Ready)

	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)
	err = app.SetReady(context.Background(), host.ID, false)
	assert.ErrorIs(t, err, room.ErrInvalidPhase)
}

func TestPresenceFromHeartbeats(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.True(t, viewFor(t, snap, guest.ID).Connected)

	// The guest goes quiet past the presence timeout.
	clock.Advance(room.PresenceTimeout + time.Second)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.False(t, viewFor(t, snap, guest.ID).Connected)
	assert.True(t, snap.You.Connected)

	// One read from the guest restores presence.
	_, err = app.ReadState(context.Background(), guest.ID)
	require.NoError(t, err)
	snap, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.True(t, viewFor(t, snap, guest.ID).Connected)
}

func TestMarkDisconnected(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	require.NoError(t, app.MarkDisconnected(context.Background(), guest.ID))

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.False(t, viewFor(t, snap, guest.ID).Connected)
}

func TestDisconnectedParticipantDoesNotBlockEarlyReveal(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")
	guest := mustJoin(t, app, rm.Code, "guest:abc", "")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	require.NoError(t, app.MarkDisconnected(context.Background(), guest.ID))

	clock.Advance(2 * time.Second)
	_, err = app.SubmitAnswer(context.Background(), room.SubmitAnswerRequest{
		ParticipantID: host.ID, RoundIndex: 0, ChoiceIndex: 0, ClientElapsedMs: 2000,
	})
	require.NoError(t, err)

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusReveal, snap.Room.Status)
}

func TestRoomExpiry(t *testing.T) {
	app, _, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	clock.Advance(room.DefaultRoomTTL + time.Minute)

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusExpired, snap.Room.Status)

	_, err = app.Join(context.Background(), room.JoinRequest{Code: rm.Code, Identity: "guest:late"})
	assert.ErrorIs(t, err, room.ErrExpired)

	_, err = app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	assert.ErrorIs(t, err, room.ErrExpired)
}

func TestQuestionViewHidesCorrectIndex(t *testing.T) {
	app, _, _ := newTestEngine(t)
	rm := mustCreateRoom(t, app, 3)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)

	snap, err := app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Question)
	assert.Len(t, snap.Question.Choices, 3)
	assert.Nil(t, snap.Reveal)
}

func TestOutboxEventsRecorded(t *testing.T) {
	app, store, clock := newTestEngine(t)
	rm := mustCreateRoom(t, app, 2)
	host := mustJoin(t, app, rm.Code, "user:host", "Alex")

	_, err := app.ApplyHostAction(context.Background(), host.ID, models.HostActionStart)
	require.NoError(t, err)
	clock.Advance(21 * time.Second)
	_, err = app.ReadState(context.Background(), host.ID)
	require.NoError(t, err)

	var types []string
	for _, ev := range store.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		events.TypeRoomCreated,
		events.TypeRoomStarted,
		events.TypeRoundStarted,
		events.TypeRoundRevealed,
	}, types)
}

func viewFor(t *testing.T, snap *room.StateSnapshot, id uuid.UUID) room.ParticipantView {
	t.Helper()
	for _, v := range snap.Participants {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("participant %s not in snapshot", id)
	return room.ParticipantView{}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
