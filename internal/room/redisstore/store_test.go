package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("QUIZROOM_REDIS_TESTS") == "" {
		t.Skip("set QUIZROOM_REDIS_TESTS=1 to run redis integration tests")
	}

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testRoom() *models.Room {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Room{
		ID:           uuid.New(),
		Code:         "XYZ789",
		HostIdentity: "user:host",
		Status:       models.RoomStatusLobby,
		DeckID:       "deck-1",
		Rules:        models.RoomRules{TotalRounds: 3, QuestionDuration: 20 * time.Second},
		Version:      1,
		ExpiresAt:    now.Add(2 * time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRedisRoomRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(startRedis(ctx, t))

	rm := testRoom()
	require.NoError(t, store.CreateRoom(ctx, rm))

	got, err := store.GetRoomByCode(ctx, rm.Code)
	require.NoError(t, err)
	assert.Equal(t, rm.ID, got.ID)
	assert.Equal(t, rm.Rules, got.Rules)

	_, err = store.GetRoomByCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, room.ErrNotFound)
}

func TestRedisVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewStore(startRedis(ctx, t))

	rm := testRoom()
	require.NoError(t, store.CreateRoom(ctx, rm))

	stale := *rm
	rm.Status = models.RoomStatusQuestion
	require.NoError(t, store.UpdateRoom(ctx, rm))

	stale.Status = models.RoomStatusExpired
	assert.ErrorIs(t, store.UpdateRoom(ctx, &stale), room.ErrConflict)
}

func TestRedisTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore(startRedis(ctx, t))

	rm := testRoom()
	err := store.InTx(ctx, func(r room.Repository) error {
		if err := r.CreateRoom(ctx, rm); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	_, err = store.GetRoom(ctx, rm.ID)
	assert.ErrorIs(t, err, room.ErrNotFound)
}

func TestRedisDuplicateAnswerAndOutbox(t *testing.T) {
	ctx := context.Background()
	store := NewStore(startRedis(ctx, t))

	rm := testRoom()
	require.NoError(t, store.CreateRoom(ctx, rm))

	now := time.Now().UTC()
	p := &models.Participant{ID: uuid.New(), RoomID: rm.ID, Identity: "guest:k1", Nickname: "brisk otter", JoinedAt: now}
	require.NoError(t, store.CreateParticipant(ctx, p))

	got, err := store.GetParticipantByIdentity(ctx, rm.ID, "guest:k1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	ans := &models.Answer{ParticipantID: p.ID, RoomID: rm.ID, RoundIndex: 0, ChoiceIndex: 1, Correct: true, ScoreDelta: 140, ResponseMs: 4000, CreatedAt: now}
	require.NoError(t, store.CreateAnswer(ctx, ans))
	assert.ErrorIs(t, store.CreateAnswer(ctx, ans), room.ErrDuplicateAnswer)

	require.NoError(t, store.AppendEvent(ctx, &models.RoomEvent{
		ID: uuid.New(), RoomID: rm.ID, EventType: "RoomCreated", Payload: []byte(`{}`), CreatedAt: now,
	}))
	evs, err := store.PopEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "RoomCreated", evs[0].EventType)
}
