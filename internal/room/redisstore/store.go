// Package redisstore implements room.Repository on Redis. It suits
// single-writer deployments that want room state to survive restarts
// without running Postgres; keys carry a TTL so finished rooms age out
// on their own.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

// keyTTL is how long room keys outlive their last write. Room expiry is an
// engine concern; the TTL only reclaims storage afterwards.
const keyTTL = 24 * time.Hour

func roomKey(id uuid.UUID) string          { return "room:" + id.String() }
func codeKey(code string) string           { return "roomcode:" + code }
func participantKey(id uuid.UUID) string   { return "participant:" + id.String() }
func membersKey(roomID uuid.UUID) string   { return "room:" + roomID.String() + ":participants" }
func identitiesKey(roomID uuid.UUID) string { return "room:" + roomID.String() + ":identities" }
func roundKey(roomID uuid.UUID, idx int) string {
	return fmt.Sprintf("room:%s:round:%d", roomID, idx)
}
func answersKey(roomID uuid.UUID, idx int) string {
	return fmt.Sprintf("room:%s:answers:%d", roomID, idx)
}

// eventsKey is the outbox list shared by all rooms, consumed oldest first.
const eventsKey = "outbox:events"

// Store implements room.Repository on a Redis client. Writes inside InTx are
// buffered and flushed with one MULTI/EXEC pipeline on success, so a failed
// operation leaves Redis untouched. A process-local mutex serializes
// transactions: the store assumes a single authoritative engine process per
// room set, the same assumption the in-memory store makes.
type Store struct {
	mu  sync.Mutex
	rdb *redis.Client
}

// NewStore creates a Store on the given client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

var _ room.Repository = (*Store)(nil)

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) InTx(ctx context.Context, fn func(room.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := newTxView(s.rdb)
	if err := fn(v); err != nil {
		return err
	}
	return v.commit(ctx)
}

// Single operations outside InTx run as one-shot transactions.

func (s *Store) CreateRoom(ctx context.Context, rm *models.Room) error {
	return s.InTx(ctx, func(r room.Repository) error { return r.CreateRoom(ctx, rm) })
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return getJSON[models.Room](ctx, s.rdb, roomKey(id))
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	id, err := s.rdb.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	roomID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt code index for %s: %w", code, err)
	}
	return s.GetRoom(ctx, roomID)
}

func (s *Store) UpdateRoom(ctx context.Context, rm *models.Room) error {
	return s.InTx(ctx, func(r room.Repository) error { return r.UpdateRoom(ctx, rm) })
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return s.InTx(ctx, func(r room.Repository) error { return r.CreateParticipant(ctx, p) })
}

func (s *Store) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	return s.InTx(ctx, func(r room.Repository) error { return r.UpdateParticipant(ctx, p) })
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return getJSON[models.Participant](ctx, s.rdb, participantKey(id))
}

func (s *Store) GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	id, err := s.rdb.HGet(ctx, identitiesKey(roomID), identityKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt identity index: %w", err)
	}
	return s.GetParticipant(ctx, pid)
}

func (s *Store) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	ids, err := s.rdb.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Participant, 0, len(ids))
	for _, raw := range ids {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt member set: %w", err)
		}
		p, err := s.GetParticipant(ctx, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	return s.InTx(ctx, func(repo room.Repository) error { return repo.CreateRound(ctx, r) })
}

func (s *Store) GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error) {
	return getJSON[models.Round](ctx, s.rdb, roundKey(roomID, index))
}

func (s *Store) CreateAnswer(ctx context.Context, a *models.Answer) error {
	return s.InTx(ctx, func(repo room.Repository) error { return repo.CreateAnswer(ctx, a) })
}

func (s *Store) GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	raw, err := s.rdb.HGet(ctx, answersKey(p.RoomID, roundIndex), participantID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a models.Answer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("corrupt answer: %w", err)
	}
	return &a, nil
}

func (s *Store) ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	raws, err := s.rdb.HGetAll(ctx, answersKey(roomID, roundIndex)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Answer, 0, len(raws))
	for _, raw := range raws {
		var a models.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("corrupt answer: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *models.RoomEvent) error {
	return s.InTx(ctx, func(repo room.Repository) error { return repo.AppendEvent(ctx, ev) })
}

// PopEvents drains up to n outbox events, oldest first. Used by the relay
// when the engine runs on Redis instead of Postgres.
func (s *Store) PopEvents(ctx context.Context, n int) ([]models.RoomEvent, error) {
	raws, err := s.rdb.LPopCount(ctx, eventsKey, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomEvent, 0, len(raws))
	for _, raw := range raws {
		var ev models.RoomEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("corrupt event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func getJSON[T any](ctx context.Context, rdb *redis.Client, key string) (*T, error) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("corrupt record at %s: %w", key, err)
	}
	return &v, nil
}
