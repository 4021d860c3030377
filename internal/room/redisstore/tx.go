package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

type roundRef struct {
	roomID uuid.UUID
	index  int
}

type answerRef struct {
	participantID uuid.UUID
	roundIndex    int
}

// txView buffers writes until commit. Reads consult the buffer first so the
// engine sees its own writes mid-transaction; nothing touches Redis until
// every step has succeeded, after which one MULTI/EXEC pipeline flushes the
// buffer.
type txView struct {
	rdb *redis.Client

	rooms        map[uuid.UUID]*models.Room
	newCodes     map[string]uuid.UUID
	participants map[uuid.UUID]*models.Participant
	newMembers   map[uuid.UUID][]uuid.UUID // roomID -> created participant ids
	rounds       map[roundRef]*models.Round
	answers      map[answerRef]*models.Answer
	events       []*models.RoomEvent
}

func newTxView(rdb *redis.Client) *txView {
	return &txView{
		rdb:          rdb,
		rooms:        make(map[uuid.UUID]*models.Room),
		newCodes:     make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]*models.Participant),
		newMembers:   make(map[uuid.UUID][]uuid.UUID),
		rounds:       make(map[roundRef]*models.Round),
		answers:      make(map[answerRef]*models.Answer),
	}
}

var _ room.Repository = (*txView)(nil)

func (v *txView) InTx(ctx context.Context, fn func(room.Repository) error) error {
	// Already buffering; nest flat.
	return fn(v)
}

func (v *txView) CreateRoom(ctx context.Context, rm *models.Room) error {
	if _, ok := v.newCodes[rm.Code]; ok {
		return fmt.Errorf("join code %s already in use", rm.Code)
	}
	exists, err := v.rdb.Exists(ctx, codeKey(rm.Code)).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("join code %s already in use", rm.Code)
	}
	cp := *rm
	v.rooms[rm.ID] = &cp
	v.newCodes[rm.Code] = rm.ID
	return nil
}

func (v *txView) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if rm, ok := v.rooms[id]; ok {
		cp := *rm
		return &cp, nil
	}
	return getJSON[models.Room](ctx, v.rdb, roomKey(id))
}

func (v *txView) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	if id, ok := v.newCodes[code]; ok {
		return v.GetRoom(ctx, id)
	}
	id, err := v.rdb.Get(ctx, codeKey(code)).Result()
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
	return v.GetRoom(ctx, roomID)
}

func (v *txView) UpdateRoom(ctx context.Context, rm *models.Room) error {
	current, err := v.GetRoom(ctx, rm.ID)
	if err != nil {
		return err
	}
	if current.Version != rm.Version {
		return fmt.Errorf("room %s version %d != stored %d: %w",
			rm.ID, rm.Version, current.Version, room.ErrConflict)
	}
	rm.Version++
	cp := *rm
	v.rooms[rm.ID] = &cp
	return nil
}

func (v *txView) CreateParticipant(ctx context.Context, p *models.Participant) error {
	cp := *p
	v.participants[p.ID] = &cp
	v.newMembers[p.RoomID] = append(v.newMembers[p.RoomID], p.ID)
	return nil
}

func (v *txView) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	cp := *p
	v.participants[p.ID] = &cp
	return nil
}

func (v *txView) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	if p, ok := v.participants[id]; ok {
		cp := *p
		return &cp, nil
	}
	return getJSON[models.Participant](ctx, v.rdb, participantKey(id))
}

func (v *txView) GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	for _, p := range v.participants {
		if p.RoomID == roomID && p.Identity == identityKey {
			cp := *p
			return &cp, nil
		}
	}
	id, err := v.rdb.HGet(ctx, identitiesKey(roomID), identityKey).Result()
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
	return v.GetParticipant(ctx, pid)
}

func (v *txView) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	ids, err := v.rdb.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	var out []models.Participant
	for _, raw := range ids {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt member set: %w", err)
		}
		seen[pid] = true
		p, err := v.GetParticipant(ctx, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	for _, pid := range v.newMembers[roomID] {
		if !seen[pid] {
			out = append(out, *v.participants[pid])
		}
	}
	return out, nil
}

func (v *txView) CreateRound(ctx context.Context, r *models.Round) error {
	cp := *r
	cp.Choices = append([]string(nil), r.Choices...)
	v.rounds[roundRef{roomID: r.RoomID, index: r.Index}] = &cp
	return nil
}

func (v *txView) GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error) {
	if r, ok := v.rounds[roundRef{roomID: roomID, index: index}]; ok {
		cp := *r
		return &cp, nil
	}
	return getJSON[models.Round](ctx, v.rdb, roundKey(roomID, index))
}

func (v *txView) CreateAnswer(ctx context.Context, a *models.Answer) error {
	ref := answerRef{participantID: a.ParticipantID, roundIndex: a.RoundIndex}
	if _, ok := v.answers[ref]; ok {
		return room.ErrDuplicateAnswer
	}
	exists, err := v.rdb.HExists(ctx, answersKey(a.RoomID, a.RoundIndex), a.ParticipantID.String()).Result()
	if err != nil {
		return err
	}
	if exists {
		return room.ErrDuplicateAnswer
	}
	cp := *a
	v.answers[ref] = &cp
	return nil
}

func (v *txView) GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	for ref, a := range v.answers {
		if ref.participantID == participantID && ref.roundIndex == roundIndex {
			cp := *a
			return &cp, nil
		}
	}
	p, err := v.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	raw, err := v.rdb.HGet(ctx, answersKey(p.RoomID, roundIndex), participantID.String()).Result()
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

func (v *txView) ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	raws, err := v.rdb.HGetAll(ctx, answersKey(roomID, roundIndex)).Result()
	if err != nil {
		return nil, err
	}

	var out []models.Answer
	for _, raw := range raws {
		var a models.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("corrupt answer: %w", err)
		}
		out = append(out, a)
	}
	for ref, a := range v.answers {
		if a.RoomID == roomID && ref.roundIndex == roundIndex {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (v *txView) AppendEvent(ctx context.Context, ev *models.RoomEvent) error {
	cp := *ev
	v.events = append(v.events, &cp)
	return nil
}

// commit flushes the buffer in one MULTI/EXEC pipeline.
func (v *txView) commit(ctx context.Context) error {
	if len(v.rooms) == 0 && len(v.participants) == 0 && len(v.rounds) == 0 &&
		len(v.answers) == 0 && len(v.events) == 0 {
		return nil
	}

	_, err := v.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, rm := range v.rooms {
			data, err := json.Marshal(rm)
			if err != nil {
				return fmt.Errorf("failed to marshal room: %w", err)
			}
			pipe.Set(ctx, roomKey(id), data, keyTTL)
		}
		for code, id := range v.newCodes {
			pipe.Set(ctx, codeKey(code), id.String(), keyTTL)
		}
		for id, p := range v.participants {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal participant: %w", err)
			}
			pipe.Set(ctx, participantKey(id), data, keyTTL)
		}
		for roomID, pids := range v.newMembers {
			for _, pid := range pids {
				pipe.SAdd(ctx, membersKey(roomID), pid.String())
				pipe.HSet(ctx, identitiesKey(roomID), v.participants[pid].Identity, pid.String())
			}
			pipe.Expire(ctx, membersKey(roomID), keyTTL)
			pipe.Expire(ctx, identitiesKey(roomID), keyTTL)
		}
		for ref, r := range v.rounds {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal round: %w", err)
			}
			pipe.Set(ctx, roundKey(ref.roomID, ref.index), data, keyTTL)
		}
		for ref, a := range v.answers {
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("failed to marshal answer: %w", err)
			}
			key := answersKey(a.RoomID, ref.roundIndex)
			pipe.HSetNX(ctx, key, ref.participantID.String(), data)
			pipe.Expire(ctx, key, keyTTL)
		}
		for _, ev := range v.events {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			pipe.RPush(ctx, eventsKey, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
