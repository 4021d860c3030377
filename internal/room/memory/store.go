// Package memory provides an in-memory room.Repository. It backs single
// process deployments and the engine's tests; semantics mirror the postgres
// store, including version checks and the one-answer-per-round constraint.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

type roundKey struct {
	roomID uuid.UUID
	index  int
}

type answerKey struct {
	participantID uuid.UUID
	roundIndex    int
}

type tables struct {
	rooms        map[uuid.UUID]*models.Room
	roomsByCode  map[string]uuid.UUID
	participants map[uuid.UUID]*models.Participant
	rounds       map[roundKey]*models.Round
	answers      map[answerKey]*models.Answer
	events       []*models.RoomEvent
}

func newTables() *tables {
	return &tables{
		rooms:        make(map[uuid.UUID]*models.Room),
		roomsByCode:  make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]*models.Participant),
		rounds:       make(map[roundKey]*models.Round),
		answers:      make(map[answerKey]*models.Answer),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for id, rm := range t.rooms {
		c.rooms[id] = cloneRoom(rm)
	}
	for code, id := range t.roomsByCode {
		c.roomsByCode[code] = id
	}
	for id, p := range t.participants {
		c.participants[id] = cloneParticipant(p)
	}
	for k, r := range t.rounds {
		c.rounds[k] = cloneRound(r)
	}
	for k, a := range t.answers {
		av := *a
		c.answers[k] = &av
	}
	c.events = append(c.events, t.events...)
	return c
}

// Store is the in-memory repository. A single mutex guards all tables; every
// operation is short so contention is not a concern at room scale.
type Store struct {
	mu   sync.Mutex
	data *tables
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: newTables()}
}

var _ room.Repository = (*Store)(nil)

// InTx runs fn against a transactional view. On error the store is restored
// to its pre-call state, mirroring a rolled-back database transaction.
func (s *Store) InTx(ctx context.Context, fn func(room.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&txView{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, rm *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createRoom(rm)
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getRoom(id)
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getRoomByCode(code)
}

func (s *Store) UpdateRoom(ctx context.Context, rm *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateRoom(rm)
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createParticipant(p)
}

func (s *Store) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateParticipant(p)
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getParticipant(id)
}

func (s *Store) GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getParticipantByIdentity(roomID, identityKey)
}

func (s *Store) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listParticipants(roomID)
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createRound(r)
}

func (s *Store) GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getRound(roomID, index)
}

func (s *Store) CreateAnswer(ctx context.Context, a *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createAnswer(a)
}

func (s *Store) GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getAnswer(participantID, roundIndex)
}

func (s *Store) ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listAnswers(roomID, roundIndex)
}

func (s *Store) AppendEvent(ctx context.Context, ev *models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.appendEvent(ev)
}

// Events returns a copy of the recorded outbox rows, oldest first. Test and
// relay helper; not part of room.Repository.
func (s *Store) Events() []models.RoomEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RoomEvent, len(s.data.events))
	for i, ev := range s.data.events {
		out[i] = *ev
	}
	return out
}

// txView exposes the tables without locking; it only exists inside InTx,
// which already holds the store mutex.
type txView struct {
	data *tables
}

var _ room.Repository = (*txView)(nil)

func (v *txView) InTx(ctx context.Context, fn func(room.Repository) error) error {
	// Already inside a transaction; nest flat like pg savepoint-free Tx.
	return fn(v)
}

func (v *txView) CreateRoom(ctx context.Context, rm *models.Room) error { return v.data.createRoom(rm) }
func (v *txView) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return v.data.getRoom(id)
}
func (v *txView) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return v.data.getRoomByCode(code)
}
func (v *txView) UpdateRoom(ctx context.Context, rm *models.Room) error { return v.data.updateRoom(rm) }
func (v *txView) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return v.data.createParticipant(p)
}
func (v *txView) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	return v.data.updateParticipant(p)
}
func (v *txView) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return v.data.getParticipant(id)
}
func (v *txView) GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	return v.data.getParticipantByIdentity(roomID, identityKey)
}
func (v *txView) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	return v.data.listParticipants(roomID)
}
func (v *txView) CreateRound(ctx context.Context, r *models.Round) error {
	return v.data.createRound(r)
}
func (v *txView) GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error) {
	return v.data.getRound(roomID, index)
}
func (v *txView) CreateAnswer(ctx context.Context, a *models.Answer) error {
	return v.data.createAnswer(a)
}
func (v *txView) GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	return v.data.getAnswer(participantID, roundIndex)
}
func (v *txView) ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	return v.data.listAnswers(roomID, roundIndex)
}
func (v *txView) AppendEvent(ctx context.Context, ev *models.RoomEvent) error {
	return v.data.appendEvent(ev)
}

func (t *tables) createRoom(rm *models.Room) error {
	if _, ok := t.rooms[rm.ID]; ok {
		return fmt.Errorf("room %s already exists", rm.ID)
	}
	if _, ok := t.roomsByCode[rm.Code]; ok {
		return fmt.Errorf("join code %s already in use", rm.Code)
	}
	t.rooms[rm.ID] = cloneRoom(rm)
	t.roomsByCode[rm.Code] = rm.ID
	return nil
}

func (t *tables) getRoom(id uuid.UUID) (*models.Room, error) {
	rm, ok := t.rooms[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return cloneRoom(rm), nil
}

func (t *tables) getRoomByCode(code string) (*models.Room, error) {
	id, ok := t.roomsByCode[code]
	if !ok {
		return nil, room.ErrNotFound
	}
	return t.getRoom(id)
}

func (t *tables) updateRoom(rm *models.Room) error {
	stored, ok := t.rooms[rm.ID]
	if !ok {
		return room.ErrNotFound
	}
	if stored.Version != rm.Version {
		return fmt.Errorf("room %s version %d != stored %d: %w",
			rm.ID, rm.Version, stored.Version, room.ErrConflict)
	}
	rm.Version++
	t.rooms[rm.ID] = cloneRoom(rm)
	return nil
}

func (t *tables) createParticipant(p *models.Participant) error {
	if _, ok := t.participants[p.ID]; ok {
		return fmt.Errorf("participant %s already exists", p.ID)
	}
	t.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (t *tables) updateParticipant(p *models.Participant) error {
	if _, ok := t.participants[p.ID]; !ok {
		return room.ErrNotFound
	}
	t.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (t *tables) getParticipant(id uuid.UUID) (*models.Participant, error) {
	p, ok := t.participants[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return cloneParticipant(p), nil
}

func (t *tables) getParticipantByIdentity(roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	for _, p := range t.participants {
		if p.RoomID == roomID && p.Identity == identityKey {
			return cloneParticipant(p), nil
		}
	}
	return nil, room.ErrNotFound
}

func (t *tables) listParticipants(roomID uuid.UUID) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range t.participants {
		if p.RoomID == roomID {
			out = append(out, *cloneParticipant(p))
		}
	}
	return out, nil
}

func (t *tables) createRound(r *models.Round) error {
	k := roundKey{roomID: r.RoomID, index: r.Index}
	if _, ok := t.rounds[k]; ok {
		return fmt.Errorf("round %d already exists for room %s", r.Index, r.RoomID)
	}
	t.rounds[k] = cloneRound(r)
	return nil
}

func (t *tables) getRound(roomID uuid.UUID, index int) (*models.Round, error) {
	r, ok := t.rounds[roundKey{roomID: roomID, index: index}]
	if !ok {
		return nil, room.ErrNotFound
	}
	return cloneRound(r), nil
}

func (t *tables) createAnswer(a *models.Answer) error {
	k := answerKey{participantID: a.ParticipantID, roundIndex: a.RoundIndex}
	if _, ok := t.answers[k]; ok {
		return room.ErrDuplicateAnswer
	}
	av := *a
	t.answers[k] = &av
	return nil
}

func (t *tables) getAnswer(participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	a, ok := t.answers[answerKey{participantID: participantID, roundIndex: roundIndex}]
	if !ok {
		return nil, room.ErrNotFound
	}
	av := *a
	return &av, nil
}

func (t *tables) listAnswers(roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	var out []models.Answer
	for _, a := range t.answers {
		if a.RoomID == roomID && a.RoundIndex == roundIndex {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (t *tables) appendEvent(ev *models.RoomEvent) error {
	ec := *ev
	t.events = append(t.events, &ec)
	return nil
}

func cloneRoom(rm *models.Room) *models.Room {
	c := *rm
	if rm.PhaseEndsAt != nil {
		v := *rm.PhaseEndsAt
		c.PhaseEndsAt = &v
	}
	if rm.PendingAction != nil {
		v := *rm.PendingAction
		c.PendingAction = &v
	}
	if rm.PausedRemaining != nil {
		v := *rm.PausedRemaining
		c.PausedRemaining = &v
	}
	if rm.HostUserID != nil {
		v := *rm.HostUserID
		c.HostUserID = &v
	}
	return &c
}

func cloneParticipant(p *models.Participant) *models.Participant {
	c := *p
	c.LastSeenAt = cloneTime(p.LastSeenAt)
	c.DisconnectedAt = cloneTime(p.DisconnectedAt)
	c.RemovedAt = cloneTime(p.RemovedAt)
	return &c
}

func cloneRound(r *models.Round) *models.Round {
	c := *r
	c.Choices = append([]string(nil), r.Choices...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
