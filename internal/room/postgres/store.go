// Package postgres implements room.Repository on PostgreSQL via pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// dbtx is the subset of pgxpool.Pool and pgx.Tx the queries need.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed repository.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewStore creates a Store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

var _ room.Repository = (*Store)(nil)

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InTx executes fn inside a transaction. If fn returns an error the tx rolls
// back, else it commits. Nested calls run flat on the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(room.Repository) error) error {
	if _, nested := s.db.(pgx.Tx); nested {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const roomColumns = `id, code, host_identity, host_user_id, status, deck_id, rules,
	current_round, phase_ends_at, pending_action, paused_remaining_ms,
	version, expires_at, created_at, updated_at`

func (s *Store) CreateRoom(ctx context.Context, rm *models.Room) error {
	rules, err := json.Marshal(rm.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rm.ID, rm.Code, rm.HostIdentity, rm.HostUserID, rm.Status, rm.DeckID, rules,
		rm.CurrentRound, rm.PhaseEndsAt, rm.PendingAction, durationMs(rm.PausedRemaining),
		rm.Version, rm.ExpiresAt, rm.CreatedAt, rm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code))
}

// UpdateRoom writes the room guarded by the version check and bumps
// rm.Version to match the stored row.
func (s *Store) UpdateRoom(ctx context.Context, rm *models.Room) error {
	rules, err := json.Marshal(rm.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rooms
		SET status = $1, current_round = $2, phase_ends_at = $3,
		    pending_action = $4, paused_remaining_ms = $5, rules = $6,
		    expires_at = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10`,
		rm.Status, rm.CurrentRound, rm.PhaseEndsAt,
		rm.PendingAction, durationMs(rm.PausedRemaining), rules,
		rm.ExpiresAt, rm.UpdatedAt, rm.ID, rm.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s at version %d: %w", rm.ID, rm.Version, room.ErrConflict)
	}
	rm.Version++
	return nil
}

const participantColumns = `id, room_id, identity, is_guest, nickname, avatar_index,
	is_host, ready, joined_at, last_seen_at, disconnected_at, removed_at,
	score, answer_count, avg_response_ms, streak, best_streak`

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.RoomID, p.Identity, p.IsGuest, p.Nickname, p.AvatarIndex,
		p.IsHost, p.Ready, p.JoinedAt, p.LastSeenAt, p.DisconnectedAt, p.RemovedAt,
		p.Score, p.AnswerCount, p.AvgResponseMs, p.Streak, p.BestStreak,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (s *Store) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE participants
		SET nickname = $1, avatar_index = $2, ready = $3, last_seen_at = $4,
		    disconnected_at = $5, removed_at = $6, score = $7, answer_count = $8,
		    avg_response_ms = $9, streak = $10, best_streak = $11
		WHERE id = $12`,
		p.Nickname, p.AvatarIndex, p.Ready, p.LastSeenAt,
		p.DisconnectedAt, p.RemovedAt, p.Score, p.AnswerCount,
		p.AvgResponseMs, p.Streak, p.BestStreak, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return room.ErrNotFound
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return scanParticipant(s.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
}

func (s *Store) GetParticipantByIdentity(ctx context.Context, roomID uuid.UUID, identityKey string) (*models.Participant, error) {
	return scanParticipant(s.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE room_id = $1 AND identity = $2`,
		roomID, identityKey))
}

func (s *Store) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE room_id = $1 ORDER BY joined_at`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rounds (room_id, round_index, prompt, choices, correct_index, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.RoomID, r.Index, r.Prompt, r.Choices, r.CorrectIndex, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roomID uuid.UUID, index int) (*models.Round, error) {
	var r models.Round
	err := s.db.QueryRow(ctx, `
		SELECT room_id, round_index, prompt, choices, correct_index, started_at
		FROM rounds WHERE room_id = $1 AND round_index = $2`,
		roomID, index,
	).Scan(&r.RoomID, &r.Index, &r.Prompt, &r.Choices, &r.CorrectIndex, &r.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return &r, nil
}

func (s *Store) CreateAnswer(ctx context.Context, a *models.Answer) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO answers (participant_id, room_id, round_index, choice_index,
			correct, score_delta, response_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ParticipantID, a.RoomID, a.RoundIndex, a.ChoiceIndex,
		a.Correct, a.ScoreDelta, a.ResponseMs, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return room.ErrDuplicateAnswer
	}
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	return nil
}

func (s *Store) GetAnswer(ctx context.Context, participantID uuid.UUID, roundIndex int) (*models.Answer, error) {
	var a models.Answer
	err := s.db.QueryRow(ctx, `
		SELECT participant_id, room_id, round_index, choice_index,
			correct, score_delta, response_ms, created_at
		FROM answers WHERE participant_id = $1 AND round_index = $2`,
		participantID, roundIndex,
	).Scan(&a.ParticipantID, &a.RoomID, &a.RoundIndex, &a.ChoiceIndex,
		&a.Correct, &a.ScoreDelta, &a.ResponseMs, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &a, nil
}

func (s *Store) ListAnswers(ctx context.Context, roomID uuid.UUID, roundIndex int) ([]models.Answer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT participant_id, room_id, round_index, choice_index,
			correct, score_delta, response_ms, created_at
		FROM answers WHERE room_id = $1 AND round_index = $2`,
		roomID, roundIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ParticipantID, &a.RoomID, &a.RoundIndex, &a.ChoiceIndex,
			&a.Correct, &a.ScoreDelta, &a.ResponseMs, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, ev *models.RoomEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO room_events (id, room_id, event_type, payload, created_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RoomID, ev.EventType, []byte(ev.Payload), ev.CreatedAt, ev.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *Store) scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		rm       models.Room
		rules    []byte
		pausedMs *int64
	)
	err := row.Scan(&rm.ID, &rm.Code, &rm.HostIdentity, &rm.HostUserID, &rm.Status,
		&rm.DeckID, &rules, &rm.CurrentRound, &rm.PhaseEndsAt, &rm.PendingAction,
		&pausedMs, &rm.Version, &rm.ExpiresAt, &rm.CreatedAt, &rm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	if err := json.Unmarshal(rules, &rm.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	if pausedMs != nil {
		d := time.Duration(*pausedMs) * time.Millisecond
		rm.PausedRemaining = &d
	}
	return &rm, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.RoomID, &p.Identity, &p.IsGuest, &p.Nickname, &p.AvatarIndex,
		&p.IsHost, &p.Ready, &p.JoinedAt, &p.LastSeenAt, &p.DisconnectedAt, &p.RemovedAt,
		&p.Score, &p.AnswerCount, &p.AvgResponseMs, &p.Streak, &p.BestStreak)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	return &p, nil
}

func durationMs(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
