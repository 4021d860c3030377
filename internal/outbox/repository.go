package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Repository reads and marks outbox rows. It runs on database/sql with the
// pq driver, sharing the connection config with the LISTEN/NOTIFY listener.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository on the given database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FetchUnsent returns up to limit unsent events, oldest first.
func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, event_type, payload, created_at
		FROM room_events
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RoomID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FetchByID returns one event row.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var ev Event
	err := r.db.QueryRowContext(ctx, `
		SELECT id, room_id, event_type, payload, created_at, sent_at
		FROM room_events WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.RoomID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.SentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", id, err)
	}
	return &ev, nil
}

// MarkSent stamps the given events as delivered.
func (r *Repository) MarkSent(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE room_events SET sent_at = now()
		WHERE id = ANY($1) AND sent_at IS NULL`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark events sent: %w", err)
	}
	return nil
}
