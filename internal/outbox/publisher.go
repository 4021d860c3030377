package outbox

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher logs events instead of delivering them. It stands in for
// JetStream in local development when no broker is running.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("room_id", event.RoomID.String()).
		Msg("publishing event")
	return nil
}
