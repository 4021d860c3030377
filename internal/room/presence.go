package room

import "time"

// PresenceTimeout is how long after the last heartbeat a participant still
// counts as connected. Heartbeats are a side effect of ReadState polling,
// not a separate channel.
const PresenceTimeout = 30 * time.Second

// Connected derives a participant's presence from heartbeat recency.
// An explicit disconnect marker always wins; a participant that has never
// been seen is disconnected.
func Connected(lastSeenAt, disconnectedAt *time.Time, now time.Time) bool {
	if disconnectedAt != nil {
		return false
	}
	if lastSeenAt == nil {
		return false
	}
	return now.Sub(*lastSeenAt) < PresenceTimeout
}
