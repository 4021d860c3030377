package room

import "errors"

// Engine error taxonomy. Operations return these wrapped with context;
// callers branch with errors.Is.
var (
	// ErrNotFound means the room code, participant or round could not be
	// resolved.
	ErrNotFound = errors.New("not found")

	// ErrExpired means the room is past its expiry timestamp. Terminal,
	// not retryable.
	ErrExpired = errors.New("room expired")

	// ErrInvalidPhase means the operation is not allowed in the room's
	// current status.
	ErrInvalidPhase = errors.New("invalid phase")

	// ErrRoomFull means the room already holds the maximum number of
	// non-removed participants.
	ErrRoomFull = errors.New("room full")

	// ErrForbidden means the caller may not perform the operation, e.g. a
	// removed participant rejoining mid-match or a non-host issuing a host
	// action.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means an optimistic-concurrency version check failed.
	// The caller should retry the whole operation.
	ErrConflict = errors.New("version conflict")

	// ErrInvalidArgument means the request itself is malformed, e.g. a
	// choice index outside the round's choice list.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateAnswer is returned by repositories when an answer already
	// exists for the (participant, round) pair. The engine resolves it by
	// returning the stored answer; it never reaches callers.
	ErrDuplicateAnswer = errors.New("duplicate answer")
)
