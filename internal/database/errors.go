// internal/database/errors.go
package database

import "errors"

// Business-rule rejections returned by the atomic room procedures. Handlers
// map these to stable machine codes; anything else is a generic store error.
var (
	// ErrRoomNotFound means the room does not exist or is soft-deleted.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull means the room no longer satisfies join preconditions:
	// both seats taken, or it has moved past waiting_for_players. A race
	// between two joins resolves to exactly one of these.
	ErrRoomFull = errors.New("room is full or no longer available")

	// ErrInvalidPassword means the supplied join password did not match.
	ErrInvalidPassword = errors.New("incorrect room password")

	// ErrNotInRoom means the caller occupies neither seat of the room.
	ErrNotInRoom = errors.New("player is not in this room")

	// ErrSecretAlreadySet means the caller's secret was already set for
	// this game instance; a secret is set exactly once.
	ErrSecretAlreadySet = errors.New("secret already set")

	// ErrTurnConflict means the turn precondition failed: either the turn
	// moved under the caller (a racing guess lost) or the game is not in
	// progress. The caller should refetch state, never resubmit blindly.
	ErrTurnConflict = errors.New("not your turn")
)
