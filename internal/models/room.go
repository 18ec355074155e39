// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameState enumerates the lifecycle states of a room. A deleted room is not
// part of the enum; deletion is observed as row absence.
type GameState string

const (
	StateWaitingForPlayers GameState = "waiting_for_players"
	StateWaitingForSecrets GameState = "waiting_for_secrets"
	StateInProgress        GameState = "in_progress"
	StateFinished          GameState = "finished"
)

// Guess is one scored attempt in a player's guess log.
type Guess struct {
	Guess   string `json:"guess"`
	Correct int    `json:"correct"`
}

// Room is the single shared entity representing one two-player game instance.
// It mirrors a row in the rooms table. Player 1 is the host.
//
// Secrets are only ever serialized to their owner; use Redacted before
// handing a room to a client.
type Room struct {
	ID             uuid.UUID  `json:"id"`
	RoomName       string     `json:"room_name"`
	Player1ID      *uuid.UUID `json:"player1_id"`
	Player2ID      *uuid.UUID `json:"player2_id"`
	Player1Secret  *string    `json:"player1_secret,omitempty"`
	Player2Secret  *string    `json:"player2_secret,omitempty"`
	Player1Guesses []Guess    `json:"player1_guesses"`
	Player2Guesses []Guess    `json:"player2_guesses"`
	Turn           *int       `json:"turn"`
	Winner         *int       `json:"winner"`
	GameState      GameState  `json:"game_state"`

	// Player1SecretSet / Player2SecretSet expose secret presence without the
	// plaintext, so a client can render "waiting for opponent's secret".
	Player1SecretSet bool `json:"player1_secret_set"`
	Player2SecretSet bool `json:"player2_secret_set"`

	HasPassword bool `json:"has_password"`

	// PasswordHash is the argon2id hash of the optional join password.
	// Never serialized.
	PasswordHash *string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// PlayerNumber returns 1 or 2 for a seated player, or 0 if the id occupies
// neither slot.
func (r *Room) PlayerNumber(id uuid.UUID) int {
	if r.Player1ID != nil && *r.Player1ID == id {
		return 1
	}
	if r.Player2ID != nil && *r.Player2ID == id {
		return 2
	}
	return 0
}

// SecretFor returns the secret belonging to player n (1 or 2), or nil.
func (r *Room) SecretFor(n int) *string {
	if n == 1 {
		return r.Player1Secret
	}
	if n == 2 {
		return r.Player2Secret
	}
	return nil
}

// GuessesFor returns the guess log of player n (1 or 2).
func (r *Room) GuessesFor(n int) []Guess {
	if n == 1 {
		return r.Player1Guesses
	}
	if n == 2 {
		return r.Player2Guesses
	}
	return nil
}

// Full reports whether both seats are taken.
func (r *Room) Full() bool {
	return r.Player1ID != nil && r.Player2ID != nil
}

// Empty reports whether no seats are taken. An empty room is structurally
// invalid and must not persist.
func (r *Room) Empty() bool {
	return r.Player1ID == nil && r.Player2ID == nil
}

// Redacted returns a copy of the room safe to serialize to the given player:
// the opponent's plaintext secret is stripped, only the presence flags
// survive. Pass uuid.Nil for a spectator/lobby view, which strips both.
func (r *Room) Redacted(forPlayer uuid.UUID) *Room {
	out := *r
	out.Player1SecretSet = r.Player1Secret != nil
	out.Player2SecretSet = r.Player2Secret != nil
	out.HasPassword = r.PasswordHash != nil
	out.PasswordHash = nil

	n := r.PlayerNumber(forPlayer)
	if n != 1 {
		out.Player1Secret = nil
	}
	if n != 2 {
		out.Player2Secret = nil
	}
	return &out
}

// LeaveAction is the outcome of a leave-room call.
type LeaveAction string

const (
	LeaveDeleted       LeaveAction = "deleted"        // no players remain, room removed
	LeavePromotedGuest LeaveAction = "promoted_guest" // host left, guest is the new host
	LeaveGuestLeft     LeaveAction = "guest_left"     // guest left, host keeps a reset room
)

// LeaveResult reports what leave-room decided atomically on the server.
// Clients must never recompute promotion or reset themselves.
type LeaveResult struct {
	Action    LeaveAction `json:"action"`
	NewHostID *uuid.UUID  `json:"new_host_id,omitempty"`
}
