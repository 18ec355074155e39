// internal/game/view.go
package game

import (
	"github.com/google/uuid"

	"github.com/MicksProjects/numbers-game/internal/models"
)

// View is what a client should render for a given room snapshot. It is
// derived purely from the current row, never from cached intermediate state.
type View string

const (
	ViewLobby       View = "lobby"        // not seated in any room
	ViewSecretEntry View = "secret_entry" // seated, own secret not yet set
	ViewBoard       View = "board"        // game underway (or waiting on opponent's secret)
	ViewGameOver    View = "game_over"    // finished, winner decided
)

// DeriveView maps a room snapshot to the view the given player should see.
// A nil room or a player occupying neither seat derives the lobby.
func DeriveView(room *models.Room, playerID uuid.UUID) View {
	if room == nil {
		return ViewLobby
	}
	n := room.PlayerNumber(playerID)
	if n == 0 {
		return ViewLobby
	}
	if room.SecretFor(n) == nil && room.GameState != models.StateFinished {
		return ViewSecretEntry
	}
	if room.GameState == models.StateFinished {
		return ViewGameOver
	}
	return ViewBoard
}

// MyTurn reports whether the given player may submit the next guess. Only
// meaningful once both secrets are set; false in every other state. This is
// a rendering hint; the store enforces the same precondition atomically.
func MyTurn(room *models.Room, playerID uuid.UUID) bool {
	if room == nil || room.GameState != models.StateInProgress || room.Turn == nil {
		return false
	}
	n := room.PlayerNumber(playerID)
	return n != 0 && *room.Turn == n
}

// OpponentSecretReady reports whether the other player's secret is set, so
// the board can gate guess input while the opponent is still choosing.
func OpponentSecretReady(room *models.Room, playerID uuid.UUID) bool {
	n := room.PlayerNumber(playerID)
	if n == 0 {
		return false
	}
	return room.SecretFor(NextTurn(n)) != nil
}
