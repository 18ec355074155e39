// internal/database/room.go
//
// RoomStore owns the rooms table. Every multi-step mutation (join, leave,
// set-secret, guess) runs inside a transaction holding a row lock, so the
// procedures are atomic against concurrent calls from the other player.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MicksProjects/numbers-game/internal/auth"
	"github.com/MicksProjects/numbers-game/internal/game"
	"github.com/MicksProjects/numbers-game/internal/models"
)

const roomColumns = `
	id, room_name, player1_id, player2_id,
	player1_secret, player2_secret,
	player1_guesses, player2_guesses,
	turn, winner, game_state, password,
	created_at, deleted_at`

// RoomStore performs all reads and writes against the rooms table.
type RoomStore struct {
	pool *pgxpool.Pool
}

// NewRoomStore wraps an already-connected pool.
func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.ID, &r.RoomName, &r.Player1ID, &r.Player2ID,
		&r.Player1Secret, &r.Player2Secret,
		&r.Player1Guesses, &r.Player2Guesses,
		&r.Turn, &r.Winner, &r.GameState, &r.PasswordHash,
		&r.CreatedAt, &r.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// lockRoom fetches a live (not soft-deleted) room row FOR UPDATE inside tx.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`
	r, err := scanRoom(tx.QueryRow(ctx, q, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	return r, err
}

// CreateRoom inserts a new waiting_for_players room hosted by hostID. The
// name is trimmed; an empty or whitespace password means no password. The
// password is stored as an argon2id hash, never plaintext.
func (s *RoomStore) CreateRoom(ctx context.Context, hostID uuid.UUID, roomName, password string) (*models.Room, error) {
	var hash *string
	if pw := strings.TrimSpace(password); pw != "" {
		h, err := auth.HashRoomPassword(pw)
		if err != nil {
			return nil, fmt.Errorf("failed to hash room password: %w", err)
		}
		hash = &h
	}

	q := `
	INSERT INTO rooms (player1_id, room_name, game_state, password)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + roomColumns
	return scanRoom(s.pool.QueryRow(ctx, q,
		hostID, strings.TrimSpace(roomName), models.StateWaitingForPlayers, hash))
}

// JoinRoom seats playerID as the guest. Existence, an open slot, and the
// password check all happen under one row lock, so two racing joins on the
// last slot resolve to one success and one ErrRoomFull. Joining a room the
// player already occupies is a no-op reconnect.
func (s *RoomStore) JoinRoom(ctx context.Context, roomID, playerID uuid.UUID, password string) (*models.Room, error) {
	var joined *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.PlayerNumber(playerID) != 0 {
			joined = room
			return nil
		}
		if room.GameState != models.StateWaitingForPlayers || room.Full() {
			return ErrRoomFull
		}
		if room.PasswordHash != nil {
			ok, err := auth.CompareRoomPassword(password, *room.PasswordHash)
			if err != nil {
				return fmt.Errorf("failed to verify room password: %w", err)
			}
			if !ok {
				return ErrInvalidPassword
			}
		}

		q := `
		UPDATE rooms SET player2_id=$2, game_state=$3
		WHERE id=$1
		RETURNING ` + roomColumns
		joined, err = scanRoom(tx.QueryRow(ctx, q, roomID, playerID, models.StateWaitingForSecrets))
		return err
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// SetPlayerSecret records the caller's secret exactly once per game
// instance; which slot the caller occupies is determined server-side. Once
// both secrets are present the game advances to in_progress with turn=1.
func (s *RoomStore) SetPlayerSecret(ctx context.Context, roomID, playerID uuid.UUID, secret string) (*models.Room, error) {
	var updated *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		n := room.PlayerNumber(playerID)
		if n == 0 {
			return ErrNotInRoom
		}
		if room.SecretFor(n) != nil {
			return ErrSecretAlreadySet
		}

		state := room.GameState
		var turn *int
		if room.SecretFor(game.NextTurn(n)) != nil {
			state = models.StateInProgress
			first := 1
			turn = &first
		}

		// n is 1 or 2, never attacker-controlled.
		q := fmt.Sprintf(`
		UPDATE rooms SET player%d_secret=$2, game_state=$3, turn=$4
		WHERE id=$1
		RETURNING `+roomColumns, n)
		updated, err = scanRoom(tx.QueryRow(ctx, q, roomID, secret, state, turn))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SubmitGuess is a conditional update keyed on the turn value: it only
// succeeds while the game is in progress and the turn still belongs to the
// caller, otherwise ErrTurnConflict. Scoring happens here, server-side,
// against the opponent's secret; the plaintext secret never travels to the
// guesser. A winning guess sets winner and finishes the game leaving turn
// unchanged; a non-winning guess flips the turn.
func (s *RoomStore) SubmitGuess(ctx context.Context, roomID, playerID uuid.UUID, guess string) (*models.Room, error) {
	var updated *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		n := room.PlayerNumber(playerID)
		if n == 0 {
			return ErrNotInRoom
		}
		if room.GameState != models.StateInProgress || room.Turn == nil || *room.Turn != n {
			return ErrTurnConflict
		}
		opponentSecret := room.SecretFor(game.NextTurn(n))
		if opponentSecret == nil {
			return ErrTurnConflict
		}

		correct := game.Score(guess, *opponentSecret)
		guesses := append(room.GuessesFor(n), models.Guess{Guess: guess, Correct: correct})

		state := room.GameState
		turn := *room.Turn
		var winner *int
		if correct == game.CodeLength {
			state = models.StateFinished
			winner = &n
		} else {
			turn = game.NextTurn(n)
		}

		q := fmt.Sprintf(`
		UPDATE rooms SET player%d_guesses=$2, turn=$3, winner=$4, game_state=$5
		WHERE id=$1
		RETURNING `+roomColumns, n)
		updated, err = scanRoom(tx.QueryRow(ctx, q, roomID, guesses, turn, winner, state))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LeaveRoom removes the caller from the room and decides, atomically, what
// becomes of it: soft-delete when no players remain, guest promotion when
// the host leaves, or a field reset when the guest leaves so the host can
// wait for a new opponent. Returns the surviving room, or nil when deleted.
func (s *RoomStore) LeaveRoom(ctx context.Context, roomID, playerID uuid.UUID) (*models.LeaveResult, *models.Room, error) {
	var result *models.LeaveResult
	var remaining *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		n := room.PlayerNumber(playerID)
		if n == 0 {
			return ErrNotInRoom
		}

		switch {
		case n == 1 && room.Player2ID != nil:
			// host left with a guest present: guest takes over a fresh room
			q := `
			UPDATE rooms SET
				player1_id=player2_id, player2_id=NULL,
				player1_secret=NULL, player2_secret=NULL,
				player1_guesses='[]', player2_guesses='[]',
				turn=NULL, winner=NULL, game_state=$2
			WHERE id=$1
			RETURNING ` + roomColumns
			remaining, err = scanRoom(tx.QueryRow(ctx, q, roomID, models.StateWaitingForPlayers))
			if err != nil {
				return err
			}
			result = &models.LeaveResult{Action: models.LeavePromotedGuest, NewHostID: remaining.Player1ID}

		case n == 2 && room.Player1ID != nil:
			// guest left: host keeps the room, game fields reset
			q := `
			UPDATE rooms SET
				player2_id=NULL,
				player1_secret=NULL, player2_secret=NULL,
				player1_guesses='[]', player2_guesses='[]',
				turn=NULL, winner=NULL, game_state=$2
			WHERE id=$1
			RETURNING ` + roomColumns
			remaining, err = scanRoom(tx.QueryRow(ctx, q, roomID, models.StateWaitingForPlayers))
			if err != nil {
				return err
			}
			result = &models.LeaveResult{Action: models.LeaveGuestLeft}

		default:
			// sole occupant left: an empty room must not persist
			q := `UPDATE rooms SET player1_id=NULL, player2_id=NULL, deleted_at=now() WHERE id=$1`
			if _, err := tx.Exec(ctx, q, roomID); err != nil {
				return err
			}
			result = &models.LeaveResult{Action: models.LeaveDeleted}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, remaining, nil
}

// AvailableRooms lists joinable rooms for the lobby, newest first.
func (s *RoomStore) AvailableRooms(ctx context.Context) ([]*models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE game_state=$1 AND deleted_at IS NULL
	ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, models.StateWaitingForPlayers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom fetches a live room by id.
func (s *RoomStore) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1 AND deleted_at IS NULL`
	r, err := scanRoom(s.pool.QueryRow(ctx, q, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	return r, err
}

// FindPlayerRoom locates the room the player currently occupies, matching
// either seat. Used for reconnection after a reload; (nil, nil) when the
// player is seated nowhere.
func (s *RoomStore) FindPlayerRoom(ctx context.Context, playerID uuid.UUID) (*models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE (player1_id=$1 OR player2_id=$1) AND deleted_at IS NULL
	LIMIT 1`
	r, err := scanRoom(s.pool.QueryRow(ctx, q, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}
