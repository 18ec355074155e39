// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MicksProjects/numbers-game/internal/auth"
	"github.com/MicksProjects/numbers-game/internal/database"
	"github.com/MicksProjects/numbers-game/internal/models"
	"github.com/MicksProjects/numbers-game/internal/realtime"
)

// RoomStore is the room data-access boundary the handlers talk to. It is
// implemented by database.RoomStore; tests substitute an in-memory fake.
type RoomStore interface {
	CreateRoom(ctx context.Context, hostID uuid.UUID, roomName, password string) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID, playerID uuid.UUID, password string) (*models.Room, error)
	SetPlayerSecret(ctx context.Context, roomID, playerID uuid.UUID, secret string) (*models.Room, error)
	SubmitGuess(ctx context.Context, roomID, playerID uuid.UUID, guess string) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID, playerID uuid.UUID) (*models.LeaveResult, *models.Room, error)
	AvailableRooms(ctx context.Context) ([]*models.Room, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	FindPlayerRoom(ctx context.Context, playerID uuid.UUID) (*models.Room, error)
}

// RoomPublisher publishes room change events after successful mutations.
type RoomPublisher interface {
	PublishRoom(ctx context.Context, ev realtime.Event) error
	PublishLobby(ctx context.Context, ev realtime.Event) error
}

// Server holds the room store, realtime fanout, and identity provider for
// all HTTP and WebSocket handlers.
type Server struct {
	Store    RoomStore
	Events   RoomPublisher
	Hub      *realtime.Hub
	Identity auth.Provider
	Log      *logrus.Logger
}

// NewServer wires up a handler server.
func NewServer(store RoomStore, events RoomPublisher, hub *realtime.Hub, identity auth.Provider, logger *logrus.Logger) *Server {
	return &Server{Store: store, Events: events, Hub: hub, Identity: identity, Log: logger}
}

// apiError is the JSON error body. Code distinguishes expected business
// rejections so the client can pick severity; it is empty for generic
// failures.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

// writeStoreError maps store sentinels to HTTP statuses and machine codes.
// Anything unrecognized is a generic store failure: logged, no code, no
// automatic retry.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found")
	case errors.Is(err, database.ErrRoomFull):
		writeError(w, http.StatusConflict, "ROOM_FULL", "room is full or no longer available")
	case errors.Is(err, database.ErrInvalidPassword):
		writeError(w, http.StatusForbidden, "INVALID_PASSWORD", "incorrect password")
	case errors.Is(err, database.ErrNotInRoom):
		writeError(w, http.StatusForbidden, "NOT_IN_ROOM", "you are not in this room")
	case errors.Is(err, database.ErrSecretAlreadySet):
		writeError(w, http.StatusConflict, "SECRET_ALREADY_SET", "secret already set")
	case errors.Is(err, database.ErrTurnConflict):
		writeError(w, http.StatusConflict, "TURN_CONFLICT", "not your turn, refetch the room state")
	default:
		s.Log.Errorf("store error: %v", err)
		writeError(w, http.StatusInternalServerError, "", "internal store error")
	}
}

// publishRoomChange pushes ev to the room channel, and to the lobby channel
// when the open-room listing may have changed. Publication failures are
// logged, not surfaced: the mutation already committed and clients converge
// on their next fetch.
func (s *Server) publishRoomChange(ctx context.Context, ev realtime.Event, lobbyRelevant bool) {
	if err := s.Events.PublishRoom(ctx, ev); err != nil {
		s.Log.Warnf("failed to publish room event for %s: %v", ev.RoomID, err)
	}
	if lobbyRelevant {
		if err := s.Events.PublishLobby(ctx, ev); err != nil {
			s.Log.Warnf("failed to publish lobby event for %s: %v", ev.RoomID, err)
		}
	}
}
