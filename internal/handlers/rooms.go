// internal/handlers/rooms.go
//
// REST surface for the room lifecycle. Validation failures are rejected
// here and never reach the store; business-rule rejections come back from
// the store as sentinels and are surfaced with machine codes; nothing is
// retried automatically.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MicksProjects/numbers-game/internal/game"
	"github.com/MicksProjects/numbers-game/internal/models"
	"github.com/MicksProjects/numbers-game/internal/realtime"
)

type createRoomRequest struct {
	RoomName string `json:"room_name"`
	Password string `json:"password"`
}

// CreateRoomHandler inserts a new waiting_for_players room hosted by the
// caller and announces it to the lobby.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	if strings.TrimSpace(req.RoomName) == "" {
		writeError(w, http.StatusBadRequest, "", "room name must not be empty")
		return
	}

	room, err := s.Store.CreateRoom(r.Context(), playerID, req.RoomName, req.Password)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventInsert, room), true)
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

type joinRoomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

// JoinRoomHandler seats the caller as the guest. The join itself is atomic
// in the store; a room that filled up in between comes back as ROOM_FULL.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}

	room, err := s.Store.JoinRoom(r.Context(), roomID, playerID, req.Password)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	// the room leaves the open listing, so the lobby needs a nudge too
	s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventUpdate, room), true)
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

type setSecretRequest struct {
	RoomID string `json:"room_id"`
	Secret string `json:"secret"`
}

// SetSecretHandler records the caller's 4-digit secret.
func (s *Server) SetSecretHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req setSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}
	if !game.ValidCode(req.Secret) {
		writeError(w, http.StatusBadRequest, "", "secret must be exactly 4 digits")
		return
	}

	room, err := s.Store.SetPlayerSecret(r.Context(), roomID, playerID, req.Secret)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventUpdate, room), false)
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

type submitGuessRequest struct {
	RoomID string `json:"room_id"`
	Guess  string `json:"guess"`
}

// SubmitGuessHandler scores a guess server-side. The turn precondition is
// checked atomically in the store; a lost race comes back as TURN_CONFLICT
// and the client should refetch rather than resubmit.
func (s *Server) SubmitGuessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req submitGuessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}
	if !game.ValidCode(req.Guess) {
		writeError(w, http.StatusBadRequest, "", "guess must be exactly 4 digits")
		return
	}

	room, err := s.Store.SubmitGuess(r.Context(), roomID, playerID, req.Guess)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventUpdate, room), false)
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

type leaveRoomRequest struct {
	RoomID string `json:"room_id"`
}

// LeaveRoomHandler removes the caller from the room. The store decides the
// outcome (delete / promote guest / reset for host) atomically; this is
// also the target of the best-effort page-unload beacon, which is just a
// normal POST that may never arrive.
func (s *Server) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req leaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}

	result, remaining, err := s.Store.LeaveRoom(r.Context(), roomID, playerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if result.Action == models.LeaveDeleted {
		s.publishRoomChange(r.Context(), realtime.NewDeleteEvent(roomID), true)
	} else {
		// the surviving room is back in waiting_for_players
		s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventUpdate, remaining), true)
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRoomsHandler returns the open-room listing for the lobby, newest
// first. Rows are redacted for a spectator: no secrets, only has_password.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.EnsurePlayer(w, r); err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	rooms, err := s.Store.AvailableRooms(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]*models.Room, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Redacted(uuid.Nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRoomHandler is a point lookup, redacted for the caller.
func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	roomID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}

	room, err := s.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

// MyRoomHandler locates the room the caller is seated in, if any, so a
// reloaded client can reconnect. Responds null when the caller is seated
// nowhere.
func (s *Server) MyRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	room, err := s.Store.FindPlayerRoom(r.Context(), playerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if room == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, room.Redacted(playerID))
}

type resolveRoomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

type resolveRoomResponse struct {
	// Status is one of reconnected, joined, password_required, unavailable.
	Status string       `json:"status"`
	Room   *models.Room `json:"room,omitempty"`
}

// ResolveRoomHandler backs shared room links: given a room id from a URL,
// it reconnects a player already seated, auto-joins an open unprotected
// room, or tells the client a password is needed without joining. Cleaning
// the id out of the URL afterwards is the client's job.
func (s *Server) ResolveRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID, err := s.EnsurePlayer(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to establish player identity")
		return
	}

	var req resolveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request payload")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid room id")
		return
	}

	room, err := s.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	switch {
	case room.PlayerNumber(playerID) != 0:
		writeJSON(w, http.StatusOK, resolveRoomResponse{Status: "reconnected", Room: room.Redacted(playerID)})
	case room.GameState != models.StateWaitingForPlayers:
		writeJSON(w, http.StatusOK, resolveRoomResponse{Status: "unavailable"})
	case room.PasswordHash != nil && req.Password == "":
		writeJSON(w, http.StatusOK, resolveRoomResponse{Status: "password_required"})
	default:
		joined, err := s.Store.JoinRoom(r.Context(), roomID, playerID, req.Password)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.publishRoomChange(r.Context(), realtime.NewRoomEvent(realtime.EventUpdate, joined), true)
		writeJSON(w, http.StatusOK, resolveRoomResponse{Status: "joined", Room: joined.Redacted(playerID)})
	}
}
