// internal/handlers/rooms_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MicksProjects/numbers-game/internal/auth"
	"github.com/MicksProjects/numbers-game/internal/database"
	"github.com/MicksProjects/numbers-game/internal/game"
	"github.com/MicksProjects/numbers-game/internal/models"
	"github.com/MicksProjects/numbers-game/internal/realtime"
)

// memStore is an in-memory RoomStore with the same semantics and sentinels
// as database.RoomStore, so handler tests run without Postgres.
type memStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[uuid.UUID]*models.Room)}
}

func (m *memStore) live(roomID uuid.UUID) (*models.Room, error) {
	r, ok := m.rooms[roomID]
	if !ok || r.DeletedAt != nil {
		return nil, database.ErrRoomNotFound
	}
	return r, nil
}

func (m *memStore) CreateRoom(_ context.Context, hostID uuid.UUID, roomName, password string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &models.Room{
		ID:             uuid.New(),
		RoomName:       strings.TrimSpace(roomName),
		Player1ID:      &hostID,
		Player1Guesses: []models.Guess{},
		Player2Guesses: []models.Guess{},
		GameState:      models.StateWaitingForPlayers,
		CreatedAt:      time.Now(),
	}
	if pw := strings.TrimSpace(password); pw != "" {
		hash, err := auth.HashRoomPassword(pw)
		if err != nil {
			return nil, err
		}
		r.PasswordHash = &hash
	}
	m.rooms[r.ID] = r
	return r, nil
}

func (m *memStore) JoinRoom(_ context.Context, roomID, playerID uuid.UUID, password string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.live(roomID)
	if err != nil {
		return nil, err
	}
	if r.PlayerNumber(playerID) != 0 {
		return r, nil
	}
	if r.GameState != models.StateWaitingForPlayers || r.Full() {
		return nil, database.ErrRoomFull
	}
	if r.PasswordHash != nil {
		ok, err := auth.CompareRoomPassword(password, *r.PasswordHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, database.ErrInvalidPassword
		}
	}
	r.Player2ID = &playerID
	r.GameState = models.StateWaitingForSecrets
	return r, nil
}

func (m *memStore) SetPlayerSecret(_ context.Context, roomID, playerID uuid.UUID, secret string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.live(roomID)
	if err != nil {
		return nil, err
	}
	n := r.PlayerNumber(playerID)
	if n == 0 {
		return nil, database.ErrNotInRoom
	}
	if r.SecretFor(n) != nil {
		return nil, database.ErrSecretAlreadySet
	}
	if n == 1 {
		r.Player1Secret = &secret
	} else {
		r.Player2Secret = &secret
	}
	if r.Player1Secret != nil && r.Player2Secret != nil {
		r.GameState = models.StateInProgress
		first := 1
		r.Turn = &first
	}
	return r, nil
}

func (m *memStore) SubmitGuess(_ context.Context, roomID, playerID uuid.UUID, guess string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.live(roomID)
	if err != nil {
		return nil, err
	}
	n := r.PlayerNumber(playerID)
	if n == 0 {
		return nil, database.ErrNotInRoom
	}
	if r.GameState != models.StateInProgress || r.Turn == nil || *r.Turn != n {
		return nil, database.ErrTurnConflict
	}

	correct := game.Score(guess, *r.SecretFor(game.NextTurn(n)))
	entry := models.Guess{Guess: guess, Correct: correct}
	if n == 1 {
		r.Player1Guesses = append(r.Player1Guesses, entry)
	} else {
		r.Player2Guesses = append(r.Player2Guesses, entry)
	}

	if correct == game.CodeLength {
		r.Winner = &n
		r.GameState = models.StateFinished
	} else {
		next := game.NextTurn(n)
		r.Turn = &next
	}
	return r, nil
}

func (m *memStore) LeaveRoom(_ context.Context, roomID, playerID uuid.UUID) (*models.LeaveResult, *models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.live(roomID)
	if err != nil {
		return nil, nil, err
	}
	n := r.PlayerNumber(playerID)
	if n == 0 {
		return nil, nil, database.ErrNotInRoom
	}

	reset := func() {
		r.Player1Secret, r.Player2Secret = nil, nil
		r.Player1Guesses, r.Player2Guesses = []models.Guess{}, []models.Guess{}
		r.Turn, r.Winner = nil, nil
		r.GameState = models.StateWaitingForPlayers
	}

	switch {
	case n == 1 && r.Player2ID != nil:
		r.Player1ID = r.Player2ID
		r.Player2ID = nil
		reset()
		return &models.LeaveResult{Action: models.LeavePromotedGuest, NewHostID: r.Player1ID}, r, nil
	case n == 2 && r.Player1ID != nil:
		r.Player2ID = nil
		reset()
		return &models.LeaveResult{Action: models.LeaveGuestLeft}, r, nil
	default:
		now := time.Now()
		r.Player1ID, r.Player2ID = nil, nil
		r.DeletedAt = &now
		return &models.LeaveResult{Action: models.LeaveDeleted}, nil, nil
	}
}

func (m *memStore) AvailableRooms(_ context.Context) ([]*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Room
	for _, r := range m.rooms {
		if r.GameState == models.StateWaitingForPlayers && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetRoom(_ context.Context, roomID uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(roomID)
}

func (m *memStore) FindPlayerRoom(_ context.Context, playerID uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.DeletedAt == nil && r.PlayerNumber(playerID) != 0 {
			return r, nil
		}
	}
	return nil, nil
}

// recordingPublisher collects published events instead of hitting Redis.
type recordingPublisher struct {
	mu    sync.Mutex
	room  []realtime.Event
	lobby []realtime.Event
}

func (p *recordingPublisher) PublishRoom(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.room = append(p.room, ev)
	return nil
}

func (p *recordingPublisher) PublishLobby(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lobby = append(p.lobby, ev)
	return nil
}

func (p *recordingPublisher) lastRoomEvent() *realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.room) == 0 {
		return nil
	}
	ev := p.room[len(p.room)-1]
	return &ev
}

// testClient is one simulated browser: it keeps its player_token cookie
// across calls the way a real client would.
type testClient struct {
	t      *testing.T
	cookie string
}

func newTestServer(t *testing.T) (*Server, *memStore, *recordingPublisher) {
	t.Helper()
	identity, err := auth.NewEphemeralProvider()
	require.NoError(t, err)

	store := newMemStore()
	pub := &recordingPublisher{}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewServer(store, pub, realtime.NewHub(), identity, logger), store, pub
}

func (c *testClient) do(method, path string, body interface{}, handler http.HandlerFunc) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.cookie != "" {
		req.Header.Set("Cookie", playerCookieName+"="+c.cookie)
	}
	w := httptest.NewRecorder()
	handler(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name == playerCookieName {
			c.cookie = ck.Value
		}
	}
	return w
}

func decodeRoom(t *testing.T, w *httptest.ResponseRecorder) *models.Room {
	t.Helper()
	var room models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	return &room
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

// TestFullGameFlow walks the whole lifecycle: create, join, secrets, an
// alternating guess exchange, and a winning guess.
func TestFullGameFlow(t *testing.T) {
	srv, _, pub := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}

	// host creates room "Alpha", no password
	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Alpha"}, srv.CreateRoomHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room := decodeRoom(t, w)
	require.Equal(t, models.StateWaitingForPlayers, room.GameState)
	assert.False(t, room.HasPassword)
	roomID := room.ID.String()

	// the lobby heard about it
	require.NotEmpty(t, pub.lobby)
	assert.Equal(t, realtime.EventInsert, pub.lobby[0].Type)

	// guest joins
	w = guest.do("POST", "/rooms/join", map[string]string{"room_id": roomID}, srv.JoinRoomHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room = decodeRoom(t, w)
	assert.Equal(t, models.StateWaitingForSecrets, room.GameState)
	require.NotNil(t, room.Player2ID)

	// host sets secret 1234, guest sets secret 5678
	w = host.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "1234"}, srv.SetSecretHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room = decodeRoom(t, w)
	assert.Equal(t, models.StateWaitingForSecrets, room.GameState)

	w = guest.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "5678"}, srv.SetSecretHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room = decodeRoom(t, w)
	assert.Equal(t, models.StateInProgress, room.GameState)
	require.NotNil(t, room.Turn)
	assert.Equal(t, 1, *room.Turn)
	assert.Nil(t, room.Player1Secret, "guest response must not contain host secret")

	// host guesses 5671 against 5678: three exact positions, turn flips
	w = host.do("POST", "/rooms/guess", map[string]string{"room_id": roomID, "guess": "5671"}, srv.SubmitGuessHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room = decodeRoom(t, w)
	require.Len(t, room.Player1Guesses, 1)
	assert.Equal(t, 3, room.Player1Guesses[0].Correct)
	assert.Equal(t, 2, *room.Turn)

	// guest answers out of turn order is fine now; host trying again is not
	w = host.do("POST", "/rooms/guess", map[string]string{"room_id": roomID, "guess": "5678"}, srv.SubmitGuessHandler)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TURN_CONFLICT", decodeError(t, w).Code)

	// guest guesses the host's exact secret and wins
	w = guest.do("POST", "/rooms/guess", map[string]string{"room_id": roomID, "guess": "1234"}, srv.SubmitGuessHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room = decodeRoom(t, w)
	require.NotNil(t, room.Winner)
	assert.Equal(t, 2, *room.Winner)
	assert.Equal(t, models.StateFinished, room.GameState)
	assert.Equal(t, 2, *room.Turn, "turn unchanged after a winning guess")
	require.Len(t, room.Player2Guesses, 1)
	assert.Equal(t, 4, room.Player2Guesses[0].Correct)

	// no further guess mutates anything
	w = host.do("POST", "/rooms/guess", map[string]string{"room_id": roomID, "guess": "5678"}, srv.SubmitGuessHandler)
	require.Equal(t, http.StatusConflict, w.Code)

	ev := pub.lastRoomEvent()
	require.NotNil(t, ev)
	assert.Equal(t, realtime.EventUpdate, ev.Type)
}

func TestJoinPasswordProtectedRoom(t *testing.T) {
	srv, store, _ := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}

	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Secret Club", "password": "sesame"}, srv.CreateRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	room := decodeRoom(t, w)
	assert.True(t, room.HasPassword)

	// wrong password: rejected, room unchanged
	w = guest.do("POST", "/rooms/join", map[string]string{"room_id": room.ID.String(), "password": "open"}, srv.JoinRoomHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_PASSWORD", decodeError(t, w).Code)

	stored, err := store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Player2ID)
	assert.Equal(t, models.StateWaitingForPlayers, stored.GameState)

	// right password: seated
	w = guest.do("POST", "/rooms/join", map[string]string{"room_id": room.ID.String(), "password": "sesame"}, srv.JoinRoomHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestJoinFullRoom(t *testing.T) {
	srv, _, _ := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}
	third := &testClient{t: t}

	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Duo"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)

	w = guest.do("POST", "/rooms/join", map[string]string{"room_id": room.ID.String()}, srv.JoinRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)

	w = third.do("POST", "/rooms/join", map[string]string{"room_id": room.ID.String()}, srv.JoinRoomHandler)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ROOM_FULL", decodeError(t, w).Code)
}

func TestLeaveOutcomes(t *testing.T) {
	srv, store, pub := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}

	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Churn"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)
	roomID := room.ID.String()

	guest.do("POST", "/rooms/join", map[string]string{"room_id": roomID}, srv.JoinRoomHandler)
	host.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "1111"}, srv.SetSecretHandler)
	guest.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "2222"}, srv.SetSecretHandler)

	// guest leaves mid-game: host keeps a reset room
	w = guest.do("POST", "/rooms/leave", map[string]string{"room_id": roomID}, srv.LeaveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.LeaveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.LeaveGuestLeft, res.Action)

	stored, err := store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForPlayers, stored.GameState)
	assert.Nil(t, stored.Player2ID)
	assert.Nil(t, stored.Player1Secret)
	assert.Nil(t, stored.Turn)
	assert.Empty(t, stored.Player1Guesses)

	// guest rejoins, then the host leaves: guest is promoted
	guest.do("POST", "/rooms/join", map[string]string{"room_id": roomID}, srv.JoinRoomHandler)
	w = host.do("POST", "/rooms/leave", map[string]string{"room_id": roomID}, srv.LeaveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.LeavePromotedGuest, res.Action)
	require.NotNil(t, res.NewHostID)

	stored, err = store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, *res.NewHostID, *stored.Player1ID)
	assert.Nil(t, stored.Player2ID)

	// the promoted player leaves too: room is gone
	w = guest.do("POST", "/rooms/leave", map[string]string{"room_id": roomID}, srv.LeaveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.LeaveDeleted, res.Action)

	_, err = store.GetRoom(context.Background(), room.ID)
	assert.ErrorIs(t, err, database.ErrRoomNotFound)

	ev := pub.lastRoomEvent()
	require.NotNil(t, ev)
	assert.Equal(t, realtime.EventDelete, ev.Type)
}

func TestValidationNeverReachesStore(t *testing.T) {
	srv, store, _ := newTestServer(t)
	c := &testClient{t: t}

	w := c.do("POST", "/rooms/create", map[string]string{"room_name": "   "}, srv.CreateRoomHandler)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.rooms)

	w = c.do("POST", "/rooms/create", map[string]string{"room_name": "Valid"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)

	for _, bad := range []string{"", "123", "12345", "12a4"} {
		w = c.do("POST", "/rooms/secret", map[string]string{"room_id": room.ID.String(), "secret": bad}, srv.SetSecretHandler)
		assert.Equal(t, http.StatusBadRequest, w.Code, "secret %q must be rejected", bad)
		w = c.do("POST", "/rooms/guess", map[string]string{"room_id": room.ID.String(), "guess": bad}, srv.SubmitGuessHandler)
		assert.Equal(t, http.StatusBadRequest, w.Code, "guess %q must be rejected", bad)
	}
}

func TestSecretSetExactlyOnce(t *testing.T) {
	srv, _, _ := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}

	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Once"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)
	roomID := room.ID.String()
	guest.do("POST", "/rooms/join", map[string]string{"room_id": roomID}, srv.JoinRoomHandler)

	w = host.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "1234"}, srv.SetSecretHandler)
	require.Equal(t, http.StatusOK, w.Code)

	w = host.do("POST", "/rooms/secret", map[string]string{"room_id": roomID, "secret": "9999"}, srv.SetSecretHandler)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SECRET_ALREADY_SET", decodeError(t, w).Code)
}

func TestResolveRoomLink(t *testing.T) {
	srv, _, _ := newTestServer(t)
	host := &testClient{t: t}
	guest := &testClient{t: t}

	w := host.do("POST", "/rooms/create", map[string]string{"room_name": "Linked", "password": "pw"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)
	roomID := room.ID.String()

	// the host following their own link reconnects
	w = host.do("POST", "/rooms/resolve", map[string]string{"room_id": roomID}, srv.ResolveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	var res resolveRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "reconnected", res.Status)

	// a stranger is told a password is needed, without being seated
	w = guest.do("POST", "/rooms/resolve", map[string]string{"room_id": roomID}, srv.ResolveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "password_required", res.Status)

	// with the password, the link joins directly
	w = guest.do("POST", "/rooms/resolve", map[string]string{"room_id": roomID, "password": "pw"}, srv.ResolveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "joined", res.Status)
	require.NotNil(t, res.Room)

	// the room is full now, so a third resolver gets unavailable
	third := &testClient{t: t}
	w = third.do("POST", "/rooms/resolve", map[string]string{"room_id": roomID}, srv.ResolveRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "unavailable", res.Status)
}

func TestMyRoomReconnection(t *testing.T) {
	srv, _, _ := newTestServer(t)
	c := &testClient{t: t}

	// before creating anything: null
	w := c.do("GET", "/rooms/mine", nil, srv.MyRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", strings.TrimSpace(w.Body.String()))

	w = c.do("POST", "/rooms/create", map[string]string{"room_name": "Mine"}, srv.CreateRoomHandler)
	room := decodeRoom(t, w)

	// same cookie, fresh "page load": the room is found again
	w = c.do("GET", "/rooms/mine", nil, srv.MyRoomHandler)
	require.Equal(t, http.StatusOK, w.Code)
	found := decodeRoom(t, w)
	assert.Equal(t, room.ID, found.ID)
}

func TestListRoomsRedaction(t *testing.T) {
	srv, _, _ := newTestServer(t)
	host := &testClient{t: t}
	other := &testClient{t: t}

	host.do("POST", "/rooms/create", map[string]string{"room_name": "Open", "password": "pw"}, srv.CreateRoomHandler)

	w := other.do("GET", "/rooms/list", nil, srv.ListRoomsHandler)
	require.Equal(t, http.StatusOK, w.Code)

	var rooms []*models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].HasPassword)
	assert.NotContains(t, w.Body.String(), "argon2id")
}
