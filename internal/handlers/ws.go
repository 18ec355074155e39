// internal/handlers/ws.go
//
// WebSocket subscription endpoints. A room socket streams change events for
// one room; a lobby socket streams payload-free nudges for rooms entering
// or leaving the waiting_for_players listing. Sockets are one-way: clients
// mutate through the REST surface, so closing a socket does NOT leave the
// room. Leaving is always an explicit call.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MicksProjects/numbers-game/internal/realtime"
)

const wsSubprotocol = "numbers-game"

// RoomWSHandler subscribes the caller to all change events of one room,
// addressed as /rooms/ws/{roomID}. The current row is pushed immediately as
// an update so the client starts from a consistent snapshot; consumers must
// tolerate receiving their own writes twice.
func (s *Server) RoomWSHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomIDStr := strings.TrimPrefix(r.URL.Path, "/rooms/ws/")
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		// identity must be resolved (and any cookie set) before the
		// connection is hijacked by the websocket upgrade
		playerID, err := s.EnsurePlayer(w, r)
		if err != nil {
			http.Error(w, "failed to establish player identity", http.StatusInternalServerError)
			return
		}

		room, err := s.Store.GetRoom(r.Context(), roomID)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{wsSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != wsSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the numbers-game subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sub := &realtime.Subscriber{
			PlayerID: playerID,
			OutChan:  make(chan realtime.Event, 16),
			Cancel:   cancel,
		}

		s.Hub.SubscribeRoom(roomID, sub)
		defer s.Hub.UnsubscribeRoom(roomID, sub)
		logger.Infof("Player %v (%s) subscribed to room %v", playerID, r.RemoteAddr, roomID)

		// initial snapshot
		sub.Write(realtime.NewRoomEvent(realtime.EventUpdate, room.Redacted(playerID)))

		go eventWritePump(ctx, c, sub, logger)
		drainPump(ctx, c, logger)
		logger.Infof("Player %v unsubscribed from room %v", playerID, roomID)
	}
}

// LobbyWSHandler subscribes the caller to lobby change nudges. The payload
// is never sufficient on its own; the client refetches the listing on every
// event.
func (s *Server) LobbyWSHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, err := s.EnsurePlayer(w, r)
		if err != nil {
			http.Error(w, "failed to establish player identity", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{wsSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != wsSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the numbers-game subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sub := &realtime.Subscriber{
			PlayerID: playerID,
			OutChan:  make(chan realtime.Event, 16),
			Cancel:   cancel,
		}

		s.Hub.SubscribeLobby(sub)
		defer s.Hub.UnsubscribeLobby(sub)
		logger.Infof("Player %v (%s) subscribed to lobby", playerID, r.RemoteAddr)

		go eventWritePump(ctx, c, sub, logger)
		drainPump(ctx, c, logger)
	}
}

// eventWritePump forwards hub events to the socket, pinging periodically to
// detect dead peers. After delivering a delete event it closes the socket:
// the room is gone and the client belongs back in the lobby.
func eventWritePump(ctx context.Context, c *websocket.Conn, sub *realtime.Subscriber, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.OutChan:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal event for player %v: %v", sub.PlayerID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for player %v: %v", sub.PlayerID, err)
				return
			}

			if ev.Type == realtime.EventDelete {
				c.Close(RoomGoneClose, "room deleted")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping player %v: %v", sub.PlayerID, err)
				return
			}
		}
	}
}

// drainPump reads until the peer closes or the context ends. Inbound
// messages carry no meaning on a subscription socket and are discarded.
func drainPump(ctx context.Context, c *websocket.Conn, logger *logrus.Logger) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Debugf("websocket read ended: %v", err)
			}
			return
		}
	}
}
