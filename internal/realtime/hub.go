// internal/realtime/hub.go
package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// Subscriber is one live client subscription. OutChan is drained by the
// subscriber's write pump; Cancel stops the pump when the subscription is
// torn down.
type Subscriber struct {
	PlayerID uuid.UUID
	OutChan  chan Event
	Cancel   func()
}

// Write pushes an event non-blockingly. A slow consumer loses events rather
// than stalling the hub; delivery is at-least-once overall and a dropped
// update is superseded by the next full snapshot.
func (s *Subscriber) Write(ev Event) {
	select {
	case s.OutChan <- ev:
	default:
		log.Warnf("realtime: OutChan for player %s full, dropped %s event for room %s",
			s.PlayerID, ev.Type, ev.RoomID)
	}
}

// Hub fans room change events out to the WebSocket subscribers connected to
// this process. Room-scoped subscribers get redacted row snapshots; lobby
// subscribers get payload-free nudges to refetch the open-room listing.
type Hub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[*Subscriber]struct{}
	lobby map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*Subscriber]struct{}),
		lobby: make(map[*Subscriber]struct{}),
	}
}

// SubscribeRoom registers sub for all change events of one room.
func (h *Hub) SubscribeRoom(roomID uuid.UUID, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Subscriber]struct{})
	}
	h.rooms[roomID][sub] = struct{}{}
}

// UnsubscribeRoom removes sub and cancels its pump.
func (h *Hub) UnsubscribeRoom(roomID uuid.UUID, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if sub.Cancel != nil {
		sub.Cancel()
	}
}

// SubscribeLobby registers sub for lobby change nudges.
func (h *Hub) SubscribeLobby(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lobby[sub] = struct{}{}
}

// UnsubscribeLobby removes sub and cancels its pump.
func (h *Hub) UnsubscribeLobby(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lobby, sub)
	if sub.Cancel != nil {
		sub.Cancel()
	}
}

// BroadcastRoom delivers ev to every subscriber of ev.RoomID, redacting the
// row per subscriber so no one receives the opponent's plaintext secret.
func (h *Hub) BroadcastRoom(ev Event) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.rooms[ev.RoomID]))
	for sub := range h.rooms[ev.RoomID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		out := ev
		if ev.Room != nil {
			out.Room = ev.Room.Redacted(sub.PlayerID)
		}
		sub.Write(out)
	}
}

// BroadcastLobby delivers a payload-free nudge to every lobby subscriber.
func (h *Hub) BroadcastLobby(ev Event) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.lobby))
	for sub := range h.lobby {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	nudge := Event{Type: ev.Type, RoomID: ev.RoomID}
	for _, sub := range subs {
		sub.Write(nudge)
	}
}
