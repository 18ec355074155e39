// internal/realtime/event.go
package realtime

import (
	"github.com/google/uuid"

	"github.com/MicksProjects/numbers-game/internal/models"
)

// EventType mirrors the row-change kinds a subscriber can observe.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one room change notification. Room carries the full row while an
// event travels between server processes; the hub redacts it per subscriber
// before it reaches a client. Delete events carry only the room id. Lobby
// events carry no row at all: lobby subscribers refetch the listing, which
// keeps them consistent with filters like soft-deletion.
type Event struct {
	Type   EventType    `json:"eventType"`
	RoomID uuid.UUID    `json:"room_id"`
	Room   *models.Room `json:"room,omitempty"`
}

// NewRoomEvent builds an event for a surviving room row.
func NewRoomEvent(t EventType, room *models.Room) Event {
	return Event{Type: t, RoomID: room.ID, Room: room}
}

// NewDeleteEvent builds the "room gone" event.
func NewDeleteEvent(roomID uuid.UUID) Event {
	return Event{Type: EventDelete, RoomID: roomID}
}
