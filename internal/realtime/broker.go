// internal/realtime/broker.go
//
// Broker carries room change events between server processes over Redis
// pub/sub: every mutation is published to a per-room channel (and to the
// lobby channel when the open-room listing may have changed), and every
// process relays what it receives into its local Hub. With a single process
// the loop is the same, just shorter.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	roomChannelPrefix = "room:"
	lobbyChannel      = "rooms-lobby"
)

func roomChannel(roomID uuid.UUID) string {
	return roomChannelPrefix + roomID.String()
}

// ConnectRedis initializes a Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	dbIdx := 0
	if s := os.Getenv("REDIS_DB"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			dbIdx = v
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: dbIdx})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Broker publishes room change events and relays subscribed ones into a Hub.
type Broker struct {
	rdb *redis.Client
	log *logrus.Logger
}

// NewBroker wraps a connected Redis client.
func NewBroker(rdb *redis.Client, logger *logrus.Logger) *Broker {
	return &Broker{rdb: rdb, log: logger}
}

// PublishRoom sends ev to the room's channel. Subscribed processes fan it
// out to their local room subscribers.
func (b *Broker) PublishRoom(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := b.rdb.Publish(ctx, roomChannel(ev.RoomID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", roomChannel(ev.RoomID), err)
	}
	return nil
}

// PublishLobby sends a payload-free nudge to the lobby channel. The row is
// stripped: lobby subscribers refetch the listing rather than trusting the
// event payload.
func (b *Broker) PublishLobby(ctx context.Context, ev Event) error {
	data, err := json.Marshal(Event{Type: ev.Type, RoomID: ev.RoomID})
	if err != nil {
		return fmt.Errorf("failed to marshal lobby event: %w", err)
	}
	if err := b.rdb.Publish(ctx, lobbyChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", lobbyChannel, err)
	}
	return nil
}

// Listen relays events from Redis into the hub until ctx is cancelled.
// Reconnection on subscription drop is delegated to go-redis, which resumes
// the pattern subscription itself.
func (b *Broker) Listen(ctx context.Context, hub *Hub) {
	roomSub := b.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	lobbySub := b.rdb.Subscribe(ctx, lobbyChannel)
	defer roomSub.Close()
	defer lobbySub.Close()

	roomCh := roomSub.Channel()
	lobbyCh := lobbySub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-roomCh:
			if !ok {
				return
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				b.log.Warnf("realtime: dropping malformed room event: %v", err)
				continue
			}
			hub.BroadcastRoom(ev)
		case msg, ok := <-lobbyCh:
			if !ok {
				return
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				b.log.Warnf("realtime: dropping malformed lobby event: %v", err)
				continue
			}
			hub.BroadcastLobby(ev)
		}
	}
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
