// Package realtime bridges the backend's change-notification feed into typed
// per-entity events. Rows mutated anywhere in the ecosystem are announced on
// a Redis channel per logical table; subscribers receive create/update/delete
// events for the lifetime of their own scope.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// EventType tags a change notification.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change notification: the raw event tag and the full row as
// provided by the backend.
type Event struct {
	Type    EventType       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge opens table-scoped subscriptions against the Redis change feed.
type Bridge struct {
	rdb    *redis.Client
	prefix string
}

func NewBridge(rdb *redis.Client) *Bridge {
	return &Bridge{rdb: rdb, prefix: "realtime:"}
}

// Subscribe opens one change-stream subscription for tableID and forwards
// every decoded notification to onEvent. The returned unsubscribe function is
// idempotent and guarantees no onEvent invocation after it returns; the
// caller owns the subscription's lifetime and must release it when its scope
// ends.
func (b *Bridge) Subscribe(tableID string, onEvent func(Event)) (func(), error) {
	pubsub := b.rdb.Subscribe(context.Background(), b.prefix+tableID)
	// Force the SUBSCRIBE handshake so a dead transport fails here, not
	// silently in the reader.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", tableID, err)
	}

	var mu sync.Mutex
	closed := false

	go func() {
		for msg := range pubsub.Channel() {
			event, ok := decodeEnvelope(tableID, msg.Payload)
			if !ok {
				continue
			}
			mu.Lock()
			if !closed {
				onEvent(event)
			}
			mu.Unlock()
		}
	}()

	unsubscribe := func() {
		mu.Lock()
		alreadyClosed := closed
		closed = true
		mu.Unlock()
		if alreadyClosed {
			return
		}
		if err := pubsub.Close(); err != nil {
			log.Printf("realtime: close subscription %s: %v", tableID, err)
		}
	}
	return unsubscribe, nil
}

// Publish announces a row change on the table's channel. The HTTP mutation
// surface and sibling services are the producers.
func (b *Bridge) Publish(ctx context.Context, tableID string, eventType EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	envelope, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.prefix+tableID, envelope).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", tableID, err)
	}
	return nil
}

func decodeEnvelope(tableID, payload string) (Event, bool) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("realtime: drop malformed notification on %s: %v", tableID, err)
		return Event{}, false
	}
	switch event.Type {
	case EventCreate, EventUpdate, EventDelete:
		return event, true
	default:
		log.Printf("realtime: drop unknown event tag %q on %s", event.Type, tableID)
		return Event{}, false
	}
}
