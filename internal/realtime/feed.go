// Package realtime carries row change notifications for a room's spots and
// votes from the database to every subscribed client.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of row change
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionResync tells subscribers that events may have been lost
	ActionResync Action = "RESYNC"
)

// Tables that emit change events
const (
	TableSpots = "spots"
	TableVotes = "votes"
)

// DefaultChannel is the notification channel, subject prefix and pub/sub
// channel name the drivers share
const DefaultChannel = "spot_changes"

// ChangeEvent signals that a row of a room changed. Receivers treat it only
// as a prompt to re-fetch; the payload is never merged.
type ChangeEvent struct {
	RoomID string    `json:"room_id"`
	Table  string    `json:"table"`
	Action Action    `json:"action"`
	RowID  int64     `json:"row_id,omitempty"`
	At     time.Time `json:"at"`
}

// Subscription delivers the change events of one room until closed
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Feed opens per-room subscriptions
type Feed interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Publisher emits change events
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// NopPublisher drops every event. Used when the database itself emits
// notifications.
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }

// Encode serializes an event for a wire transport
func Encode(event ChangeEvent) ([]byte, error) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode change event: %w", err)
	}
	return data, nil
}

// Decode parses an event received from a wire transport
func Decode(data []byte) (ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if event.RoomID == "" && event.Action != ActionResync {
		return ChangeEvent{}, fmt.Errorf("decode change event: missing room_id")
	}
	return event, nil
}
