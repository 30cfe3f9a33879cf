package events

import (
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePersistedEvent is emitted after a message has been stored and is
// ready for fan-out to live connections.
type MessagePersistedEvent struct {
	Message            domain.Message `json:"message"`
	RoomID             string         `json:"room_id"`
	SenderConnectionID string         `json:"sender_connection_id,omitempty"`
}

// PresenceChangedEvent is emitted when a user transitions between online and
// offline.
type PresenceChangedEvent struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessagePersistedV1 = helper.EventDefinition[MessagePersistedEvent](
		"api",
		"MessagePersisted",
		"v1",
	)

	PresenceChangedV1 = helper.EventDefinition[PresenceChangedEvent](
		"realtime",
		"PresenceChanged",
		"v1",
	)
)
