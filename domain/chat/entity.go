package chat

import "time"

// Chat is a persisted conversation (1:1 or group). Its ID doubles as the
// realtime room ID.
type Chat struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IsGroup         bool      `json:"is_group"`
	Participants    []string  `json:"participants"`
	LatestMessageID string    `json:"latest_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is listed in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	ReadBy    []string  `json:"read_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStatus values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// UserStatus is the last known status of a user as mirrored into storage.
type UserStatus struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
