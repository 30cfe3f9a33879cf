package api

import (
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
)

// PostMessageRequest is the body of POST /api/v1/messages.
type PostMessageRequest struct {
	RoomID       string `json:"room_id"`
	Content      string `json:"content"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// MessageResponse wraps a stored message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

// CreateChatRequest is the body of POST /api/v1/chats.
type CreateChatRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// HistoryResponse lists recent messages of a chat, oldest first.
type HistoryResponse struct {
	RoomID   string           `json:"room_id"`
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
}

// PresenceResponse is the live presence of one user.
type PresenceResponse struct {
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	Since       time.Time `json:"since,omitzero"`
	Connections int       `json:"connections"`
}

// MembersResponse lists the users joined to a room.
type MembersResponse struct {
	RoomID  string   `json:"room_id"`
	Members []string `json:"members"`
	Typing  []string `json:"typing"`
}

// ErrorResponse is the API error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check body.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
