// Package chatstore persists chats, messages and user status, and answers
// participant questions for the realtime module.
package chatstore

import (
	"context"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
)

// Store is the persistence contract used by the chatstore module.
type Store interface {
	CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)
	IsParticipant(ctx context.Context, userID, chatID string) (bool, error)
	PersistMessage(ctx context.Context, senderID, chatID, content string) (*domain.Message, error)
	History(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	ContactsOf(ctx context.Context, userID string) ([]string, error)
	SetUserStatus(ctx context.Context, userID, status string, at time.Time) error
	UserStatus(ctx context.Context, userID string) (*domain.UserStatus, error)
	Ping(ctx context.Context) error
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
