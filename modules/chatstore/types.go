package chatstore

import (
	"errors"
	"strings"
	"unicode/utf8"

	domain "github.com/example/chat-realtime/domain/chat"
)

// Validation constants
const (
	MaxChatNameLength = 100
	MaxMessageLength  = 5000
	MaxParticipants   = 256
	MaxHistoryLimit   = 100
)

// Validation and lookup errors
var (
	ErrChatNameTooLong     = errors.New("chat name exceeds maximum length")
	ErrChatNameInvalid     = errors.New("chat name contains invalid characters")
	ErrTooFewParticipants  = errors.New("a chat needs at least two participants")
	ErrTooManyParticipants = errors.New("chat exceeds maximum participants")
	ErrMessageEmpty        = errors.New("message content cannot be empty")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")
	ErrMessageInvalid      = errors.New("message contains invalid characters")
	ErrChatNotFound        = errors.New("chat not found")
	ErrNotParticipant      = errors.New("user is not a participant of this chat")
)

// Service names registered by the chatstore module.
const (
	ServiceIsParticipant  = "is-participant"
	ServicePersistMessage = "persist-message"
	ServiceContactsOf     = "contacts-of"
	ServiceCreateChat     = "create-chat"
	ServiceHistory        = "history"
	ServiceParticipantsOf = "participants-of"
)

// Error codes carried in service responses.
const (
	CodeNotFound       = "not_found"
	CodeNotParticipant = "not_participant"
	CodeInvalid        = "invalid"
	CodeInternal       = "internal"
)

// ValidateChatName validates a chat name. Empty names are allowed for 1:1 chats.
func ValidateChatName(name string) error {
	if len(name) > MaxChatNameLength {
		return ErrChatNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrChatNameInvalid
	}
	return nil
}

// ValidateMessage validates message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// normalizeParticipants dedups and drops empty IDs, keeping first-seen order.
func normalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ValidateParticipants normalizes and validates a participant list.
func ValidateParticipants(ids []string) ([]string, error) {
	out := normalizeParticipants(ids)
	if len(out) < 2 {
		return nil, ErrTooFewParticipants
	}
	if len(out) > MaxParticipants {
		return nil, ErrTooManyParticipants
	}
	return out, nil
}

// errorCode maps store errors to response codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrChatNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, ErrMessageEmpty), errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrMessageInvalid), errors.Is(err, ErrChatNameTooLong),
		errors.Is(err, ErrChatNameInvalid), errors.Is(err, ErrTooFewParticipants),
		errors.Is(err, ErrTooManyParticipants):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

// IsParticipantRequest asks whether a user belongs to a chat.
type IsParticipantRequest struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

// IsParticipantResponse answers IsParticipantRequest.
type IsParticipantResponse struct {
	Participant bool   `json:"participant"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PersistMessageRequest stores a message.
type PersistMessageRequest struct {
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
}

// PersistMessageResponse carries the stored message.
type PersistMessageResponse struct {
	Message *domain.Message `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ContactsOfRequest asks for a user's contacts.
type ContactsOfRequest struct {
	UserID string `json:"user_id"`
}

// ContactsOfResponse lists users sharing a chat with the requester.
type ContactsOfResponse struct {
	Contacts []string `json:"contacts"`
	Code     string   `json:"code,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ParticipantsOfRequest asks for the members of a chat.
type ParticipantsOfRequest struct {
	ChatID string `json:"chat_id"`
}

// ParticipantsOfResponse lists a chat's participants.
type ParticipantsOfResponse struct {
	Participants []string `json:"participants"`
	Code         string   `json:"code,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// CreateChatRequest creates a chat.
type CreateChatRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// CreateChatResponse carries the created chat.
type CreateChatResponse struct {
	Chat  *domain.Chat `json:"chat,omitempty"`
	Code  string       `json:"code,omitempty"`
	Error string       `json:"error,omitempty"`
}

// HistoryRequest asks for a chat's most recent messages.
type HistoryRequest struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit"`
}

// HistoryResponse carries messages oldest first.
type HistoryResponse struct {
	Messages []domain.Message `json:"messages"`
	Code     string           `json:"code,omitempty"`
	Error    string           `json:"error,omitempty"`
}
