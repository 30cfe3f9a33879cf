package chatstore

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ChatPort defines the chat operations other modules use.
type ChatPort interface {
	IsParticipant(ctx context.Context, userID, roomID string) (bool, error)
	PersistMessage(ctx context.Context, senderID, roomID, content string) (*domain.Message, error)
	ContactsOf(ctx context.Context, userID string) ([]string, error)
	ParticipantsOf(ctx context.Context, roomID string) ([]string, error)
	CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error)
	History(ctx context.Context, userID, roomID string, limit int) ([]domain.Message, error)
}

// Adapter implements ChatPort using the service container.
type Adapter struct {
	container mono.ServiceContainer
}

var _ ChatPort = (*Adapter)(nil)

// NewAdapter creates a new Adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("chatstore: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

func (a *Adapter) call(ctx context.Context, service string, req, resp any) error {
	return helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	)
}

// IsParticipant reports whether userID belongs to the chat behind roomID.
func (a *Adapter) IsParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	req := IsParticipantRequest{UserID: userID, ChatID: roomID}
	var resp IsParticipantResponse
	if err := a.call(ctx, ServiceIsParticipant, &req, &resp); err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return false, err
	}
	return resp.Participant, nil
}

// PersistMessage stores a message.
func (a *Adapter) PersistMessage(ctx context.Context, senderID, roomID, content string) (*domain.Message, error) {
	req := PersistMessageRequest{SenderID: senderID, ChatID: roomID, Content: content}
	var resp PersistMessageResponse
	if err := a.call(ctx, ServicePersistMessage, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// ContactsOf returns the users sharing a chat with userID.
func (a *Adapter) ContactsOf(ctx context.Context, userID string) ([]string, error) {
	req := ContactsOfRequest{UserID: userID}
	var resp ContactsOfResponse
	if err := a.call(ctx, ServiceContactsOf, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// ParticipantsOf returns every participant of the chat behind roomID.
func (a *Adapter) ParticipantsOf(ctx context.Context, roomID string) ([]string, error) {
	req := ParticipantsOfRequest{ChatID: roomID}
	var resp ParticipantsOfResponse
	if err := a.call(ctx, ServiceParticipantsOf, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// CreateChat creates a chat.
func (a *Adapter) CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error) {
	req := CreateChatRequest{Name: name, Participants: participants}
	var resp CreateChatResponse
	if err := a.call(ctx, ServiceCreateChat, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp.Chat, nil
}

// History returns recent messages of a chat userID belongs to.
func (a *Adapter) History(ctx context.Context, userID, roomID string, limit int) ([]domain.Message, error) {
	req := HistoryRequest{UserID: userID, ChatID: roomID, Limit: limit}
	var resp HistoryResponse
	if err := a.call(ctx, ServiceHistory, &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if err := responseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// responseError turns a response code back into a sentinel-wrapped error.
func responseError(code, message string) error {
	switch code {
	case "":
		return nil
	case CodeNotFound:
		return fmt.Errorf("%w: %s", ErrChatNotFound, message)
	case CodeNotParticipant:
		return fmt.Errorf("%w: %s", ErrNotParticipant, message)
	case CodeInvalid:
		return &ValidationError{Message: message}
	default:
		return fmt.Errorf("chatstore: %s", message)
	}
}

// ValidationError reports rejected input from the store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
