package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/chat-realtime/config"
	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/example/chat-realtime/modules/chatstore"
	"github.com/example/chat-realtime/modules/realtime"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// mockValidator accepts tokens of the form "token-<user>".
type mockValidator struct{}

func (mockValidator) Validate(_ context.Context, token string) (string, error) {
	user, ok := strings.CutPrefix(token, "token-")
	if !ok || user == "" {
		return "", errors.New("invalid token")
	}
	return user, nil
}

// memoryChats is an in-memory chatstore.ChatPort.
type memoryChats struct {
	mu       sync.Mutex
	rooms    map[string][]string
	messages map[string][]domain.Message
	seq      int
	fail     error
}

func newMemoryChats(rooms map[string][]string) *memoryChats {
	return &memoryChats{rooms: rooms, messages: map[string][]domain.Message{}}
}

func (s *memoryChats) IsParticipant(_ context.Context, userID, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.rooms[roomID], userID), nil
}

func (s *memoryChats) PersistMessage(_ context.Context, senderID, roomID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if err := chatstore.ValidateMessage(content); err != nil {
		return nil, &chatstore.ValidationError{Message: err.Error()}
	}
	members, ok := s.rooms[roomID]
	if !ok {
		return nil, chatstore.ErrChatNotFound
	}
	if !slices.Contains(members, senderID) {
		return nil, chatstore.ErrNotParticipant
	}
	s.seq++
	msg := domain.Message{
		ID:        fmt.Sprintf("m%03d", s.seq),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return &msg, nil
}

func (s *memoryChats) ContactsOf(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, members := range s.rooms {
		if !slices.Contains(members, userID) {
			continue
		}
		for _, m := range members {
			if m != userID && !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (s *memoryChats) ParticipantsOf(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return nil, chatstore.ErrChatNotFound
	}
	return slices.Clone(members), nil
}

func (s *memoryChats) CreateChat(_ context.Context, name string, participants []string) (*domain.Chat, error) {
	ids, err := chatstore.ValidateParticipants(participants)
	if err != nil {
		return nil, &chatstore.ValidationError{Message: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	chat := &domain.Chat{
		ID:           fmt.Sprintf("c%03d", s.seq),
		Name:         name,
		IsGroup:      len(ids) > 2,
		Participants: ids,
		CreatedAt:    time.Now(),
	}
	s.rooms[chat.ID] = ids
	return chat, nil
}

func (s *memoryChats) History(_ context.Context, userID, roomID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return nil, chatstore.ErrChatNotFound
	}
	if !slices.Contains(members, userID) {
		return nil, chatstore.ErrNotParticipant
	}
	msgs := s.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message{}, msgs...), nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Port = "0"
	cfg.PresenceGrace = 0
	return cfg
}

// newTestModule wires a module to an in-memory store and a live hub without
// a service container or event bus.
func newTestModule(t *testing.T, cfg config.Config, chats *memoryChats) *Module {
	t.Helper()

	logger := &mockLogger{}
	hub := realtime.NewHub(realtime.Config{
		PresenceScope: cfg.PresenceScope,
		PresenceGrace: cfg.PresenceGrace,
		TypingTimeout: cfg.TypingTimeout,
		TypingSweep:   cfg.TypingSweep,
		QueueSize:     cfg.SendQueueSize,
	}, realtime.Dependencies{
		Auth:         mockValidator{},
		Participants: chats,
		Contacts:     chats,
		Roster:       chats,
		Messages:     chats,
	}, logger)
	hub.Start()
	t.Cleanup(hub.Stop)

	m := NewModule(cfg, logger)
	m.auth = mockValidator{}
	m.chats = chats
	m.SetHub(hub)
	return m
}

func newTestApp(t *testing.T, chats *memoryChats) (*Module, *fiber.App) {
	t.Helper()
	m := newTestModule(t, testConfig(), chats)
	return m, m.buildApp()
}
