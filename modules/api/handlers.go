package api

import (
	"context"
	"errors"
	"slices"

	"github.com/example/chat-realtime/events"
	"github.com/example/chat-realtime/modules/chatstore"
	"github.com/example/chat-realtime/modules/realtime"
	"github.com/gofiber/fiber/v2"
)

const defaultHistoryLimit = 50

// healthCheck handles GET /health.
func (m *Module) healthCheck(c *fiber.Ctx) error {
	stats := m.hub.Stats()
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"service":      "chat-realtime",
			"connections":  stats.Connections,
			"online_users": stats.OnlineUsers,
			"rooms":        stats.Rooms,
		},
	})
}

// postMessage handles POST /api/v1/messages.
func (m *Module) postMessage(c *fiber.Ctx) error {
	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if req.RoomID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "room_id is required",
		})
	}

	userID := userIDFrom(c)
	msg, err := m.chats.PersistMessage(c.UserContext(), userID, req.RoomID, req.Content)
	if err != nil {
		return m.storeError(c, err)
	}

	// Only the caller's own connection can be skipped on fan-out.
	senderConnID := req.ConnectionID
	if senderConnID != "" && !m.hub.OwnsConnection(senderConnID, userID) {
		m.logger.Debug("Ignoring foreign connection_id", "userID", userID, "connID", senderConnID)
		senderConnID = ""
	}

	ev := events.MessagePersistedEvent{
		Message:            *msg,
		RoomID:             req.RoomID,
		SenderConnectionID: senderConnID,
	}
	m.dispatch(c.UserContext(), ev)

	return c.Status(fiber.StatusCreated).JSON(MessageResponse{Message: msg})
}

// dispatch hands a stored message to the realtime module over the bus, or to
// the hub directly when no bus is attached or publishing fails.
func (m *Module) dispatch(_ context.Context, ev events.MessagePersistedEvent) {
	if m.eventBus != nil {
		err := events.MessagePersistedV1.Publish(m.eventBus, ev, nil)
		if err == nil {
			return
		}
		m.logger.Warn("Failed to publish message event, dispatching locally",
			"roomID", ev.RoomID, "messageID", ev.Message.ID, "error", err)
	}
	m.hub.OnMessagePersisted(ev.Message, ev.RoomID, ev.SenderConnectionID)
}

// createChat handles POST /api/v1/chats. The caller is always a participant.
func (m *Module) createChat(c *fiber.Ctx) error {
	var req CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	participants := append([]string{userIDFrom(c)}, req.Participants...)
	chat, err := m.chats.CreateChat(c.UserContext(), req.Name, participants)
	if err != nil {
		return m.storeError(c, err)
	}

	m.logger.Info("Chat created", "chatID", chat.ID, "participants", len(chat.Participants))
	return c.Status(fiber.StatusCreated).JSON(chat)
}

// getHistory handles GET /api/v1/chats/:id/messages.
func (m *Module) getHistory(c *fiber.Ctx) error {
	roomID := c.Params("id")
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > chatstore.MaxHistoryLimit {
		limit = chatstore.MaxHistoryLimit
	}

	messages, err := m.chats.History(c.UserContext(), userIDFrom(c), roomID, limit)
	if err != nil {
		return m.storeError(c, err)
	}

	return c.JSON(HistoryResponse{
		RoomID:   roomID,
		Messages: messages,
		Total:    len(messages),
	})
}

// getPresence handles GET /api/v1/presence/:userID. Callers may read their
// own presence and that of their contacts.
func (m *Module) getPresence(c *fiber.Ctx) error {
	target := c.Params("userID")
	if caller := userIDFrom(c); caller != target {
		contacts, err := m.chats.ContactsOf(c.UserContext(), caller)
		if err != nil {
			return m.storeError(c, err)
		}
		if !slices.Contains(contacts, target) {
			return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
				Error:   "forbidden",
				Message: "Not a contact of this user",
			})
		}
	}

	resp, err := m.statePort().PresenceOf(c.UserContext(), target)
	if err != nil {
		m.logger.Error("Failed to get presence", "userID", target, "error", err)
		return fiber.ErrServiceUnavailable
	}

	return c.JSON(PresenceResponse{
		UserID:      resp.Record.UserID,
		Status:      resp.Record.Status,
		Since:       resp.Record.Since,
		Connections: resp.Connections,
	})
}

// getRoomMembers handles GET /api/v1/rooms/:id/members for participants.
func (m *Module) getRoomMembers(c *fiber.Ctx) error {
	roomID := c.Params("id")
	ok, err := m.chats.IsParticipant(c.UserContext(), userIDFrom(c), roomID)
	if err != nil {
		return m.storeError(c, err)
	}
	if !ok {
		return m.storeError(c, chatstore.ErrNotParticipant)
	}

	resp, err := m.statePort().RoomState(c.UserContext(), roomID)
	if err != nil {
		m.logger.Error("Failed to get room state", "roomID", roomID, "error", err)
		return fiber.ErrServiceUnavailable
	}

	members := resp.Members
	if members == nil {
		members = []string{}
	}
	typing := resp.Typing
	if typing == nil {
		typing = []string{}
	}
	return c.JSON(MembersResponse{
		RoomID:  roomID,
		Members: members,
		Typing:  typing,
	})
}

// storeError maps chat store failures to HTTP responses.
func (m *Module) storeError(c *fiber.Ctx, err error) error {
	var verr *chatstore.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: verr.Message,
		})
	case errors.Is(err, chatstore.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "forbidden",
			Message: "Not a participant of this chat",
		})
	case errors.Is(err, chatstore.ErrChatNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Chat not found",
		})
	default:
		m.logger.Error("Chat store request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "internal_error",
			Message: "Chat store request failed",
		})
	}
}

// statePort returns the realtime service adapter, or reads the hub in-process
// when the module runs without a service container.
func (m *Module) statePort() realtime.StatePort {
	if m.state != nil {
		return m.state
	}
	return hubState{hub: m.hub}
}

type hubState struct {
	hub *realtime.Hub
}

func (s hubState) PresenceOf(_ context.Context, userID string) (*realtime.PresenceOfResponse, error) {
	return &realtime.PresenceOfResponse{
		Record:      s.hub.PresenceOf(userID),
		Connections: s.hub.ConnectionCount(userID),
	}, nil
}

func (s hubState) RoomState(_ context.Context, roomID string) (*realtime.RoomStateResponse, error) {
	return &realtime.RoomStateResponse{
		RoomID:  roomID,
		Members: s.hub.MembersOf(roomID),
		Typing:  s.hub.TypingIn(roomID),
	}, nil
}
