package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Presence audience scopes.
const (
	ScopeShared = "shared"
	ScopeGlobal = "global"
)

const collaboratorTimeout = 5 * time.Second

// Authenticator validates a setup credential and returns the user it belongs to.
type Authenticator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// ParticipantChecker reports whether a user belongs to a chat.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, roomID string) (bool, error)
}

// ContactLister returns the users that share at least one chat with userID.
type ContactLister interface {
	ContactsOf(ctx context.Context, userID string) ([]string, error)
}

// ParticipantLister returns every participant of a chat, joined or not.
type ParticipantLister interface {
	ParticipantsOf(ctx context.Context, roomID string) ([]string, error)
}

// MessageStore persists a message before it is dispatched.
type MessageStore interface {
	PersistMessage(ctx context.Context, senderID, roomID, content string) (*domain.Message, error)
}

// Dependencies are the collaborators the hub calls out to. Any may be nil:
// a nil Participants accepts every join, a nil Contacts limits shared-scope
// presence to room co-members, a nil Roster skips chat_updated notices.
type Dependencies struct {
	Auth         Authenticator
	Participants ParticipantChecker
	Contacts     ContactLister
	Roster       ParticipantLister
	Messages     MessageStore
	OnPresence   func(PresenceRecord)
}

// Config tunes the hub.
type Config struct {
	PresenceScope string
	PresenceGrace time.Duration
	TypingTimeout time.Duration
	TypingSweep   time.Duration
	QueueSize     int
}

// Hub is the connection lifecycle handler. It owns the registry, membership
// index, presence tracker, typing coordinator and dispatcher, and routes
// inbound events to them.
type Hub struct {
	cfg        Config
	deps       Dependencies
	logger     types.Logger
	registry   *Registry
	membership *Membership
	presence   *Presence
	typing     *Typing
	dispatcher *Dispatcher
	handlers   map[string]eventHandler
}

type eventHandler func(ctx context.Context, c *Conn, ev Event) error

// NewHub wires the realtime components together.
func NewHub(cfg Config, deps Dependencies, logger types.Logger) *Hub {
	if cfg.PresenceScope != ScopeGlobal {
		cfg.PresenceScope = ScopeShared
	}
	h := &Hub{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		registry:   NewRegistry(),
		membership: NewMembership(),
	}
	h.dispatcher = NewDispatcher(h.registry, h.membership, logger)
	h.presence = NewPresence(cfg.PresenceGrace, h.registry.IsOnline, h.broadcastPresence)
	h.typing = NewTyping(cfg.TypingTimeout, cfg.TypingSweep, h.broadcastTyping, h.broadcastStopTyping)
	h.handlers = map[string]eventHandler{
		InSetup: func(ctx context.Context, c *Conn, ev Event) error {
			return h.OnSetup(ctx, c, ev.(SetupEvent).Token)
		},
		InJoinChat: func(ctx context.Context, c *Conn, ev Event) error {
			return h.OnJoinRoom(ctx, c, ev.(JoinRoomEvent).RoomID)
		},
		InLeaveChat: func(_ context.Context, c *Conn, ev Event) error {
			return h.OnLeaveRoom(c, ev.(LeaveRoomEvent).RoomID)
		},
		InTyping: func(_ context.Context, c *Conn, ev Event) error {
			return h.OnTyping(c, ev.(TypingEvent).RoomID)
		},
		InStopTyping: func(_ context.Context, c *Conn, ev Event) error {
			return h.OnStopTyping(c, ev.(StopTypingEvent).RoomID)
		},
		InSendMessage: func(ctx context.Context, c *Conn, ev Event) error {
			e := ev.(SendMessageEvent)
			return h.OnSendMessage(ctx, c, e.RoomID, e.Content)
		},
		InLogout: func(_ context.Context, c *Conn, _ Event) error {
			h.OnDisconnect(c)
			return nil
		},
	}
	return h
}

// Start runs background work (typing sweeper).
func (h *Hub) Start() {
	h.typing.Start()
}

// Stop halts background work and closes every connection.
func (h *Hub) Stop() {
	h.typing.Stop()
	h.presence.Stop()
	for _, c := range h.registry.All() {
		_ = c.Close()
	}
}

// Accept wraps a freshly accepted transport in a Connecting connection.
func (h *Hub) Accept(t Transport) *Conn {
	c := newConn(t, h.cfg.QueueSize, h.logger)
	h.logger.Debug("Connection accepted", "connID", c.ID())
	return c
}

// HandleEvent routes one inbound event. Structural failures are reported to
// the originating connection as an error frame and also returned.
func (h *Hub) HandleEvent(ctx context.Context, c *Conn, ev Event) error {
	handler, ok := h.handlers[ev.Type()]
	if !ok {
		err := fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, ev.Type())
		h.Reject(c, err)
		return err
	}
	if err := handler(ctx, c, ev); err != nil {
		h.Reject(c, err)
		return err
	}
	return nil
}

// Reject sends an error frame to c. Authentication failures close it.
func (h *Hub) Reject(c *Conn, err error) {
	_ = h.dispatcher.SendTo(c, errorEnvelope(err))
	if errors.Is(err, ErrUnauthorized) {
		c.CloseAfterFlush()
	}
}

// OnSetup authenticates c and registers it under the token's user.
func (h *Hub) OnSetup(ctx context.Context, c *Conn, token string) error {
	if state := c.State(); state != StateConnecting {
		if state == StateClosed {
			return ErrConnClosed
		}
		return ErrAlreadyAuthenticated
	}
	if h.deps.Auth == nil {
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	userID, err := h.deps.Auth.Validate(ctx, token)
	if err != nil {
		h.logger.Info("Setup rejected", "connID", c.ID(), "error", err)
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if userID == "" {
		return fmt.Errorf("%w: token carries no user", ErrUnauthorized)
	}

	if err := c.bind(userID); err != nil {
		return err
	}
	if h.registry.Register(userID, c) {
		h.presence.ConnectionOpened(userID)
	}

	// Online carries the users this one would see presence changes from.
	_ = h.dispatcher.SendTo(c, Envelope{
		Type:         TypeConnected,
		UserID:       userID,
		ConnectionID: c.ID(),
		Online:       h.presenceAudience(userID, nil),
	})
	h.logger.Info("Connection registered", "connID", c.ID(), "userID", userID)
	return nil
}

// OnJoinRoom makes c active in roomID after checking participation.
func (h *Hub) OnJoinRoom(ctx context.Context, c *Conn, roomID string) error {
	userID, ok := c.authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	if roomID == "" {
		return fmt.Errorf("%w: room_id is required", ErrInvalidEvent)
	}
	if err := h.checkParticipant(ctx, userID, roomID); err != nil {
		return err
	}

	h.membership.Join(userID, c.ID(), roomID)
	c.activate()

	_ = h.dispatcher.SendTo(c, Envelope{
		Type:   TypeJoined,
		RoomID: roomID,
		UserID: userID,
		Online: h.onlineMembers(roomID, userID),
	})
	h.logger.Debug("Joined room", "connID", c.ID(), "userID", userID, "roomID", roomID)
	return nil
}

// OnLeaveRoom removes c from roomID. Leaving a room never joined is a no-op.
func (h *Hub) OnLeaveRoom(c *Conn, roomID string) error {
	userID, ok := c.authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	if !h.membership.Leave(c.ID(), roomID) {
		return nil
	}
	if len(h.userConnsIn(userID, roomID)) == 0 {
		h.typing.ClearTyping(roomID, userID)
	}
	_ = h.dispatcher.SendTo(c, Envelope{Type: TypeLeft, RoomID: roomID, UserID: userID})
	return nil
}

// OnTyping marks the user as typing in a room c has joined.
func (h *Hub) OnTyping(c *Conn, roomID string) error {
	userID, ok := c.authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	if !h.membership.IsJoined(c.ID(), roomID) {
		return fmt.Errorf("%w: join %s before typing", ErrForbidden, roomID)
	}
	h.typing.SetTyping(roomID, userID)
	return nil
}

// OnStopTyping clears the user's typing state in roomID.
func (h *Hub) OnStopTyping(c *Conn, roomID string) error {
	userID, ok := c.authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	h.typing.ClearTyping(roomID, userID)
	return nil
}

// OnSendMessage persists a message from c and dispatches it.
func (h *Hub) OnSendMessage(ctx context.Context, c *Conn, roomID, content string) error {
	userID, ok := c.authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	if h.deps.Messages == nil {
		return ErrUnavailable
	}
	if err := h.checkParticipant(ctx, userID, roomID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	msg, err := h.deps.Messages.PersistMessage(ctx, userID, roomID, content)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	// A sent message ends the sender's typing in that room.
	h.typing.ClearTyping(roomID, userID)
	h.OnMessagePersisted(*msg, roomID, c.ID())
	_ = h.dispatcher.SendTo(c, Envelope{Type: TypeSent, RoomID: roomID, UserID: userID, Message: msg})
	return nil
}

// OnMessagePersisted fans a stored message out to the room, then tells
// online participants who have not joined it that the chat changed. The
// result counts room delivery only.
func (h *Hub) OnMessagePersisted(msg domain.Message, roomID, senderConnID string) DispatchResult {
	res, err := h.dispatcher.Dispatch(msg, roomID, senderConnID)
	if err != nil {
		h.logger.Error("Dispatch failed", "roomID", roomID, "messageID", msg.ID, "error", err)
		return res
	}
	if res.Failed > 0 {
		h.logger.Warn("Partial delivery", "roomID", roomID, "messageID", msg.ID,
			"delivered", res.Delivered, "failed", res.Failed)
	}
	h.notifyChatUpdated(msg, roomID, senderConnID)
	return res
}

func (h *Hub) notifyChatUpdated(msg domain.Message, roomID, senderConnID string) {
	if h.deps.Roster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	participants, err := h.deps.Roster.ParticipantsOf(ctx, roomID)
	cancel()
	if err != nil {
		h.logger.Warn("Failed to load participants", "roomID", roomID, "error", err)
		return
	}

	res := h.dispatcher.SendOutsideRoom(roomID, participants, Envelope{
		Type:      TypeChatUpdate,
		RoomID:    roomID,
		UserID:    msg.SenderID,
		MessageID: msg.ID,
		Timestamp: msg.CreatedAt,
	}, senderConnID)
	if res.Delivered+res.Failed > 0 {
		h.logger.Debug("Chat update sent", "roomID", roomID, "messageID", msg.ID,
			"delivered", res.Delivered, "failed", res.Failed)
	}
}

// OnDisconnect closes c and cleans up membership, typing and registry state,
// in that order. Calling it again is a no-op.
func (h *Hub) OnDisconnect(c *Conn) {
	prev := c.markClosed()
	userID := c.UserID()
	rooms := h.membership.LeaveAll(c.ID())

	if userID != "" {
		h.typing.ClearUser(userID)
		if h.registry.Unregister(c) {
			h.presence.ConnectionClosed(userID, rooms)
		}
	}
	_ = c.Close()

	if prev != StateClosed {
		h.logger.Info("Connection closed", "connID", c.ID(), "userID", userID, "rooms", len(rooms))
	}
}

// OwnsConnection reports whether connID is a live connection of userID.
func (h *Hub) OwnsConnection(connID, userID string) bool {
	c, ok := h.registry.Get(connID)
	return ok && userID != "" && c.UserID() == userID
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.registry.IsOnline(userID)
}

// PresenceOf returns the presence record of userID.
func (h *Hub) PresenceOf(userID string) PresenceRecord {
	return h.presence.Status(userID)
}

// ConnectionCount returns the number of live connections of userID.
func (h *Hub) ConnectionCount(userID string) int {
	return len(h.registry.ConnectionsFor(userID))
}

// MembersOf returns the users currently joined to roomID.
func (h *Hub) MembersOf(roomID string) []string {
	return h.membership.MembersOf(roomID)
}

// TypingIn returns the users currently typing in roomID.
func (h *Hub) TypingIn(roomID string) []string {
	return h.typing.TypingIn(roomID)
}

// Stats summarizes live state for health reporting.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"online_users"`
	Rooms       int `json:"rooms"`
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Count(),
		OnlineUsers: h.registry.UserCount(),
		Rooms:       h.membership.RoomCount(),
	}
}

func (h *Hub) checkParticipant(ctx context.Context, userID, roomID string) error {
	if h.deps.Participants == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	ok, err := h.deps.Participants.IsParticipant(ctx, userID, roomID)
	if err != nil {
		return fmt.Errorf("failed to check participants: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a participant of %s", ErrForbidden, userID, roomID)
	}
	return nil
}

func (h *Hub) userConnsIn(userID, roomID string) []*Conn {
	var out []*Conn
	for _, c := range h.registry.ConnectionsFor(userID) {
		if h.membership.IsJoined(c.ID(), roomID) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) onlineMembers(roomID, exceptUserID string) []string {
	var out []string
	for _, userID := range h.membership.MembersOf(roomID) {
		if userID != exceptUserID && h.registry.IsOnline(userID) {
			out = append(out, userID)
		}
	}
	return out
}

func (h *Hub) broadcastTyping(roomID, userID string) {
	h.dispatcher.BroadcastRoom(roomID, Envelope{Type: TypeTyping, RoomID: roomID, UserID: userID}, userID)
}

func (h *Hub) broadcastStopTyping(roomID, userID string) {
	h.dispatcher.BroadcastRoom(roomID, Envelope{Type: TypeStopTyping, RoomID: roomID, UserID: userID}, userID)
}

func (h *Hub) broadcastPresence(rec PresenceRecord, lastRooms []string) {
	audience := h.presenceAudience(rec.UserID, lastRooms)
	res := h.dispatcher.SendToUsers(audience, Envelope{
		Type:      TypeUserStatus,
		UserID:    rec.UserID,
		Status:    rec.Status,
		Timestamp: rec.Since,
	})
	h.logger.Info("Presence changed", "userID", rec.UserID, "status", rec.Status,
		"audience", len(audience), "delivered", res.Delivered)

	if h.deps.OnPresence != nil {
		h.deps.OnPresence(rec)
	}
}

// presenceAudience returns the online users, other than userID, who should
// see userID's status change.
func (h *Hub) presenceAudience(userID string, lastRooms []string) []string {
	candidates := make(map[string]struct{})

	if h.cfg.PresenceScope == ScopeGlobal {
		for _, u := range h.registry.OnlineUsers() {
			candidates[u] = struct{}{}
		}
	} else {
		rooms := append(h.membership.RoomsOfUser(userID), lastRooms...)
		for _, roomID := range rooms {
			for _, u := range h.membership.MembersOf(roomID) {
				candidates[u] = struct{}{}
			}
		}
		if h.deps.Contacts != nil {
			ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			contacts, err := h.deps.Contacts.ContactsOf(ctx, userID)
			cancel()
			if err != nil {
				h.logger.Warn("Failed to load contacts", "userID", userID, "error", err)
			}
			for _, u := range contacts {
				candidates[u] = struct{}{}
			}
		}
	}

	delete(candidates, userID)
	out := make([]string, 0, len(candidates))
	for u := range candidates {
		if h.registry.IsOnline(u) {
			out = append(out, u)
		}
	}
	return out
}
