package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chat-realtime/events"
	"github.com/example/chat-realtime/modules/auth"
	"github.com/example/chat-realtime/modules/chatstore"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module hosts the hub. Collaborators come from the auth and chatstore
// modules; presence transitions go out on the event bus.
type Module struct {
	hub      *Hub
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the realtime module.
func NewModule(cfg Config, logger types.Logger) *Module {
	m := &Module{logger: logger}
	m.hub = NewHub(cfg, Dependencies{OnPresence: m.publishPresence}, logger)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Hub returns the connection lifecycle handler for the transport layer.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"auth", "chatstore"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.hub.deps.Auth = auth.NewAdapter(container)
	case "chatstore":
		store := chatstore.NewAdapter(container)
		m.hub.deps.Participants = store
		m.hub.deps.Contacts = store
		m.hub.deps.Roster = store
		m.hub.deps.Messages = store
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.PresenceChangedV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to messages persisted outside a socket.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagePersistedV1, m.handleMessagePersisted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePersisted consumer: %w", err)
	}
	m.logger.Info("Registered realtime event consumers", "events", []string{"MessagePersisted"})
	return nil
}

func (m *Module) handleMessagePersisted(_ context.Context, event events.MessagePersistedEvent, _ *mono.Msg) error {
	roomID := event.RoomID
	if roomID == "" {
		roomID = event.Message.RoomID
	}
	res := m.hub.OnMessagePersisted(event.Message, roomID, event.SenderConnectionID)
	m.logger.Debug("Dispatched persisted message", "roomID", roomID, "messageID", event.Message.ID,
		"delivered", res.Delivered, "failed", res.Failed)
	return nil
}

func (m *Module) publishPresence(rec PresenceRecord) {
	if m.eventBus == nil {
		return
	}
	event := events.PresenceChangedEvent{
		UserID:    rec.UserID,
		Status:    rec.Status,
		Timestamp: rec.Since,
	}
	if err := events.PresenceChangedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish PresenceChanged event", "userID", rec.UserID, "error", err)
	}
}

// RegisterServices exposes read-only live state.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePresenceOf, json.Unmarshal, json.Marshal, m.presenceOf,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePresenceOf, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRoomState, json.Unmarshal, json.Marshal, m.roomState,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRoomState, err)
	}
	return nil
}

func (m *Module) presenceOf(_ context.Context, req PresenceOfRequest, _ *mono.Msg) (PresenceOfResponse, error) {
	return PresenceOfResponse{
		Record:      m.hub.PresenceOf(req.UserID),
		Connections: m.hub.ConnectionCount(req.UserID),
	}, nil
}

func (m *Module) roomState(_ context.Context, req RoomStateRequest, _ *mono.Msg) (RoomStateResponse, error) {
	return RoomStateResponse{
		RoomID:  req.RoomID,
		Members: nonNil(m.hub.MembersOf(req.RoomID)),
		Typing:  nonNil(m.hub.TypingIn(req.RoomID)),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Start runs the hub's background work.
func (m *Module) Start(_ context.Context) error {
	m.hub.Start()
	m.logger.Info("Realtime module started",
		"presenceScope", m.hub.cfg.PresenceScope,
		"presenceGrace", m.hub.cfg.PresenceGrace)
	return nil
}

// Stop closes every live connection.
func (m *Module) Stop(_ context.Context) error {
	stats := m.hub.Stats()
	m.hub.Stop()
	m.logger.Info("Realtime module stopped", "connections", stats.Connections, "onlineUsers", stats.OnlineUsers)
	return nil
}

// Health reports live counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	stats := m.hub.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":  stats.Connections,
			"online_users": stats.OnlineUsers,
			"rooms":        stats.Rooms,
		},
	}
}
