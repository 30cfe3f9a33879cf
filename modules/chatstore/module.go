package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/chat-realtime/config"
	"github.com/example/chat-realtime/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Module provides chat persistence services.
type Module struct {
	cfg    config.Config
	store  Store
	cache  *CachedStore
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a chatstore module that opens its backend on Start.
func NewModule(cfg config.Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// NewModuleWithStore creates a chatstore module over an already opened store.
func NewModuleWithStore(store Store, logger types.Logger) *Module {
	return &Module{store: store, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chatstore"
}

// Store returns the active store.
func (m *Module) Store() Store {
	return m.store
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceIsParticipant, json.Unmarshal, json.Marshal, m.isParticipant,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceIsParticipant, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePersistMessage, json.Unmarshal, json.Marshal, m.persistMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePersistMessage, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceContactsOf, json.Unmarshal, json.Marshal, m.contactsOf,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceContactsOf, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceParticipantsOf, json.Unmarshal, json.Marshal, m.participantsOf,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceParticipantsOf, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateChat, json.Unmarshal, json.Marshal, m.createChat,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateChat, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceHistory, json.Unmarshal, json.Marshal, m.history,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceHistory, err)
	}

	m.logger.Info("Registered chatstore services",
		"services", []string{ServiceIsParticipant, ServicePersistMessage, ServiceContactsOf,
			ServiceParticipantsOf, ServiceCreateChat, ServiceHistory})
	return nil
}

// RegisterEventConsumers mirrors presence transitions into storage.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.PresenceChangedV1, m.handlePresenceChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register PresenceChanged consumer: %w", err)
	}
	return nil
}

func (m *Module) handlePresenceChanged(ctx context.Context, event events.PresenceChangedEvent, _ *mono.Msg) error {
	if err := m.store.SetUserStatus(ctx, event.UserID, event.Status, event.Timestamp); err != nil {
		m.logger.Warn("Failed to record user status", "userID", event.UserID, "error", err)
		return err
	}
	m.logger.Debug("Recorded user status", "userID", event.UserID, "status", event.Status)
	return nil
}

func (m *Module) isParticipant(ctx context.Context, req IsParticipantRequest, _ *mono.Msg) (IsParticipantResponse, error) {
	ok, err := m.store.IsParticipant(ctx, req.UserID, req.ChatID)
	if err != nil {
		return IsParticipantResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	return IsParticipantResponse{Participant: ok}, nil
}

func (m *Module) persistMessage(ctx context.Context, req PersistMessageRequest, _ *mono.Msg) (PersistMessageResponse, error) {
	msg, err := m.store.PersistMessage(ctx, req.SenderID, req.ChatID, req.Content)
	if err != nil {
		return PersistMessageResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	return PersistMessageResponse{Message: msg}, nil
}

func (m *Module) contactsOf(ctx context.Context, req ContactsOfRequest, _ *mono.Msg) (ContactsOfResponse, error) {
	contacts, err := m.store.ContactsOf(ctx, req.UserID)
	if err != nil {
		return ContactsOfResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	return ContactsOfResponse{Contacts: contacts}, nil
}

func (m *Module) participantsOf(ctx context.Context, req ParticipantsOfRequest, _ *mono.Msg) (ParticipantsOfResponse, error) {
	chat, err := m.store.GetChat(ctx, req.ChatID)
	if err != nil {
		return ParticipantsOfResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	return ParticipantsOfResponse{Participants: chat.Participants}, nil
}

func (m *Module) createChat(ctx context.Context, req CreateChatRequest, _ *mono.Msg) (CreateChatResponse, error) {
	chat, err := m.store.CreateChat(ctx, req.Name, req.Participants)
	if err != nil {
		return CreateChatResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	m.logger.Info("Chat created", "chatID", chat.ID, "participants", len(chat.Participants))
	return CreateChatResponse{Chat: chat}, nil
}

func (m *Module) history(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	ok, err := m.store.IsParticipant(ctx, req.UserID, req.ChatID)
	if err != nil {
		return HistoryResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	if !ok {
		return HistoryResponse{Code: CodeNotParticipant, Error: ErrNotParticipant.Error()}, nil
	}
	messages, err := m.store.History(ctx, req.ChatID, req.Limit)
	if err != nil {
		return HistoryResponse{Code: errorCode(err), Error: err.Error()}, nil
	}
	return HistoryResponse{Messages: messages}, nil
}

// Start opens the configured backend and, when Redis is configured, the cache.
func (m *Module) Start(ctx context.Context) error {
	if m.store == nil {
		store, err := m.openStore(ctx)
		if err != nil {
			return err
		}
		m.store = store
	}

	if m.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         m.cfg.RedisAddr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.cache = NewCachedStore(m.store, client, "chat:", m.cfg.RedisTTL)
		m.store = m.cache
		m.logger.Info("Participant cache enabled", "redis", m.cfg.RedisAddr, "ttl", m.cfg.RedisTTL)
	}

	m.logger.Info("Chatstore module started", "driver", m.driver())
	return nil
}

func (m *Module) openStore(ctx context.Context) (Store, error) {
	switch m.cfg.StoreDriver {
	case config.DriverMongo:
		m.logger.Info("Connecting to MongoDB", "database", m.cfg.MongoDatabase)
		return OpenMongo(ctx, m.cfg.MongoURI, m.cfg.MongoDatabase)
	default:
		m.logger.Info("Connecting to SQLite database", "path", m.cfg.DBPath)
		return OpenSQLite(m.cfg.DBPath, m.cfg.DBDebug)
	}
}

func (m *Module) driver() string {
	if m.cfg.StoreDriver == "" {
		return "custom"
	}
	return m.cfg.StoreDriver
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	m.logger.Info("Chatstore module stopped")
	return nil
}

// Health performs a health check on the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
		}
	}

	details := map[string]any{"driver": m.driver()}
	if m.cache != nil {
		details["cache"] = m.cache.Stats()
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}
