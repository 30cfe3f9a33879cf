package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/example/chat-realtime/config"
	"github.com/example/chat-realtime/events"
	"github.com/example/chat-realtime/modules/auth"
	"github.com/example/chat-realtime/modules/chatstore"
	"github.com/example/chat-realtime/modules/realtime"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Module serves the websocket endpoint and the REST API.
type Module struct {
	cfg      config.Config
	app      *fiber.App
	listener net.Listener

	hub      *realtime.Hub
	auth     auth.Validator
	chats    chatstore.ChatPort
	state    realtime.StatePort
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the API module.
func NewModule(cfg config.Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"auth", "chatstore", "realtime"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.auth = auth.NewAdapter(container)
	case "chatstore":
		m.chats = chatstore.NewAdapter(container)
	case "realtime":
		m.state = realtime.NewAdapter(container)
	}
}

// SetEventBus receives the event bus.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents returns the events this module publishes.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePersistedV1.ToBase(),
	}
}

// SetHub sets the connection lifecycle handler (called from main.go).
func (m *Module) SetHub(hub *realtime.Hub) {
	m.hub = hub
}

// Addr returns the address the server listens on once started.
func (m *Module) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Start builds the Fiber app and starts serving.
func (m *Module) Start(_ context.Context) error {
	if m.hub == nil {
		return errors.New("realtime hub not set")
	}
	if m.auth == nil || m.chats == nil {
		return errors.New("auth and chatstore dependencies not set")
	}

	m.app = m.buildApp()

	ln, err := net.Listen("tcp", ":"+m.cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on :%s: %w", m.cfg.Port, err)
	}
	m.listener = ln

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"addr": m.Addr()}
	if m.hub != nil {
		stats := m.hub.Stats()
		details["connections"] = stats.Connections
		details["online_users"] = stats.OnlineUsers
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "chat-realtime",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.registerRoutes(app)
	return app
}

func (m *Module) registerRoutes(app *fiber.App) {
	app.Get("/health", m.healthCheck)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", m.websocketHandler())

	v1 := app.Group("/api/v1")
	requireAuth := AuthMiddleware(m.auth)
	v1.Post("/messages", requireAuth, m.postMessage)
	v1.Post("/chats", requireAuth, m.createChat)
	v1.Get("/chats/:id/messages", requireAuth, m.getHistory)
	v1.Get("/presence/:userID", requireAuth, m.getPresence)
	v1.Get("/rooms/:id/members", requireAuth, m.getRoomMembers)
}

// errorHandler maps unhandled errors to the JSON error body.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
