package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/example/chat-realtime/config"
	"github.com/example/chat-realtime/modules/api"
	"github.com/example/chat-realtime/modules/auth"
	"github.com/example/chat-realtime/modules/chatstore"
	"github.com/example/chat-realtime/modules/realtime"
	"github.com/fatih/color"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	cfg := config.Load()

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	authModule := auth.NewModule(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
	}, logger)
	storeModule := chatstore.NewModule(cfg, logger)
	realtimeModule := realtime.NewModule(realtime.Config{
		PresenceScope: cfg.PresenceScope,
		PresenceGrace: cfg.PresenceGrace,
		TypingTimeout: cfg.TypingTimeout,
		TypingSweep:   cfg.TypingSweep,
		QueueSize:     cfg.SendQueueSize,
	}, logger)
	apiModule := api.NewModule(cfg, logger)

	// The hub is process state, not a service, so it is handed over directly.
	apiModule.SetHub(realtimeModule.Hub())

	// Order: providers first, then the modules depending on them.
	app.Register(authModule)
	app.Register(storeModule)
	app.Register(realtimeModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Application exited", "code", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	title := color.New(color.FgGreen, color.Bold)
	key := color.New(color.FgCyan)

	fmt.Println()
	title.Println("chat-realtime started")
	fmt.Println()

	cache := "disabled"
	if cfg.RedisAddr != "" {
		cache = cfg.RedisAddr
	}
	fmt.Printf("  %s %s\n", key.Sprint("store:   "), cfg.StoreDriver)
	fmt.Printf("  %s %s\n", key.Sprint("cache:   "), cache)
	fmt.Printf("  %s %s (grace %s)\n", key.Sprint("presence:"), cfg.PresenceScope, cfg.PresenceGrace)
	fmt.Printf("  %s %s\n", key.Sprint("typing:  "), cfg.TypingTimeout)
	fmt.Println()

	fmt.Printf("  %s ws://localhost:%s/ws\n", key.Sprint("websocket:"), cfg.Port)
	fmt.Println("    setup{token} -> join_chat{room_id} -> send_message{room_id,content}")
	fmt.Println("    typing / stop_typing / leave_chat / logout")
	fmt.Println()

	fmt.Printf("  %s http://localhost:%s\n", key.Sprint("rest:     "), cfg.Port)
	fmt.Println("    GET  /health")
	fmt.Println("    POST /api/v1/messages            (Bearer)")
	fmt.Println("    POST /api/v1/chats               (Bearer)")
	fmt.Println("    GET  /api/v1/chats/:id/messages  (Bearer)")
	fmt.Println("    GET  /api/v1/presence/:userID     (Bearer, self or contact)")
	fmt.Println("    GET  /api/v1/rooms/:id/members    (Bearer, participant)")
	fmt.Println()
	color.Yellow("Press Ctrl+C to shutdown gracefully")
}
