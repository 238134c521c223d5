package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/chat-presence-service/modules/api"
	"github.com/example/chat-presence-service/modules/auth"
	"github.com/example/chat-presence-service/modules/broadcast"
	"github.com/example/chat-presence-service/modules/chat"
	"github.com/example/chat-presence-service/modules/presence"
	"github.com/example/chat-presence-service/modules/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Chat Presence Service ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules.
	// The presence registry and broadcast hub are shared directly because
	// they are not exposed via ServiceContainer.
	registry := presence.NewRegistry()
	tokens := auth.NewJWTManager(auth.ConfigFromEnv())
	storeModule := store.NewModule()
	broadcastModule := broadcast.NewModule(registry)
	chatModule := chat.NewModule(registry, storeModule, broadcastModule.Hub())
	apiModule := api.NewModule(tokens, chatModule, broadcastModule.Hub())

	// Register modules with the framework.
	// Order: persistence first, then the domain emitter, then consumers,
	// then the driving adapter.
	app.Register(storeModule)     // GORM/SQLite repositories + Redis cache
	app.Register(chatModule)      // Messaging service + event emitter
	app.Register(broadcastModule) // WebSocket hub + event consumer
	app.Register(apiModule)       // HTTP/WebSocket API

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(tokens)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(tokens *auth.JWTManager) {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - NATS URL: %s", natsURL)
	log.Println("  - Storage: GORM + SQLite, optional Redis membership cache")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost%s):", addr)
	log.Println("  GET    /health                              - Health check")
	log.Println("  POST   /api/v1/conversations                - Create a conversation")
	log.Println("  GET    /api/v1/conversations                - List own conversations")
	log.Println("  GET    /api/v1/conversations/:id/messages   - Message history")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost%s/ws):", addr)
	log.Println("  Connect with a bearer token: ws://localhost:8080/ws?token=<jwt>")
	if os.Getenv("JWT_SECRET") == "" {
		// Dev-secret mode: mint a token so the endpoints are usable
		// straight away.
		if token, err := tokens.GenerateToken("demo-user"); err == nil {
			log.Println("  Dev token for user demo-user (JWT_SECRET unset):")
			log.Printf("    %s", token)
		}
	}
	log.Println("  Inbound:  typing:start, typing:stop, message:send, message:delivered, message:read")
	log.Println("  Outbound: presence:update, typing, message:ack, message:new, message:delivered, message:read")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
