package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/chat-presence-service/modules/auth"
	"github.com/example/chat-presence-service/modules/broadcast"
	"github.com/example/chat-presence-service/modules/chat"
)

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// Module serves the WebSocket endpoint and the REST surface on a Fiber app.
type Module struct {
	app      *fiber.App
	handlers *Handlers
	addr     string

	tokens     *auth.JWTManager
	chatModule *chat.Module
	hub        *broadcast.Hub
	logger     *slog.Logger
}

// NewModule creates the API module. The address is read from HTTP_ADDR
// (default ":8080").
func NewModule(tokens *auth.JWTManager, chatModule *chat.Module, hub *broadcast.Hub) *Module {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return &Module{
		addr:       addr,
		tokens:     tokens,
		chatModule: chatModule,
		hub:        hub,
		logger:     slog.Default(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Start builds the Fiber app, registers routes and begins listening.
func (m *Module) Start(ctx context.Context) error {
	m.app = fiber.New(fiber.Config{
		AppName:               "chat-presence-service",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			// Upgraded connections log their own lifecycle.
			return websocket.IsWebSocketUpgrade(c)
		},
	}))

	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.handlers = NewHandlers(m.tokens, m.chatModule.Service(), m.hub)
	m.registerRoutes()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
	}

	m.logger.Info("API server started", "addr", m.addr)
	return nil
}

// Stop gracefully shuts down the server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("API server stopped")
	return nil
}

// Health reports the server state and live connection counts.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{Healthy: false, Message: "server not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "serving",
		Details: map[string]any{
			"addr":        m.addr,
			"connections": m.hub.ClientCount(),
			"rooms":       m.hub.RoomCount(),
		},
	}
}

// registerRoutes sets up the WebSocket endpoint and the REST surface.
func (m *Module) registerRoutes() {
	m.app.Get("/health", m.handlers.HealthCheck)

	// The credential gate runs before the upgrade so a rejected client
	// gets a proper HTTP status instead of a half-open socket.
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return m.handlers.requireAuth(c)
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))

	api := m.app.Group("/api/v1", m.handlers.requireAuth)
	api.Post("/conversations", m.handlers.CreateConversation)
	api.Get("/conversations", m.handlers.ListConversations)
	api.Get("/conversations/:id/messages", m.handlers.GetMessages)
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
