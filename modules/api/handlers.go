package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	domain "github.com/example/chat-presence-service/domain/chat"
	"github.com/example/chat-presence-service/modules/auth"
	"github.com/example/chat-presence-service/modules/broadcast"
	"github.com/example/chat-presence-service/modules/chat"
)

const localsUserID = "userId"

// Socket keepalive limits. pingPeriod must stay below pongWait so a healthy
// peer always refreshes its read deadline in time.
const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
)

// ClientMessage is the envelope for every inbound WebSocket frame.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingPayload carries typing:start and typing:stop.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendPayload carries message:send.
type SendPayload struct {
	ConversationID   string             `json:"conversationId"`
	TempID           string             `json:"tempId"`
	Type             domain.MessageType `json:"type"`
	Text             string             `json:"text,omitempty"`
	MediaURL         string             `json:"mediaUrl,omitempty"`
	ReplyToMessageID string             `json:"replyToMessageId,omitempty"`
}

// ReceiptPayload carries message:delivered and message:read.
type ReceiptPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// CreateConversationRequest is the body of POST /api/v1/conversations.
type CreateConversationRequest struct {
	MemberIDs []string `json:"memberIds"`
}

// Handlers contains the HTTP and WebSocket handlers.
type Handlers struct {
	tokens  *auth.JWTManager
	service *chat.Service
	hub     *broadcast.Hub
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(tokens *auth.JWTManager, service *chat.Service, hub *broadcast.Hub) *Handlers {
	return &Handlers{
		tokens:  tokens,
		service: service,
		hub:     hub,
		logger:  slog.Default(),
	}
}

// requireAuth validates the bearer credential and stores the user id in the
// request locals. A missing token rejects with auth_required, a failed
// verification with auth_invalid.
func (h *Handlers) requireAuth(c *fiber.Ctx) error {
	claims, err := h.tokens.ValidateToken(bearerToken(c))
	if err != nil {
		code := "auth_invalid"
		if errors.Is(err, auth.ErrMissingToken) {
			code = "auth_required"
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": code,
		})
	}
	c.Locals(localsUserID, claims.UserID)
	return c.Next()
}

// bearerToken extracts the credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// HandleWebSocket owns one client session from registration to teardown.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals(localsUserID).(string)
	if userID == "" {
		c.Close()
		return
	}
	connID := uuid.New().String()
	ctx := context.Background()

	client := &broadcast.Client{ID: connID, UserID: userID, Conn: c}
	h.hub.Register(client)
	h.service.Connect(ctx, userID, connID)

	// Teardown must be idempotent: the read loop, the ping loop, a hub
	// CloseAll and the transport can all race to end the session.
	done := make(chan struct{})
	var once sync.Once
	teardown := func() {
		once.Do(func() {
			close(done)
			h.hub.Unregister(connID)
			h.service.Disconnect(ctx, userID, connID)
			c.Close()
		})
	}
	defer teardown()

	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Ping loop: a peer that stops answering runs into the read deadline and
	// the read loop tears the session down.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()

	h.logger.Info("WebSocket connected", "userId", userID, "connId", connID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket error", "userId", userID, "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			h.logger.Debug("malformed frame", "userId", userID, "error", err)
			continue
		}

		h.handleMessage(ctx, connID, userID, msg)
	}

	h.logger.Info("WebSocket disconnected", "userId", userID, "connId", connID)
}

// handleMessage dispatches one inbound frame. Malformed payloads are dropped
// without a reply; the protocol never surfaces per-frame errors.
func (h *Handlers) handleMessage(ctx context.Context, connID, userID string, msg ClientMessage) {
	switch msg.Type {
	case "typing:start":
		var p TypingPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			h.service.Typing(userID, p.ConversationID, true)
		}
	case "typing:stop":
		var p TypingPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			h.service.Typing(userID, p.ConversationID, false)
		}
	case "message:send":
		var p SendPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			h.service.Send(ctx, connID, userID, chat.SendIntent{
				ConversationID:   p.ConversationID,
				TempID:           p.TempID,
				Type:             p.Type,
				Text:             p.Text,
				MediaURL:         p.MediaURL,
				ReplyToMessageID: p.ReplyToMessageID,
			})
		}
	case "message:delivered":
		var p ReceiptPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			h.service.MarkDelivered(ctx, userID, p.ConversationID, p.MessageIDs)
		}
	case "message:read":
		var p ReceiptPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			h.service.MarkRead(ctx, userID, p.ConversationID, p.MessageIDs)
		}
	default:
		h.logger.Debug("unknown frame type", "type", msg.Type, "userId", userID)
	}
}

// REST Handlers

// CreateConversation handles POST /api/v1/conversations.
func (h *Handlers) CreateConversation(c *fiber.Ctx) error {
	userID := c.Locals(localsUserID).(string)

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conv, err := h.service.CreateConversation(c.Context(), userID, req.MemberIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ListConversations handles GET /api/v1/conversations.
func (h *Handlers) ListConversations(c *fiber.Ctx) error {
	userID := c.Locals(localsUserID).(string)

	convs, err := h.service.Conversations(c.Context(), userID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"conversations": convs,
		"total":         len(convs),
	})
}

// GetMessages handles GET /api/v1/conversations/:id/messages.
func (h *Handlers) GetMessages(c *fiber.Ctx) error {
	userID := c.Locals(localsUserID).(string)
	conversationID := c.Params("id")

	limit := c.QueryInt("limit", 50)

	messages, err := h.service.History(c.Context(), userID, conversationID, limit)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Conversation not found",
			})
		}
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"conversationId": conversationID,
		"messages":       messages,
		"total":          len(messages),
	})
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "chat-presence-service",
	})
}
