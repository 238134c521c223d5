package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-presence-service/domain/chat"
	"github.com/example/chat-presence-service/events"
	"github.com/example/chat-presence-service/modules/presence"
)

// Module consumes realtime chat events from the event bus and fans them out
// to WebSocket clients through the hub.
type Module struct {
	hub *Hub
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new broadcast module.
func NewModule(registry *presence.Registry) *Module {
	return &Module{
		hub: NewHub(registry),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Hub returns the WebSocket hub for the API module to register connections.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[broadcast] Module started")
	return nil
}

// Stop closes all client connections.
func (m *Module) Stop(_ context.Context) error {
	count := m.hub.ClientCount()
	m.hub.CloseAll()
	log.Printf("[broadcast] Module stopped - %d clients were connected", count)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"active_rooms":      m.hub.RoomCount(),
		},
	}
}

// RegisterEventConsumers subscribes to the chat domain events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.PresenceUpdateV1, m.handlePresenceUpdate, m,
	); err != nil {
		return fmt.Errorf("failed to register PresenceUpdate consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageNewV1, m.handleMessageNew, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageNew consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageAckV1, m.handleMessageAck, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageAck consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageReceiptV1, m.handleMessageReceipt, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageReceipt consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.TypingV1, m.handleTyping, m,
	); err != nil {
		return fmt.Errorf("failed to register Typing consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: PresenceUpdate, MessageNew, MessageAck, MessageReceipt, Typing")
	return nil
}

// Wire payload shapes. Event names and fields follow the client protocol.

type wirePresence struct {
	UserID   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type wireMessageNew struct {
	Message domain.Message `json:"message"`
}

type wireAck struct {
	TempID    string    `json:"tempId"`
	ServerID  string    `json:"serverId"`
	CreatedAt time.Time `json:"createdAt"`
}

type wireReceipt struct {
	MessageID string     `json:"messageId"`
	UserID    string     `json:"userId"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

type wireTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (m *Module) handlePresenceUpdate(_ context.Context, event events.PresenceUpdateEvent, _ *mono.Msg) error {
	payload := wirePresence{
		UserID:   event.UserID,
		Status:   event.Status,
		LastSeen: event.LastSeen,
	}
	for _, target := range event.Targets {
		m.hub.SendToUser(target, "presence:update", payload)
	}
	return nil
}

func (m *Module) handleMessageNew(_ context.Context, event events.MessageNewEvent, _ *mono.Msg) error {
	m.hub.BroadcastRoom(event.ConversationID, event.ExcludeConnID, "message:new", wireMessageNew{
		Message: event.Message,
	})
	return nil
}

func (m *Module) handleMessageAck(_ context.Context, event events.MessageAckEvent, _ *mono.Msg) error {
	m.hub.SendToConn(event.ConnID, "message:ack", wireAck{
		TempID:    event.TempID,
		ServerID:  event.ServerID,
		CreatedAt: event.CreatedAt,
	})
	return nil
}

func (m *Module) handleMessageReceipt(_ context.Context, event events.MessageReceiptEvent, _ *mono.Msg) error {
	eventType := "message:delivered"
	if event.Kind == events.ReceiptRead {
		eventType = "message:read"
	}
	m.hub.BroadcastRoom(event.ConversationID, "", eventType, wireReceipt{
		MessageID: event.MessageID,
		UserID:    event.UserID,
		ReadAt:    event.ReadAt,
	})
	return nil
}

func (m *Module) handleTyping(_ context.Context, event events.TypingEvent, _ *mono.Msg) error {
	m.hub.BroadcastRoom(event.ConversationID, "", "typing", wireTyping{
		ConversationID: event.ConversationID,
		UserID:         event.UserID,
		IsTyping:       event.IsTyping,
	})
	return nil
}
