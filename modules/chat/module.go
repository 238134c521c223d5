package chat

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/go-monolith/mono"

	"github.com/example/chat-presence-service/events"
	"github.com/example/chat-presence-service/modules/presence"
	"github.com/example/chat-presence-service/modules/store"
)

// Module wires the messaging service to the persistence layer and the event
// bus. It implements the Events port itself, publishing every outbound event
// on the bus for the broadcast module to consume.
type Module struct {
	service  *Service
	bus      mono.EventBus
	registry *presence.Registry
	stores   *store.Module
	rooms    Rooms
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Events                     = (*Module)(nil)
)

// NewModule creates a new chat module. The store module must be registered
// (and therefore started) before this one.
func NewModule(registry *presence.Registry, stores *store.Module, rooms Rooms) *Module {
	return &Module{
		registry: registry,
		stores:   stores,
		rooms:    rooms,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.bus = bus
}

// EmitEvents declares the events this module publishes.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.PresenceUpdateV1.ToBase(),
		events.MessageNewV1.ToBase(),
		events.MessageAckV1.ToBase(),
		events.MessageReceiptV1.ToBase(),
		events.TypingV1.ToBase(),
	}
}

// Start builds the service over the started store module.
func (m *Module) Start(_ context.Context) error {
	if m.bus == nil {
		return fmt.Errorf("event bus not set")
	}
	m.service = NewService(
		m.registry,
		m.stores.Conversations(),
		m.stores.Messages(),
		m.stores.Users(),
		m.rooms,
		m,
	)
	log.Println("[chat] Module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[chat] Module stopped")
	return nil
}

// Health reports whether the service is wired and how many users are online.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "service not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"online_users": m.registry.OnlineCount(),
		},
	}
}

// Service returns the messaging service.
func (m *Module) Service() *Service {
	return m.service
}

// Events port implementation. Publish failures are logged, never propagated;
// a lost fan-out must not fail the operation that produced it.

// PresenceUpdate publishes a presence transition.
func (m *Module) PresenceUpdate(ev events.PresenceUpdateEvent) {
	if err := events.PresenceUpdateV1.Publish(m.bus, ev, nil); err != nil {
		slog.Warn("failed to publish presence update", "userId", ev.UserID, "error", err)
	}
}

// MessageNew publishes a persisted message for room fan-out.
func (m *Module) MessageNew(ev events.MessageNewEvent) {
	if err := events.MessageNewV1.Publish(m.bus, ev, nil); err != nil {
		slog.Warn("failed to publish message", "messageId", ev.Message.ID, "error", err)
	}
}

// MessageAck publishes a sender acknowledgment.
func (m *Module) MessageAck(ev events.MessageAckEvent) {
	if err := events.MessageAckV1.Publish(m.bus, ev, nil); err != nil {
		slog.Warn("failed to publish ack", "serverId", ev.ServerID, "error", err)
	}
}

// MessageReceipt publishes a delivery or read receipt.
func (m *Module) MessageReceipt(ev events.MessageReceiptEvent) {
	if err := events.MessageReceiptV1.Publish(m.bus, ev, nil); err != nil {
		slog.Warn("failed to publish receipt", "messageId", ev.MessageID, "error", err)
	}
}

// Typing publishes a typing signal.
func (m *Module) Typing(ev events.TypingEvent) {
	if err := events.TypingV1.Publish(m.bus, ev, nil); err != nil {
		slog.Warn("failed to publish typing signal", "conversationId", ev.ConversationID, "error", err)
	}
}
