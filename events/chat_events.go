package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// Presence status values carried by PresenceUpdateEvent.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Receipt kinds carried by MessageReceiptEvent.
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
)

// PresenceUpdateEvent is emitted when a user transitions online or offline.
// Targets lists the users whose devices should receive the update: the user's
// own other devices plus everyone sharing a conversation with them.
type PresenceUpdateEvent struct {
	UserID   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	Targets  []string   `json:"targets"`
}

// MessageNewEvent is emitted after a message is persisted. ExcludeConnID is
// the sender's connection, which gets an ack instead of the broadcast.
type MessageNewEvent struct {
	ConversationID string         `json:"conversationId"`
	ExcludeConnID  string         `json:"excludeConnId"`
	Message        domain.Message `json:"message"`
}

// MessageAckEvent is emitted to reconcile the sender's optimistic copy with
// the persisted message. It targets a single connection.
type MessageAckEvent struct {
	ConnID    string    `json:"connId"`
	TempID    string    `json:"tempId"`
	ServerID  string    `json:"serverId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageReceiptEvent is emitted when a delivery or read receipt is recorded.
type MessageReceiptEvent struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	UserID         string     `json:"userId"`
	Kind           string     `json:"kind"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// TypingEvent is an ephemeral typing signal, never persisted.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Event definitions for the realtime chat domain.
var (
	PresenceUpdateV1 = helper.EventDefinition[PresenceUpdateEvent](
		"chat",
		"PresenceUpdate",
		"v1",
	)

	MessageNewV1 = helper.EventDefinition[MessageNewEvent](
		"chat",
		"MessageNew",
		"v1",
	)

	MessageAckV1 = helper.EventDefinition[MessageAckEvent](
		"chat",
		"MessageAck",
		"v1",
	)

	MessageReceiptV1 = helper.EventDefinition[MessageReceiptEvent](
		"chat",
		"MessageReceipt",
		"v1",
	)

	TypingV1 = helper.EventDefinition[TypingEvent](
		"chat",
		"Typing",
		"v1",
	)
)
