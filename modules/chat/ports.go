package chat

import (
	"context"
	"time"

	domain "github.com/example/chat-presence-service/domain/chat"
	"github.com/example/chat-presence-service/events"
)

// ConversationStore is the persistence port for conversations.
type ConversationStore interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	ForMember(ctx context.Context, userID string) ([]domain.Conversation, error)
	SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error
}

// MessageStore is the persistence port for messages and receipts.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	AddDelivered(ctx context.Context, conversationID, messageID, userID string) (bool, error)
	AddRead(ctx context.Context, conversationID, messageID, userID string, at time.Time) (bool, error)
}

// UserDirectory records last-seen timestamps.
type UserDirectory interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Rooms is the subscription side of the room router.
type Rooms interface {
	Subscribe(connID, roomID string)
}

// Events is the outbound event emitter. The production implementation
// publishes on the event bus; tests record the calls.
type Events interface {
	PresenceUpdate(events.PresenceUpdateEvent)
	MessageNew(events.MessageNewEvent)
	MessageAck(events.MessageAckEvent)
	MessageReceipt(events.MessageReceiptEvent)
	Typing(events.TypingEvent)
}
