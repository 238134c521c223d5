package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/example/chat-presence-service/domain/chat"
	"github.com/example/chat-presence-service/events"
	"github.com/example/chat-presence-service/modules/presence"
)

// SendIntent is a client's request to post a message. TempID is the client's
// correlation id, echoed back in the ack.
type SendIntent struct {
	ConversationID   string
	TempID           string
	Type             domain.MessageType
	Text             string
	MediaURL         string
	ReplyToMessageID string
}

// Service implements the realtime messaging semantics: presence transitions,
// message relay with receipt tracking, and typing signals. In-session
// failures are absorbed; a dropped operation simply produces no events.
type Service struct {
	registry *presence.Registry
	convs    ConversationStore
	msgs     MessageStore
	users    UserDirectory
	rooms    Rooms
	events   Events

	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new Service.
func NewService(registry *presence.Registry, convs ConversationStore, msgs MessageStore, users UserDirectory, rooms Rooms, emitter Events) *Service {
	return &Service{
		registry: registry,
		convs:    convs,
		msgs:     msgs,
		users:    users,
		rooms:    rooms,
		events:   emitter,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Connect registers a new connection for the user and subscribes it to the
// rooms of every conversation the user belongs to. On the user's first
// connection it announces the online transition to the user's own devices and
// to the contact set.
//
// A conversation store failure is soft: the connection stays registered for
// presence but receives no room broadcasts until reconnect.
func (s *Service) Connect(ctx context.Context, userID, connID string) {
	first := s.registry.Register(userID, connID)

	contacts, err := s.joinRooms(ctx, userID, connID)
	if err != nil {
		s.logger.Warn("room subscription failed, presence only",
			"userId", userID, "connId", connID, "error", err)
	}

	if !first {
		return
	}
	s.events.PresenceUpdate(events.PresenceUpdateEvent{
		UserID:  userID,
		Status:  events.PresenceOnline,
		Targets: append(contacts, userID),
	})
}

// Disconnect removes a connection. When the user's last connection closes it
// captures a last-seen timestamp, persists it asynchronously (failure is
// swallowed) and announces the offline transition. Repeated calls for the
// same connection are no-ops.
func (s *Service) Disconnect(ctx context.Context, userID, connID string) {
	last := s.registry.Unregister(userID, connID)
	if !last {
		return
	}

	lastSeen := s.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.users.TouchLastSeen(ctx, userID, lastSeen); err != nil {
			s.logger.Warn("last-seen persistence failed", "userId", userID, "error", err)
		}
	}()

	contacts, err := s.contactSet(ctx, userID)
	if err != nil {
		s.logger.Warn("contact lookup failed, notifying own devices only",
			"userId", userID, "error", err)
	}
	s.events.PresenceUpdate(events.PresenceUpdateEvent{
		UserID:   userID,
		Status:   events.PresenceOffline,
		LastSeen: &lastSeen,
		Targets:  append(contacts, userID),
	})
}

// Send validates and persists a message, then acks the sender and broadcasts
// to the rest of the room. Invalid sends are dropped silently: a non-member
// must not learn that the conversation exists, and a stale client gets no
// error to retry against.
func (s *Service) Send(ctx context.Context, connID, userID string, intent SendIntent) {
	if intent.ConversationID == "" {
		return
	}

	conv, err := s.convs.Get(ctx, intent.ConversationID)
	if err != nil {
		if !errors.Is(err, domain.ErrConversationNotFound) {
			s.logger.Warn("conversation lookup failed", "conversationId", intent.ConversationID, "error", err)
		}
		return
	}
	if !conv.HasMember(userID) {
		return
	}

	msgType := intent.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	if msgType == domain.MessageText && strings.TrimSpace(intent.Text) == "" {
		return
	}

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       userID,
		Type:           msgType,
		Text:           intent.Text,
		MediaURL:       intent.MediaURL,
		ReplyToID:      intent.ReplyToMessageID,
		CreatedAt:      s.now(),
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		s.logger.Warn("message persistence failed", "conversationId", conv.ID, "error", err)
		return
	}

	if err := s.convs.SetLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		s.logger.Warn("last-message update failed", "conversationId", conv.ID, "error", err)
	}

	// Covers members whose sessions predate the conversation.
	s.EnsureSubscribed(conv)

	s.events.MessageAck(events.MessageAckEvent{
		ConnID:    connID,
		TempID:    intent.TempID,
		ServerID:  msg.ID,
		CreatedAt: msg.CreatedAt,
	})
	s.events.MessageNew(events.MessageNewEvent{
		ConversationID: conv.ID,
		ExcludeConnID:  connID,
		Message:        *msg,
	})
}

// MarkDelivered records delivery receipts for the acting user and broadcasts
// one event per changed message. Unknown or already-delivered ids are
// skipped; store failures are suppressed per message.
func (s *Service) MarkDelivered(ctx context.Context, userID, conversationID string, messageIDs []string) {
	for _, id := range messageIDs {
		changed, err := s.msgs.AddDelivered(ctx, conversationID, id, userID)
		if err != nil {
			s.logger.Warn("delivery receipt failed", "messageId", id, "error", err)
			continue
		}
		if !changed {
			continue
		}
		s.events.MessageReceipt(events.MessageReceiptEvent{
			ConversationID: conversationID,
			MessageID:      id,
			UserID:         userID,
			Kind:           events.ReceiptDelivered,
		})
	}
}

// MarkRead records read receipts with the current timestamp and broadcasts
// one event per changed message.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) {
	readAt := s.now()
	for _, id := range messageIDs {
		changed, err := s.msgs.AddRead(ctx, conversationID, id, userID, readAt)
		if err != nil {
			s.logger.Warn("read receipt failed", "messageId", id, "error", err)
			continue
		}
		if !changed {
			continue
		}
		at := readAt
		s.events.MessageReceipt(events.MessageReceiptEvent{
			ConversationID: conversationID,
			MessageID:      id,
			UserID:         userID,
			Kind:           events.ReceiptRead,
			ReadAt:         &at,
		})
	}
}

// Typing broadcasts an ephemeral typing signal to the conversation's room.
// Best-effort: no membership check, nothing persisted.
func (s *Service) Typing(userID, conversationID string, isTyping bool) {
	if conversationID == "" {
		return
	}
	s.events.Typing(events.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
}

// CreateConversation persists a conversation for the creator and the given
// members, then subscribes every online member's connections to its room.
func (s *Service) CreateConversation(ctx context.Context, creatorID string, memberIDs []string) (*domain.Conversation, error) {
	seen := map[string]bool{creatorID: true}
	members := domain.StringList{creatorID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	conv := &domain.Conversation{
		ID:        uuid.New().String(),
		Members:   members,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}

	s.EnsureSubscribed(conv)
	return conv, nil
}

// Conversations returns every conversation the user belongs to.
func (s *Service) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.convs.ForMember(ctx, userID)
}

// History returns a conversation's recent messages. Non-members get
// domain.ErrConversationNotFound, indistinguishable from a missing
// conversation.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, domain.ErrConversationNotFound
	}
	return s.msgs.History(ctx, conversationID, limit)
}

// EnsureSubscribed idempotently subscribes every online member's connections
// to the conversation's room.
func (s *Service) EnsureSubscribed(conv *domain.Conversation) {
	for _, member := range conv.Members {
		for _, connID := range s.registry.Connections(member) {
			s.rooms.Subscribe(connID, conv.ID)
		}
	}
}

func (s *Service) joinRooms(ctx context.Context, userID, connID string) ([]string, error) {
	convs, err := s.convs.ForMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var contacts []string
	for _, conv := range convs {
		s.rooms.Subscribe(connID, conv.ID)
		for _, member := range conv.Members {
			if member == userID || seen[member] {
				continue
			}
			seen[member] = true
			contacts = append(contacts, member)
		}
	}
	return contacts, nil
}

func (s *Service) contactSet(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.convs.ForMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var contacts []string
	for _, conv := range convs {
		for _, member := range conv.Members {
			if member == userID || seen[member] {
				continue
			}
			seen[member] = true
			contacts = append(contacts, member)
		}
	}
	return contacts, nil
}
