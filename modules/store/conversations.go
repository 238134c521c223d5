package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// ConversationRepository persists conversations. Reads go through the
// membership cache when one is configured; any cache error falls back to the
// database.
type ConversationRepository struct {
	db     *gorm.DB
	cache  *MembershipCache
	logger *slog.Logger
}

// NewConversationRepository creates a new ConversationRepository. cache may
// be nil.
func NewConversationRepository(db *gorm.DB, cache *MembershipCache) *ConversationRepository {
	return &ConversationRepository{
		db:     db,
		cache:  cache,
		logger: slog.Default(),
	}
}

// Create persists a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// Get returns a conversation by ID, or domain.ErrConversationNotFound.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	if r.cache != nil {
		if conv, ok := r.cache.Get(ctx, id); ok {
			return conv, nil
		}
	}

	var conv domain.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, &conv); err != nil {
			r.logger.Debug("membership cache set failed", "conversationId", id, "error", err)
		}
	}
	return &conv, nil
}

// ForMember returns every conversation the user is a member of.
func (r *ConversationRepository) ForMember(ctx context.Context, userID string) ([]domain.Conversation, error) {
	// Members is a JSON array of quoted IDs, so a quoted LIKE match is exact.
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Where(`members LIKE ?`, `%"`+userID+`"%`).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// SetLastMessage advances the conversation's last-message pointer and its
// updated-at timestamp.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_id": messageID,
			"updated_at":      at,
		}).Error
	if err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, id); err != nil {
			r.logger.Debug("membership cache invalidate failed", "conversationId", id, "error", err)
		}
	}
	return nil
}
