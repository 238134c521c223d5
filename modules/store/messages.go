package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// MessageRepository persists messages and mutates their receipt sets.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{
		db: db,
	}
}

// Create persists a new message.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// History returns the newest messages of a conversation in ascending
// creation order, at most limit entries.
func (r *MessageRepository) History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > 100 {
		limit = 100
	}

	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// Reverse into display order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AddDelivered records a delivery receipt for userID on the message. The add
// is idempotent; it reports whether the set changed. Unknown message IDs are
// not errors.
func (r *MessageRepository) AddDelivered(ctx context.Context, conversationID, messageID, userID string) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		if err := tx.First(&msg, "id = ? AND conversation_id = ?", messageID, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !msg.MarkDelivered(userID) {
			return nil
		}
		changed = true
		return tx.Model(&domain.Message{}).
			Where("id = ?", msg.ID).
			Update("delivered_to", msg.DeliveredTo).Error
	})
	return changed, err
}

// AddRead records a read receipt for userID on the message. A user appears at
// most once in readBy; it reports whether the sequence changed.
func (r *MessageRepository) AddRead(ctx context.Context, conversationID, messageID, userID string, at time.Time) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		if err := tx.First(&msg, "id = ? AND conversation_id = ?", messageID, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !msg.MarkRead(userID, at) {
			return nil
		}
		changed = true
		return tx.Model(&domain.Message{}).
			Where("id = ?", msg.ID).
			Update("read_by", msg.ReadBy).Error
	})
	return changed, err
}
