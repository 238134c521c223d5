package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// UserDirectory records last-seen timestamps for users.
type UserDirectory struct {
	db *gorm.DB
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{
		db: db,
	}
}

// TouchLastSeen upserts the user's last-seen timestamp.
func (d *UserDirectory) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
		}).
		Create(&domain.User{ID: userID, LastSeen: at}).Error
}

// LastSeen returns the recorded last-seen timestamp, or the zero time when
// the user is unknown.
func (d *UserDirectory) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	var user domain.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return user.LastSeen, nil
}
