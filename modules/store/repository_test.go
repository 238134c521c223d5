package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createConversation(t *testing.T, repo *ConversationRepository, members ...string) *domain.Conversation {
	t.Helper()

	conv := &domain.Conversation{
		ID:      uuid.New().String(),
		Members: domain.StringList(members),
	}
	if err := repo.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return conv
}

func TestConversationRepository_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db, nil)
	ctx := context.Background()

	conv := createConversation(t, repo, "user-a", "user-b")

	found, err := repo.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found.HasMember("user-a") || !found.HasMember("user-b") {
		t.Errorf("Get() members = %v, want user-a and user-b", found.Members)
	}

	if _, err := repo.Get(ctx, "nonexistent"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("Get() error = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationRepository_ForMember(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db, nil)
	ctx := context.Background()

	createConversation(t, repo, "user-a", "user-b")
	createConversation(t, repo, "user-a", "user-c")
	createConversation(t, repo, "user-b", "user-c")

	convs, err := repo.ForMember(ctx, "user-a")
	if err != nil {
		t.Fatalf("ForMember() error = %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("ForMember(user-a) count = %d, want 2", len(convs))
	}

	convs, err = repo.ForMember(ctx, "user-z")
	if err != nil {
		t.Fatalf("ForMember() error = %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("ForMember(user-z) count = %d, want 0", len(convs))
	}
}

func TestConversationRepository_SetLastMessage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db, nil)
	ctx := context.Background()

	conv := createConversation(t, repo, "user-a", "user-b")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SetLastMessage(ctx, conv.ID, "msg-1", at); err != nil {
		t.Fatalf("SetLastMessage() error = %v", err)
	}

	found, err := repo.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.LastMessageID != "msg-1" {
		t.Errorf("LastMessageID = %q, want %q", found.LastMessageID, "msg-1")
	}
	if !found.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", found.UpdatedAt, at)
	}
}

func createMessage(t *testing.T, repo *MessageRepository, conversationID, senderID, text string) *domain.Message {
	t.Helper()

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           domain.MessageText,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return msg
}

func TestMessageRepository_AddDeliveredIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := createMessage(t, repo, "conv-1", "user-a", "hi")

	changed, err := repo.AddDelivered(ctx, "conv-1", msg.ID, "user-b")
	if err != nil {
		t.Fatalf("AddDelivered() error = %v", err)
	}
	if !changed {
		t.Error("first AddDelivered() should report a change")
	}

	changed, err = repo.AddDelivered(ctx, "conv-1", msg.ID, "user-b")
	if err != nil {
		t.Fatalf("AddDelivered() error = %v", err)
	}
	if changed {
		t.Error("repeated AddDelivered() should be a no-op")
	}

	var found domain.Message
	if err := db.First(&found, "id = ?", msg.ID).Error; err != nil {
		t.Fatalf("failed to reload message: %v", err)
	}
	if len(found.DeliveredTo) != 1 || found.DeliveredTo[0] != "user-b" {
		t.Errorf("deliveredTo = %v, want [user-b]", found.DeliveredTo)
	}
	if found.Status() != domain.StatusDelivered {
		t.Errorf("Status() = %q, want %q", found.Status(), domain.StatusDelivered)
	}
}

func TestMessageRepository_AddDeliveredUnknownMessage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)

	changed, err := repo.AddDelivered(context.Background(), "conv-1", "nonexistent", "user-b")
	if err != nil {
		t.Fatalf("AddDelivered() error = %v", err)
	}
	if changed {
		t.Error("AddDelivered() for an unknown message should report no change")
	}
}

func TestMessageRepository_AddDeliveredWrongConversation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := createMessage(t, repo, "conv-1", "user-a", "hi")

	changed, err := repo.AddDelivered(ctx, "conv-2", msg.ID, "user-b")
	if err != nil {
		t.Fatalf("AddDelivered() error = %v", err)
	}
	if changed {
		t.Error("AddDelivered() scoped to another conversation should not match")
	}
}

func TestMessageRepository_AddReadIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := createMessage(t, repo, "conv-1", "user-a", "hi")
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	changed, err := repo.AddRead(ctx, "conv-1", msg.ID, "user-b", first)
	if err != nil {
		t.Fatalf("AddRead() error = %v", err)
	}
	if !changed {
		t.Error("first AddRead() should report a change")
	}

	changed, err = repo.AddRead(ctx, "conv-1", msg.ID, "user-b", first.Add(time.Minute))
	if err != nil {
		t.Fatalf("AddRead() error = %v", err)
	}
	if changed {
		t.Error("repeated AddRead() should be a no-op")
	}

	var found domain.Message
	if err := db.First(&found, "id = ?", msg.ID).Error; err != nil {
		t.Fatalf("failed to reload message: %v", err)
	}
	if len(found.ReadBy) != 1 {
		t.Fatalf("readBy size = %d, want 1", len(found.ReadBy))
	}
	if !found.ReadBy[0].ReadAt.Equal(first) {
		t.Errorf("readAt = %v, want the original timestamp %v", found.ReadBy[0].ReadAt, first)
	}
	if found.Status() != domain.StatusRead {
		t.Errorf("Status() = %q, want %q", found.Status(), domain.StatusRead)
	}
}

func TestMessageRepository_History(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := &domain.Message{
			ID:             uuid.New().String(),
			ConversationID: "conv-1",
			SenderID:       "user-a",
			Type:           domain.MessageText,
			Text:           "hello",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	msgs, err := repo.History(ctx, "conv-1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("History() count = %d, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("History() not in ascending order at index %d", i)
		}
	}
	// The newest message must be included.
	if !msgs[len(msgs)-1].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("History() newest = %v, want %v", msgs[len(msgs)-1].CreatedAt, base.Add(4*time.Minute))
	}
}

func TestMessageRepository_HistoryLimitClamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		msg := &domain.Message{
			ID:             uuid.New().String(),
			ConversationID: "conv-1",
			SenderID:       "user-a",
			Type:           domain.MessageText,
			Text:           "hello",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero falls back to default", limit: 0, want: 50},
		{name: "negative falls back to default", limit: -5, want: 50},
		{name: "within range is honored", limit: 80, want: 80},
		{name: "oversized clamps to ceiling", limit: 500, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := repo.History(ctx, "conv-1", tt.limit)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(msgs) != tt.want {
				t.Errorf("History(limit=%d) count = %d, want %d", tt.limit, len(msgs), tt.want)
			}
		})
	}
}

func TestUserDirectory_TouchLastSeen(t *testing.T) {
	db := setupTestDB(t)
	dir := NewUserDirectory(db)
	ctx := context.Background()

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := dir.TouchLastSeen(ctx, "user-a", first); err != nil {
		t.Fatalf("TouchLastSeen() error = %v", err)
	}

	second := first.Add(time.Hour)
	if err := dir.TouchLastSeen(ctx, "user-a", second); err != nil {
		t.Fatalf("TouchLastSeen() upsert error = %v", err)
	}

	got, err := dir.LastSeen(ctx, "user-a")
	if err != nil {
		t.Fatalf("LastSeen() error = %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("LastSeen() = %v, want %v", got, second)
	}

	got, err = dir.LastSeen(ctx, "user-unknown")
	if err != nil {
		t.Fatalf("LastSeen() error = %v", err)
	}
	if !got.IsZero() {
		t.Errorf("LastSeen() for unknown user = %v, want zero time", got)
	}
}
