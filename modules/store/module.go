package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// Module owns the persistence layer: GORM over SQLite for conversations,
// messages and the user directory, plus an optional Redis membership cache.
type Module struct {
	db        *gorm.DB
	dbPath    string
	redisAddr string
	cache     *MembershipCache

	conversations *ConversationRepository
	messages      *MessageRepository
	users         *UserDirectory
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new store module. DB_PATH selects the SQLite file;
// REDIS_ADDR enables the membership cache when set.
func NewModule() *Module {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	return &Module{
		dbPath:    dbPath,
		redisAddr: os.Getenv("REDIS_ADDR"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Start opens the database, runs migrations and builds the repositories.
func (m *Module) Start(ctx context.Context) error {
	log.Printf("[store] Connecting to SQLite database: %s", m.dbPath)

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	m.db = db

	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.User{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if m.redisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: m.redisAddr,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache is an optimization; the database remains authoritative.
			log.Printf("[store] Redis unavailable at %s, membership cache disabled: %v", m.redisAddr, err)
			_ = client.Close()
		} else {
			m.cache = NewMembershipCache(client, "conv:", 30*time.Second)
			log.Printf("[store] Membership cache enabled at %s", m.redisAddr)
		}
	}

	m.conversations = NewConversationRepository(db, m.cache)
	m.messages = NewMessageRepository(db)
	m.users = NewUserDirectory(db)

	log.Println("[store] Module started")
	return nil
}

// Stop closes the database and cache connections.
func (m *Module) Stop(_ context.Context) error {
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			log.Printf("[store] Failed to close cache: %v", err)
		}
	}
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	log.Println("[store] Module stopped")
	return nil
}

// Health performs a health check on the persistence layer.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":        "sqlite",
			"path":          m.dbPath,
			"cache_enabled": m.cache != nil,
		},
	}
}

// Conversations returns the conversation repository.
func (m *Module) Conversations() *ConversationRepository {
	return m.conversations
}

// Messages returns the message repository.
func (m *Module) Messages() *MessageRepository {
	return m.messages
}

// Users returns the user directory.
func (m *Module) Users() *UserDirectory {
	return m.users
}
