package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/example/chat-presence-service/domain/chat"
)

// MembershipCache is a cache-aside layer over conversation lookups. The room
// router resolves conversation membership on every connect and on every send,
// so hot conversations are cached with a short TTL. The cache is strictly an
// optimization: callers fall back to the database on any miss or error.
type MembershipCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMembershipCache creates a cache over an established Redis client.
func NewMembershipCache(client *redis.Client, prefix string, ttl time.Duration) *MembershipCache {
	return &MembershipCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the cached conversation, if any. Errors count as misses.
func (c *MembershipCache) Get(ctx context.Context, id string) (*domain.Conversation, bool) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		return nil, false
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, false
	}
	return &conv, true
}

// Set stores a conversation with the cache TTL.
func (c *MembershipCache) Set(ctx context.Context, conv *domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+conv.ID, data, c.ttl).Err()
}

// Invalidate drops a cached conversation.
func (c *MembershipCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.prefix+id).Err()
}

// Ping checks the Redis connection.
func (c *MembershipCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *MembershipCache) Close() error {
	return c.client.Close()
}
