package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hyperjump/bunko/internal/models"
)

const redisKeyPrefix = "bunko:conversation:"

// RedisStore keeps conversations as JSON values in Redis with a sliding TTL.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore wraps client. Zero limits take the package defaults.
func NewRedisStore(client *redis.Client, maxMessages int, ttl time.Duration) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, maxMessages: maxMessages, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, conversationID string) ([]models.Message, error) {
	data, err := s.client.Get(ctx, redisKey(conversationID)).Bytes()
	if err == redis.Nil {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return msgs, nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	existing, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(trim(append(existing, msgs...), s.maxMessages))
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, redisKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation history: %w", err)
	}
	return nil
}
