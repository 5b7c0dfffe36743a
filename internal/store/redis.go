package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley-chat/parley/internal/models"
)

const archiveTTL = 7 * 24 * time.Hour

// RedisStore mirrors committed messages into Redis for history that
// survives process restarts, and backs the rate limiter counters.
// The archive is best-effort: failures never fail a send.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// chatMessagesKey returns the key for a chat's message sorted set.
func chatMessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

// ArchiveMessage stores a committed message in the chat's sorted set,
// scored by its chat-scoped sequence number.
func (s *RedisStore) ArchiveMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := chatMessagesKey(msg.ChatID.String())

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Seq),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, archiveTTL)
	return nil
}

// ChatHistory retrieves archived messages with seq greater than afterSeq,
// in ascending sequence order.
func (s *RedisStore) ChatHistory(ctx context.Context, chatID string, afterSeq int64, limit int) ([]models.Message, error) {
	key := chatMessagesKey(chatID)

	results, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", afterSeq),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// TrimChat drops archived entries with seq at or below the cutoff,
// matching the in-memory retention policy.
func (s *RedisStore) TrimChat(ctx context.Context, chatID string, upToSeq int64) error {
	key := chatMessagesKey(chatID)
	return s.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", upToSeq)).Err()
}
