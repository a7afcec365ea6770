package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each conversation as JSON under conversation:{id}. Every
// read or write pushes the expiry back by ttl.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func (s *RedisStore) Create(ctx context.Context, userID, chatbotID uuid.UUID) (*models.Conversation, error) {
	c := newConversation(userID, chatbotID)
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}
	logger.Debug("[ConversationStore] created", zap.String("conversation_id", c.ID))
	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	data, err := s.client.GetEx(ctx, key(id), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var c models.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, key(c.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
