package conversation

import (
	"context"
	"errors"
	"time"

	"docutalk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("conversation not found")

// Store keeps chat histories. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, userID, chatbotID uuid.UUID) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Save(ctx context.Context, c *models.Conversation) error
	Delete(ctx context.Context, id string) error
}

func newConversation(userID, chatbotID uuid.UUID) *models.Conversation {
	now := time.Now().UTC()
	return &models.Conversation{
		ID:        ulid.Make().String(),
		UserID:    userID,
		ChatbotID: chatbotID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
