package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is one turn of a conversation with a chatbot.
type Message struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a user's message history with one chatbot. ID is a ULID.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ChatbotID uuid.UUID `json:"chatbot_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastAnswer returns the most recent assistant message, if any.
func (c *Conversation) LastAnswer() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == MessageRoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}
