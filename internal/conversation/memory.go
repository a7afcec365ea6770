package conversation

import (
	"context"
	"sync"
	"time"

	"docutalk-backend/internal/models"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is used when no Redis address is configured. Histories are
// lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*models.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.Conversation)}
}

func (s *MemoryStore) Create(_ context.Context, userID, chatbotID uuid.UUID) (*models.Conversation, error) {
	c := newConversation(userID, chatbotID)
	s.mu.Lock()
	s.items[c.ID] = clone(c)
	s.mu.Unlock()
	return c, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) Save(_ context.Context, c *models.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.items[c.ID] = clone(c)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func clone(c *models.Conversation) *models.Conversation {
	out := *c
	out.Messages = append([]models.Message(nil), c.Messages...)
	return &out
}
