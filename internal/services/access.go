package services

import (
	"context"
	"errors"
	"fmt"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

var (
	ErrChatbotNotFound = errors.New("chatbot not found")
	ErrForbidden       = errors.New("admin role required")
	ErrGuestForbidden  = errors.New("not available to guest accounts")
)

// Caller is the authenticated user of a request.
type Caller struct {
	UserID  uuid.UUID
	Email   string
	IsGuest bool
}

// resolveRole returns the chatbot with the caller's role on it. Public
// chatbots give RoleUser to anyone without an access row; a private
// chatbot the caller has no access to is reported as not found.
func resolveRole(ctx context.Context, st store.Store, chatbotID uuid.UUID, email string) (*models.Chatbot, models.Role, error) {
	chatbot, err := st.GetChatbotByID(ctx, chatbotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrChatbotNotFound
		}
		return nil, "", fmt.Errorf("failed to get chatbot: %w", err)
	}

	access, err := st.GetAccess(ctx, chatbotID, email)
	switch {
	case err == nil:
		return chatbot, access.Role, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", fmt.Errorf("failed to get access: %w", err)
	case chatbot.Access == models.AccessPublic:
		return chatbot, models.RoleUser, nil
	}
	return nil, "", ErrChatbotNotFound
}

// requireAdmin is resolveRole for operations that modify the chatbot.
func requireAdmin(ctx context.Context, st store.Store, chatbotID uuid.UUID, email string) (*models.Chatbot, error) {
	chatbot, role, err := resolveRole(ctx, st, chatbotID, email)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return chatbot, nil
}
