package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPublicChatbot  = errors.New("public chatbots cannot be shared individually")
	ErrAccessNotFound = errors.New("access not found")
	ErrRemoveSelf     = errors.New("admins cannot remove their own access")
)

// AccessService manages who a chatbot is shared with.
type AccessService struct {
	store    store.Store
	mailer   mailing.Dispatcher
	composer mailing.Composer
}

func NewAccessService(s store.Store, mailer mailing.Dispatcher, composer mailing.Composer) *AccessService {
	return &AccessService{store: s, mailer: mailer, composer: composer}
}

func (s *AccessService) List(ctx context.Context, caller Caller, chatbotID uuid.UUID) ([]models.AccessResponse, error) {
	if _, err := requireAdmin(ctx, s.store, chatbotID, caller.Email); err != nil {
		return nil, err
	}
	items, err := s.store.ListAccess(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access: %w", err)
	}
	resp := make([]models.AccessResponse, 0, len(items))
	for _, a := range items {
		resp = append(resp, models.AccessResponse{Email: a.UserEmail, Role: a.Role, CreatedAt: a.CreatedAt})
	}
	return resp, nil
}

// Share grants req.Role to req.Email and mails the recipient. The email
// may belong to someone without an account yet.
func (s *AccessService) Share(ctx context.Context, caller Caller, chatbotID uuid.UUID, req models.ShareChatbotRequest) (*models.AccessResponse, error) {
	if caller.IsGuest {
		return nil, ErrGuestForbidden
	}
	chatbot, err := requireAdmin(ctx, s.store, chatbotID, caller.Email)
	if err != nil {
		return nil, err
	}
	if chatbot.Access == models.AccessPublic {
		return nil, ErrPublicChatbot
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !auth.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: role must be %s or %s", ErrValidation, models.RoleUser, models.RoleAdmin)
	}

	a, err := s.store.UpsertAccess(ctx, chatbotID, email, req.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to save access: %w", err)
	}

	// The access is granted even when the email cannot be sent.
	msg, err := s.composer.ChatbotShared(email, caller.Email, chatbot.Title)
	if err == nil {
		err = s.mailer.Dispatch(ctx, msg)
	}
	if err != nil {
		logger.Error("[AccessService] sharing email failed",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err),
		)
	}
	logger.Info("[AccessService] chatbot shared",
		zap.String("chatbot_id", chatbotID.String()),
		zap.String("role", string(a.Role)),
	)
	return &models.AccessResponse{Email: a.UserEmail, Role: a.Role, CreatedAt: a.CreatedAt}, nil
}

func (s *AccessService) Remove(ctx context.Context, caller Caller, chatbotID uuid.UUID, email string) error {
	if caller.IsGuest {
		return ErrGuestForbidden
	}
	if _, err := requireAdmin(ctx, s.store, chatbotID, caller.Email); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == caller.Email {
		return ErrRemoveSelf
	}
	if err := s.store.DeleteAccess(ctx, chatbotID, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccessNotFound
		}
		return fmt.Errorf("failed to delete access: %w", err)
	}
	return nil
}
