package services

import (
	"context"
	"fmt"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	store store.Store
	usage *UsageService
}

func NewUserService(s store.Store, usage *UsageService) *UserService {
	return &UserService{store: s, usage: usage}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Delete removes the account and its access rows. Chatbots it created stay
// with their other admins.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	logger.Info("[UserService] user deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *UserService) AcceptTermsOfUse(ctx context.Context, id uuid.UUID) (*models.User, error) {
	displayed := true
	u, err := s.store.UpdateUser(ctx, store.UpdateUserParams{ID: id, TermsOfUseDisplayed: &displayed})
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *UserService) Credits(ctx context.Context, id uuid.UUID) (*models.CreditsResponse, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.usage.Ledger(ctx, u)
}
