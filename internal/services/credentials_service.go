package services

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"

	"docutalk-backend/internal/crypto"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/models"
	integration_models "docutalk-backend/internal/models/integrations"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Custom errors for Credentials service
var (
	ErrCredentialNotFound     = errors.New("credential not found")
	ErrCredentialValidation   = errors.New("credential validation failed")
	ErrCredentialEncryption   = errors.New("credential encryption failed")
	ErrCredentialDecryption   = errors.New("credential decryption failed")
	ErrCredentialTestFailed   = errors.New("credential test failed")
	ErrUnsupportedServiceType = errors.New("unsupported service type")
)

const credentialStatusActive = "ACTIVE"

// CredentialsService stores integration secrets sealed with AES-GCM.
type CredentialsService interface {
	CreateCredential(ctx context.Context, req models.CreateCredentialRequest, userID uuid.UUID) (*models.CredentialResponse, error)
	GetCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.CredentialResponse, error)
	ListCredentials(ctx context.Context, userID uuid.UUID, serviceType *string) ([]models.CredentialResponse, error)
	DeleteCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	TestCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.TestCredentialResponse, error)
	// Decrypt returns the service type and the plain secrets of a credential.
	Decrypt(ctx context.Context, id uuid.UUID, userID uuid.UUID) (string, integration_models.DecryptedCredentials, error)
}

type credentialsService struct {
	store    store.Store
	aead     cipher.AEAD
	registry *integrations.Registry
}

func NewCredentialsService(s store.Store, aeadCipher cipher.AEAD, reg *integrations.Registry) CredentialsService {
	return &credentialsService{
		store:    s,
		aead:     aeadCipher,
		registry: reg,
	}
}

func mapCredentialToResponse(c *models.IntegrationCredential) *models.CredentialResponse {
	return &models.CredentialResponse{
		ID:             c.ID,
		ServiceType:    models.ServiceType(c.ServiceType),
		CredentialName: c.CredentialName,
		Status:         c.Status,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// CreateCredential tests the secrets against the service, then stores them
// sealed. The name reported by the service wins over the requested one.
func (s *credentialsService) CreateCredential(ctx context.Context, req models.CreateCredentialRequest, userID uuid.UUID) (*models.CredentialResponse, error) {
	if req.ServiceType == "" {
		return nil, fmt.Errorf("%w: service type cannot be empty", ErrCredentialValidation)
	}
	if len(req.Credentials) == 0 {
		return nil, fmt.Errorf("%w: credentials map cannot be empty", ErrCredentialValidation)
	}
	integration, err := s.registry.Get(string(req.ServiceType))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedServiceType, req.ServiceType)
	}
	creds := integration_models.DecryptedCredentials(req.Credentials)
	if err := integration.ValidateCredentials(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialValidation, err)
	}

	var name string
	if req.CredentialName != nil {
		name = *req.CredentialName
	}

	testResult, err := integration.TestConnection(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !testResult.Success {
		logger.Warn("[CredService] pre-save test failed",
			zap.String("user_id", userID.String()),
			zap.String("service_type", string(req.ServiceType)),
			zap.String("message", testResult.Message),
		)
		return nil, fmt.Errorf("%w: %s", ErrCredentialTestFailed, testResult.Message)
	}
	if botName, ok := testResult.Details["bot_name"].(string); ok && botName != "" {
		name = botName
	}

	sealed, err := crypto.SealJSON(s.aead, creds)
	if err != nil {
		logger.Error("[CredService] sealing credentials failed", zap.Error(err))
		return nil, ErrCredentialEncryption
	}

	c, err := s.store.CreateIntegrationCredential(ctx, store.CreateIntegrationCredentialParams{
		ID:                   uuid.New(),
		UserID:               userID,
		ServiceType:          string(req.ServiceType),
		CredentialName:       name,
		EncryptedCredentials: sealed,
		Status:               credentialStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}
	logger.Info("[CredService] credential created",
		zap.String("credential_id", c.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("name", c.CredentialName),
	)
	return mapCredentialToResponse(c), nil
}

func (s *credentialsService) get(ctx context.Context, id, userID uuid.UUID) (*models.IntegrationCredential, error) {
	c, err := s.store.GetIntegrationCredentialByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to retrieve credential: %w", err)
	}
	return c, nil
}

func (s *credentialsService) GetCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.CredentialResponse, error) {
	c, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return mapCredentialToResponse(c), nil
}

func (s *credentialsService) ListCredentials(ctx context.Context, userID uuid.UUID, serviceType *string) ([]models.CredentialResponse, error) {
	items, err := s.store.ListIntegrationCredentials(ctx, userID, serviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	resp := make([]models.CredentialResponse, len(items))
	for i := range items {
		resp[i] = *mapCredentialToResponse(&items[i])
	}
	return resp, nil
}

func (s *credentialsService) DeleteCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if err := s.store.DeleteIntegrationCredential(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	logger.Info("[CredService] credential deleted", zap.String("credential_id", id.String()))
	return nil
}

func (s *credentialsService) Decrypt(ctx context.Context, id uuid.UUID, userID uuid.UUID) (string, integration_models.DecryptedCredentials, error) {
	c, err := s.get(ctx, id, userID)
	if err != nil {
		return "", nil, err
	}
	var creds integration_models.DecryptedCredentials
	if err := crypto.OpenJSON(s.aead, c.EncryptedCredentials, &creds); err != nil {
		logger.Error("[CredService] opening credentials failed", zap.String("credential_id", id.String()), zap.Error(err))
		return "", nil, ErrCredentialDecryption
	}
	return c.ServiceType, creds, nil
}

// TestCredential checks a stored credential against its service. A
// rejected credential is a response with Success false, not an error.
func (s *credentialsService) TestCredential(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.TestCredentialResponse, error) {
	serviceType, creds, err := s.Decrypt(ctx, id, userID)
	if errors.Is(err, ErrCredentialDecryption) {
		return &models.TestCredentialResponse{Success: false, Message: "Failed to decrypt credentials for testing."}, nil
	}
	if err != nil {
		return nil, err
	}
	integration, err := s.registry.Get(serviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedServiceType, serviceType)
	}

	result, err := integration.TestConnection(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	logger.Info("[CredService] credential tested",
		zap.String("credential_id", id.String()),
		zap.Bool("success", result.Success),
	)
	return &models.TestCredentialResponse{Success: result.Success, Message: result.Message}, nil
}
