package postgres

import (
	"context"
	"fmt"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// encrypted_credentials is JSONB holding the {"encrypted": "<base64>"}
// envelope built by the credentials service; it is stored and returned as is.
const credentialColumns = `id, user_id, service_type, credential_name, encrypted_credentials, status, created_at, updated_at`

func scanCredential(row rowScanner) (*models.IntegrationCredential, error) {
	c := &models.IntegrationCredential{}
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.ServiceType,
		&c.CredentialName,
		&c.EncryptedCredentials,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const createIntegrationCredential = `-- name: CreateIntegrationCredential :one
INSERT INTO integration_credentials (id, user_id, service_type, credential_name, encrypted_credentials, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + credentialColumns

func (s *PostgresStore) CreateIntegrationCredential(ctx context.Context, arg store.CreateIntegrationCredentialParams) (*models.IntegrationCredential, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	c, err := scanCredential(s.db.QueryRow(ctx, createIntegrationCredential,
		arg.ID,
		arg.UserID,
		arg.ServiceType,
		arg.CredentialName,
		arg.EncryptedCredentials,
		arg.Status,
	))
	if err != nil {
		return nil, mapError("CreateIntegrationCredential", err)
	}
	logger.Info("[PostgresStore] CreateIntegrationCredential: inserted",
		zap.String("credential_id", c.ID.String()),
		zap.String("service_type", c.ServiceType),
	)
	return c, nil
}

const getIntegrationCredentialByID = `-- name: GetIntegrationCredentialByID :one
SELECT ` + credentialColumns + `
FROM integration_credentials
WHERE id = $1 AND user_id = $2`

// GetIntegrationCredentialByID only returns credentials owned by userID.
func (s *PostgresStore) GetIntegrationCredentialByID(ctx context.Context, id, userID uuid.UUID) (*models.IntegrationCredential, error) {
	c, err := scanCredential(s.db.QueryRow(ctx, getIntegrationCredentialByID, id, userID))
	if err != nil {
		return nil, mapError("GetIntegrationCredentialByID", err)
	}
	return c, nil
}

func (s *PostgresStore) ListIntegrationCredentials(ctx context.Context, userID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM integration_credentials WHERE user_id = $1`
	args := []any{userID}
	if serviceType != nil && *serviceType != "" {
		query += " AND service_type = $2"
		args = append(args, *serviceType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("ListIntegrationCredentials", err)
	}
	defer rows.Close()

	creds := []models.IntegrationCredential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning integration credential: %w", err)
		}
		creds = append(creds, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integration credentials: %w", err)
	}
	return creds, nil
}

func (s *PostgresStore) DeleteIntegrationCredential(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM integration_credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError("DeleteIntegrationCredential", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	logger.Info("[PostgresStore] DeleteIntegrationCredential: deleted", zap.String("credential_id", id.String()))
	return nil
}
