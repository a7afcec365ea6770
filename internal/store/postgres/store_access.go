package postgres

import (
	"context"
	"fmt"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

const upsertAccess = `-- name: UpsertAccess :one
INSERT INTO access (chatbot_id, user_email, role)
VALUES ($1, $2, $3)
ON CONFLICT (chatbot_id, user_email) DO UPDATE SET role = EXCLUDED.role
RETURNING chatbot_id, user_email, role, created_at`

func (s *PostgresStore) UpsertAccess(ctx context.Context, chatbotID uuid.UUID, email string, role models.Role) (*models.Access, error) {
	a := &models.Access{}
	err := s.db.QueryRow(ctx, upsertAccess, chatbotID, email, role).
		Scan(&a.ChatbotID, &a.UserEmail, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, mapError("UpsertAccess", err)
	}
	return a, nil
}

const getAccess = `-- name: GetAccess :one
SELECT chatbot_id, user_email, role, created_at
FROM access
WHERE chatbot_id = $1 AND user_email = $2`

func (s *PostgresStore) GetAccess(ctx context.Context, chatbotID uuid.UUID, email string) (*models.Access, error) {
	a := &models.Access{}
	err := s.db.QueryRow(ctx, getAccess, chatbotID, email).
		Scan(&a.ChatbotID, &a.UserEmail, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, mapError("GetAccess", err)
	}
	return a, nil
}

const listAccess = `-- name: ListAccess :many
SELECT chatbot_id, user_email, role, created_at
FROM access
WHERE chatbot_id = $1
ORDER BY created_at`

func (s *PostgresStore) ListAccess(ctx context.Context, chatbotID uuid.UUID) ([]models.Access, error) {
	rows, err := s.db.Query(ctx, listAccess, chatbotID)
	if err != nil {
		return nil, mapError("ListAccess", err)
	}
	defer rows.Close()

	var items []models.Access
	for rows.Next() {
		var a models.Access
		if err := rows.Scan(&a.ChatbotID, &a.UserEmail, &a.Role, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning access row: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteAccess(ctx context.Context, chatbotID uuid.UUID, email string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM access WHERE chatbot_id = $1 AND user_email = $2`, chatbotID, email)
	if err != nil {
		return mapError("DeleteAccess", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
