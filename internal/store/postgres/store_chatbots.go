package postgres

import (
	"context"
	"fmt"
	"strings"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const chatbotColumns = `id, created_by, title, description, icon, access, created_at, updated_at`

func scanChatbot(row rowScanner) (*models.Chatbot, error) {
	c := &models.Chatbot{}
	err := row.Scan(
		&c.ID,
		&c.CreatedBy,
		&c.Title,
		&c.Description,
		&c.Icon,
		&c.Access,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const (
	insertChatbot = `-- name: CreateChatbot :one
INSERT INTO chatbots (id, created_by, title, description, icon, access)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + chatbotColumns

	insertSuggestedPrompt = `-- name: InsertSuggestedPrompt :exec
INSERT INTO suggested_prompts (id, chatbot_id, prompt, position)
VALUES ($1, $2, $3, $4)`

	insertAccess = `-- name: InsertAccess :exec
INSERT INTO access (chatbot_id, user_email, role)
VALUES ($1, $2, $3)
ON CONFLICT (chatbot_id, user_email) DO UPDATE SET role = EXCLUDED.role`
)

// CreateChatbot inserts the chatbot, its prompts, its documents and the
// creator's Admin access in one transaction.
func (s *PostgresStore) CreateChatbot(ctx context.Context, arg store.CreateChatbotParams) (*models.Chatbot, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	if arg.Access == "" {
		arg.Access = models.AccessPrivate
	}

	var created *models.Chatbot
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		c, err := scanChatbot(tx.QueryRow(ctx, insertChatbot,
			arg.ID, arg.CreatedBy, arg.Title, arg.Description, arg.Icon, arg.Access))
		if err != nil {
			return mapError("CreateChatbot", err)
		}

		batch := &pgx.Batch{}
		position := 0
		for _, p := range arg.Prompts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			batch.Queue(insertSuggestedPrompt, uuid.New(), c.ID, p, position)
			position++
		}
		for _, d := range arg.Documents {
			if d.ID == uuid.Nil {
				d.ID = uuid.New()
			}
			batch.Queue(insertDocument, d.ID, c.ID, d.CreatedBy, d.Filename, d.MimeType, d.URI, d.PublicPath, d.NbPages)
		}
		batch.Queue(insertAccess, c.ID, arg.CreatorEmail, models.RoleAdmin)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return mapError("CreateChatbot", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[PostgresStore] CreateChatbot: inserted",
		zap.String("chatbot_id", created.ID.String()),
		zap.Int("prompts", len(arg.Prompts)),
		zap.Int("documents", len(arg.Documents)),
	)
	return created, nil
}

const getChatbotByID = `-- name: GetChatbotByID :one
SELECT ` + chatbotColumns + `
FROM chatbots
WHERE id = $1`

func (s *PostgresStore) GetChatbotByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	c, err := scanChatbot(s.db.QueryRow(ctx, getChatbotByID, id))
	if err != nil {
		return nil, mapError("GetChatbotByID", err)
	}
	return c, nil
}

// A public chatbot that is also shared with the user comes back once, with
// the shared role.
const listChatbotsForUser = `-- name: ListChatbotsForUser :many
SELECT c.id, c.created_by, c.title, c.description, c.icon, c.access, c.created_at, c.updated_at,
       COALESCE(a.role, 'User') AS user_role
FROM chatbots c
LEFT JOIN access a ON a.chatbot_id = c.id AND a.user_email = $1
WHERE a.user_email IS NOT NULL OR c.access = 'public'
ORDER BY c.created_at DESC`

func (s *PostgresStore) ListChatbotsForUser(ctx context.Context, email string) ([]models.UserChatbot, error) {
	rows, err := s.db.Query(ctx, listChatbotsForUser, email)
	if err != nil {
		return nil, mapError("ListChatbotsForUser", err)
	}
	defer rows.Close()

	var items []models.UserChatbot
	for rows.Next() {
		var i models.UserChatbot
		if err := rows.Scan(
			&i.ID,
			&i.CreatedBy,
			&i.Title,
			&i.Description,
			&i.Icon,
			&i.Access,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.UserRole,
		); err != nil {
			return nil, fmt.Errorf("error scanning chatbot row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chatbot rows: %w", err)
	}
	return items, nil
}

// UpdateChatbot builds the query dynamically based on which fields are provided.
func (s *PostgresStore) UpdateChatbot(ctx context.Context, arg store.UpdateChatbotParams) (*models.Chatbot, error) {
	setClauses := []string{}
	args := []any{}
	argID := 1

	if arg.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argID))
		args = append(args, *arg.Title)
		argID++
	}
	if arg.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argID))
		args = append(args, *arg.Description)
		argID++
	}
	if arg.Icon != nil {
		setClauses = append(setClauses, fmt.Sprintf("icon = $%d", argID))
		args = append(args, arg.Icon)
		argID++
	}
	if arg.Access != nil {
		setClauses = append(setClauses, fmt.Sprintf("access = $%d", argID))
		args = append(args, *arg.Access)
		argID++
	}
	if len(setClauses) == 0 {
		return s.GetChatbotByID(ctx, arg.ID)
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, arg.ID)

	query := fmt.Sprintf(`-- name: UpdateChatbot :one
UPDATE chatbots SET %s WHERE id = $%d
RETURNING %s`, strings.Join(setClauses, ", "), argID, chatbotColumns)

	c, err := scanChatbot(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError("UpdateChatbot", err)
	}
	return c, nil
}

// Dependent rows cascade, the explicit deletes keep the behaviour identical
// on databases created before the foreign keys existed.
func (s *PostgresStore) DeleteChatbot(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM access WHERE chatbot_id = $1`,
			`DELETE FROM suggested_prompts WHERE chatbot_id = $1`,
			`DELETE FROM documents WHERE chatbot_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return mapError("DeleteChatbot", err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM chatbots WHERE id = $1`, id)
		if err != nil {
			return mapError("DeleteChatbot", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// --- Suggested prompts ---

const listSuggestedPrompts = `-- name: ListSuggestedPrompts :many
SELECT id, chatbot_id, prompt, position, created_at
FROM suggested_prompts
WHERE chatbot_id = $1
ORDER BY position, created_at`

func (s *PostgresStore) ListSuggestedPrompts(ctx context.Context, chatbotID uuid.UUID) ([]models.SuggestedPrompt, error) {
	rows, err := s.db.Query(ctx, listSuggestedPrompts, chatbotID)
	if err != nil {
		return nil, mapError("ListSuggestedPrompts", err)
	}
	defer rows.Close()

	var items []models.SuggestedPrompt
	for rows.Next() {
		var p models.SuggestedPrompt
		if err := rows.Scan(&p.ID, &p.ChatbotID, &p.Prompt, &p.Position, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning suggested prompt row: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updateSuggestedPrompt = `-- name: UpdateSuggestedPrompt :one
UPDATE suggested_prompts SET prompt = $3
WHERE id = $2 AND chatbot_id = $1
RETURNING id, chatbot_id, prompt, position, created_at`

func (s *PostgresStore) UpdateSuggestedPrompt(ctx context.Context, chatbotID, promptID uuid.UUID, prompt string) (*models.SuggestedPrompt, error) {
	p := &models.SuggestedPrompt{}
	err := s.db.QueryRow(ctx, updateSuggestedPrompt, chatbotID, promptID, prompt).
		Scan(&p.ID, &p.ChatbotID, &p.Prompt, &p.Position, &p.CreatedAt)
	if err != nil {
		return nil, mapError("UpdateSuggestedPrompt", err)
	}
	return p, nil
}
