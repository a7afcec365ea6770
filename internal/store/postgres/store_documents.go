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

const documentColumns = `id, chatbot_id, created_by, filename, mime_type, uri, public_path, nb_pages, created_at`

func scanDocument(row rowScanner) (*models.Document, error) {
	d := &models.Document{}
	err := row.Scan(
		&d.ID,
		&d.ChatbotID,
		&d.CreatedBy,
		&d.Filename,
		&d.MimeType,
		&d.URI,
		&d.PublicPath,
		&d.NbPages,
		&d.CreatedAt,
	)
	return d, err
}

const insertDocument = `-- name: CreateDocument :one
INSERT INTO documents (id, chatbot_id, created_by, filename, mime_type, uri, public_path, nb_pages)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + documentColumns

func (s *PostgresStore) CreateDocument(ctx context.Context, arg store.CreateDocumentParams) (*models.Document, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	d, err := scanDocument(s.db.QueryRow(ctx, insertDocument,
		arg.ID,
		arg.ChatbotID,
		arg.CreatedBy,
		arg.Filename,
		arg.MimeType,
		arg.URI,
		arg.PublicPath,
		arg.NbPages,
	))
	if err != nil {
		return nil, mapError("CreateDocument", err)
	}
	logger.Debug("[PostgresStore] CreateDocument: inserted",
		zap.String("document_id", d.ID.String()),
		zap.String("chatbot_id", d.ChatbotID.String()),
	)
	return d, nil
}

const listDocuments = `-- name: ListDocuments :many
SELECT ` + documentColumns + `
FROM documents
WHERE chatbot_id = $1
ORDER BY created_at, filename`

func (s *PostgresStore) ListDocuments(ctx context.Context, chatbotID uuid.UUID) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, listDocuments, chatbotID)
	if err != nil {
		return nil, mapError("ListDocuments", err)
	}
	defer rows.Close()

	var items []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning document row: %w", err)
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

const getDocumentByFilename = `-- name: GetDocumentByFilename :one
SELECT ` + documentColumns + `
FROM documents
WHERE chatbot_id = $1 AND filename = $2`

func (s *PostgresStore) GetDocumentByFilename(ctx context.Context, chatbotID uuid.UUID, filename string) (*models.Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx, getDocumentByFilename, chatbotID, filename))
	if err != nil {
		return nil, mapError("GetDocumentByFilename", err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return mapError("DeleteDocument", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
