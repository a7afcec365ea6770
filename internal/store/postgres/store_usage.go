package postgres

import (
	"context"
	"fmt"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

const listServiceModels = `-- name: ListServiceModels :many
SELECT id, name, unit, price_per_unit, created_at
FROM service_models
ORDER BY name`

func (s *PostgresStore) ListServiceModels(ctx context.Context) ([]models.ServiceModel, error) {
	rows, err := s.db.Query(ctx, listServiceModels)
	if err != nil {
		return nil, mapError("ListServiceModels", err)
	}
	defer rows.Close()

	var items []models.ServiceModel
	for rows.Next() {
		var m models.ServiceModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &m.PricePerUnit, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning service model row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const upsertServiceModel = `-- name: UpsertServiceModel :exec
INSERT INTO service_models (id, name, unit, price_per_unit)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE SET unit = EXCLUDED.unit, price_per_unit = EXCLUDED.price_per_unit`

func (s *PostgresStore) UpsertServiceModel(ctx context.Context, m models.ServiceModel) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, err := s.db.Exec(ctx, upsertServiceModel, m.ID, m.Name, m.Unit, m.PricePerUnit); err != nil {
		return mapError("UpsertServiceModel", err)
	}
	return nil
}

const createUsage = `-- name: CreateUsage :one
INSERT INTO usages (id, user_id, model, unit, qty, price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, model, unit, qty, price, created_at`

func (s *PostgresStore) CreateUsage(ctx context.Context, arg store.CreateUsageParams) (*models.Usage, error) {
	u := &models.Usage{}
	err := s.db.QueryRow(ctx, createUsage, uuid.New(), arg.UserID, arg.Model, arg.Unit, arg.Qty, arg.Price).
		Scan(&u.ID, &u.UserID, &u.Model, &u.Unit, &u.Qty, &u.Price, &u.CreatedAt)
	if err != nil {
		return nil, mapError("CreateUsage", err)
	}
	return u, nil
}

const sumUsagePrice = `-- name: SumUsagePrice :one
SELECT COALESCE(SUM(price), 0)
FROM usages
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`

func (s *PostgresStore) SumUsagePrice(ctx context.Context, userID uuid.UUID, from, to time.Time) (float64, error) {
	var total float64
	if err := s.db.QueryRow(ctx, sumUsagePrice, userID, from, to).Scan(&total); err != nil {
		return 0, mapError("SumUsagePrice", err)
	}
	return total, nil
}

const createMetric = `-- name: CreateMetric :exec
INSERT INTO chatbot_metrics (id, kind, value, nb_documents, total_pages, model, chatbot_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *PostgresStore) CreateMetric(ctx context.Context, arg store.CreateMetricParams) error {
	_, err := s.db.Exec(ctx, createMetric,
		uuid.New(), arg.Kind, arg.Value, arg.NbDocuments, arg.TotalPages, arg.Model, arg.ChatbotID)
	if err != nil {
		return mapError("CreateMetric", err)
	}
	return nil
}

const listMetrics = `-- name: ListMetrics :many
SELECT id, kind, value, nb_documents, total_pages, model, chatbot_id, created_at
FROM chatbot_metrics
WHERE kind = $1 AND model = $2
ORDER BY created_at DESC
LIMIT $3`

func (s *PostgresStore) ListMetrics(ctx context.Context, kind models.MetricKind, model string, limit int) ([]models.MetricRecord, error) {
	rows, err := s.db.Query(ctx, listMetrics, kind, model, limit)
	if err != nil {
		return nil, mapError("ListMetrics", err)
	}
	defer rows.Close()

	var items []models.MetricRecord
	for rows.Next() {
		var m models.MetricRecord
		if err := rows.Scan(&m.ID, &m.Kind, &m.Value, &m.NbDocuments, &m.TotalPages, &m.Model, &m.ChatbotID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning metric row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
