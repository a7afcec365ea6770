package services

import (
	"context"
	"math"
	"sort"
	"time"

	"docutalk-backend/internal/metrics"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	estimatorHistory   = 200
	estimatorNeighbors = 5
)

var defaultEstimates = map[models.MetricKind]float64{
	models.MetricCreateChatbotDuration: 45,
	models.MetricAskChatbotDuration:    8,
	models.MetricAskChatbotTokenCount:  0,
}

// Estimator predicts durations from past metric records with a nearest
// neighbour average over (nb_documents, total_pages).
type Estimator struct {
	store store.Store
}

func NewEstimator(s store.Store) *Estimator {
	return &Estimator{store: s}
}

func (e *Estimator) Estimate(ctx context.Context, kind models.MetricKind, model string, nbDocuments, totalPages int) float64 {
	records, err := e.store.ListMetrics(ctx, kind, model, estimatorHistory)
	if err != nil {
		logger.Warn("[Estimator] loading metrics failed, using default",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return defaultEstimates[kind]
	}
	if len(records) == 0 {
		return defaultEstimates[kind]
	}
	return nearestMean(records, nbDocuments, totalPages, estimatorNeighbors)
}

// nearestMean averages the values of the k records closest to the query.
// Both features are scaled by their largest observed value.
func nearestMean(records []models.MetricRecord, nbDocuments, totalPages, k int) float64 {
	maxDocs, maxPages := float64(nbDocuments), float64(totalPages)
	for _, r := range records {
		maxDocs = math.Max(maxDocs, float64(r.NbDocuments))
		maxPages = math.Max(maxPages, float64(r.TotalPages))
	}
	scale := func(v, max float64) float64 {
		if max == 0 {
			return 0
		}
		return v / max
	}

	type neighbour struct {
		dist  float64
		value float64
	}
	qd, qp := scale(float64(nbDocuments), maxDocs), scale(float64(totalPages), maxPages)
	ns := make([]neighbour, len(records))
	for i, r := range records {
		dd := scale(float64(r.NbDocuments), maxDocs) - qd
		dp := scale(float64(r.TotalPages), maxPages) - qp
		ns[i] = neighbour{dist: math.Hypot(dd, dp), value: r.Value}
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].dist < ns[j].dist })

	if k > len(ns) {
		k = len(ns)
	}
	var sum float64
	for _, n := range ns[:k] {
		sum += n.value
	}
	return sum / float64(k)
}

// LogCreateChatbot writes the create_chatbot_duration record.
func (e *Estimator) LogCreateChatbot(ctx context.Context, chatbotID uuid.UUID, model string, nbDocuments, totalPages int, took time.Duration) {
	metrics.CreateChatbotDuration.WithLabelValues(model).Observe(took.Seconds())
	e.write(ctx, store.CreateMetricParams{
		Kind:        models.MetricCreateChatbotDuration,
		Value:       took.Seconds(),
		NbDocuments: nbDocuments,
		TotalPages:  totalPages,
		Model:       model,
		ChatbotID:   chatbotID,
	})
}

// LogAsk writes the ask_chatbot_duration and ask_chatbot_token_count records.
func (e *Estimator) LogAsk(ctx context.Context, chatbotID uuid.UUID, model string, nbDocuments, totalPages int, took time.Duration, tokens int) {
	metrics.AskDuration.WithLabelValues(model).Observe(took.Seconds())
	base := store.CreateMetricParams{
		NbDocuments: nbDocuments,
		TotalPages:  totalPages,
		Model:       model,
		ChatbotID:   chatbotID,
	}
	duration, count := base, base
	duration.Kind, duration.Value = models.MetricAskChatbotDuration, took.Seconds()
	count.Kind, count.Value = models.MetricAskChatbotTokenCount, float64(tokens)
	e.write(ctx, duration)
	e.write(ctx, count)
}

// Metrics are best effort.
func (e *Estimator) write(ctx context.Context, arg store.CreateMetricParams) {
	if err := e.store.CreateMetric(ctx, arg); err != nil {
		logger.Warn("[Estimator] writing metric failed",
			zap.String("kind", string(arg.Kind)),
			zap.String("chatbot_id", arg.ChatbotID.String()),
			zap.Error(err),
		)
	}
}
