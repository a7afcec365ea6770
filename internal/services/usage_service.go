package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/metrics"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoCredits           = errors.New("no credits left for this week")
	ErrUnknownServiceModel = errors.New("no price for model")
)

// Usage is metered in characters.
const (
	usageUnit     = "characters"
	charsPerToken = 4
)

// Metered operations, also used as metric labels.
const (
	OperationTitleDescription = "title_description"
	OperationIcon             = "icon"
	OperationSuggestedPrompts = "suggested_prompts"
	OperationAsk              = "ask"
	OperationSources          = "sources"
)

// UsageService prices model calls and keeps the weekly credit ledger.
type UsageService struct {
	store   store.Store
	credits config.CreditsConfig
	now     func() time.Time

	mu     sync.RWMutex
	prices map[string]models.ServiceModel
}

func NewUsageService(s store.Store, credits config.CreditsConfig) *UsageService {
	return &UsageService{
		store:   s,
		credits: credits,
		now:     time.Now,
	}
}

// WeekBounds returns [Monday 00:00, next Monday 00:00) around t, in t's location.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-daysSinceMonday, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 7)
}

// ToCredits converts a dollar amount to credits.
func (s *UsageService) ToCredits(dollars float64) float64 {
	return dollars * s.credits.ExchangeRate
}

// WeeklyAmount is the dollar allotment given to new accounts.
func (s *UsageService) WeeklyAmount(isGuest bool) float64 {
	if isGuest {
		return s.credits.GuestWeeklyAmount
	}
	return s.credits.UserWeeklyAmount
}

func (s *UsageService) reloadPrices(ctx context.Context) error {
	items, err := s.store.ListServiceModels(ctx)
	if err != nil {
		return fmt.Errorf("loading service models: %w", err)
	}
	prices := make(map[string]models.ServiceModel, len(items))
	for _, m := range items {
		prices[m.Name] = m
	}
	s.mu.Lock()
	s.prices = prices
	s.mu.Unlock()
	return nil
}

// match finds the row named model, or else the longest row name that
// prefixes it ("gemini-1.5-flash" for "gemini-1.5-flash-002").
func (s *UsageService) match(model string) (models.ServiceModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.prices[model]; ok {
		return m, true
	}
	var best models.ServiceModel
	found := false
	for name, m := range s.prices {
		if strings.HasPrefix(model, name) && len(name) > len(best.Name) {
			best, found = m, true
		}
	}
	return best, found
}

// PriceFor returns the service model pricing model, reloading the table
// once on a miss.
func (s *UsageService) PriceFor(ctx context.Context, model string) (models.ServiceModel, error) {
	if m, ok := s.match(model); ok {
		return m, nil
	}
	if err := s.reloadPrices(ctx); err != nil {
		return models.ServiceModel{}, err
	}
	if m, ok := s.match(model); ok {
		return m, nil
	}
	return models.ServiceModel{}, fmt.Errorf("%w: %s", ErrUnknownServiceModel, model)
}

// Record stores a usage row of qty characters for model and returns its
// price in dollars.
func (s *UsageService) Record(ctx context.Context, userID uuid.UUID, model string, qty float64) (float64, error) {
	m, err := s.PriceFor(ctx, model)
	if err != nil {
		return 0, err
	}
	price := qty * m.PricePerUnit
	if _, err := s.store.CreateUsage(ctx, store.CreateUsageParams{
		UserID: userID,
		Model:  model,
		Unit:   usageUnit,
		Qty:    qty,
		Price:  price,
	}); err != nil {
		return 0, fmt.Errorf("recording usage: %w", err)
	}
	metrics.UsageCost.WithLabelValues(model).Add(price)
	logger.Debug("[UsageService] usage recorded",
		zap.String("user_id", userID.String()),
		zap.String("model", model),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
	)
	return price, nil
}

// RecordTokens meters a model call. Chat operations count four characters
// per token; creation steps count tokens as is.
func (s *UsageService) RecordTokens(ctx context.Context, userID uuid.UUID, model, operation string, tokens int) float64 {
	metrics.LLMTokens.WithLabelValues(model, operation).Add(float64(tokens))
	qty := float64(tokens)
	if operation == OperationAsk || operation == OperationSources {
		qty *= charsPerToken
	}
	price, err := s.Record(ctx, userID, model, qty)
	if err != nil {
		logger.Error("[UsageService] failed to record usage",
			zap.String("user_id", userID.String()),
			zap.String("model", model),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return 0
	}
	return s.ToCredits(price)
}

// Ledger returns the user's credits for the current week.
func (s *UsageService) Ledger(ctx context.Context, user *models.User) (*models.CreditsResponse, error) {
	start, end := WeekBounds(s.now())
	consumed, err := s.store.SumUsagePrice(ctx, user.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("summing usage: %w", err)
	}
	available := s.ToCredits(user.PeriodDollarAmount)
	left := available - s.ToCredits(consumed)
	return &models.CreditsResponse{
		Available:    available,
		Consumed:     s.ToCredits(consumed),
		Remaining:    math.Max(0, left),
		Exhausted:    left <= 0,
		ExchangeRate: s.credits.ExchangeRate,
		PeriodStart:  start,
		PeriodEnd:    end,
	}, nil
}

// EnsureCredits returns ErrNoCredits once the week's credits are used up.
func (s *UsageService) EnsureCredits(ctx context.Context, user *models.User) error {
	ledger, err := s.Ledger(ctx, user)
	if err != nil {
		return err
	}
	if ledger.Exhausted {
		return ErrNoCredits
	}
	return nil
}
