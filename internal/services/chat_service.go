package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/conversation"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/storage"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoExchange           = errors.New("ask a question before asking for sources")
	// ErrUpstream wraps failures of the model or another remote service.
	ErrUpstream = errors.New("upstream service failed")
)

const (
	EstimateCreateChatbot = "create_chatbot"
	EstimateAsk           = "ask"
)

// AskResult is sent as the final event of an answer stream.
type AskResult struct {
	Answer      string    `json:"answer"`
	CreditsUsed float64   `json:"credits_used"`
	Usage       llm.Usage `json:"usage"`
}

type ChatService struct {
	store         store.Store
	conversations conversation.Store
	objects       storage.ObjectStore
	gen           llm.Generator
	usage         *UsageService
	estimator     *Estimator
	cfg           *config.Config
}

func NewChatService(s store.Store, conversations conversation.Store, objects storage.ObjectStore, gen llm.Generator, usage *UsageService, estimator *Estimator, cfg *config.Config) *ChatService {
	return &ChatService{
		store:         s,
		conversations: conversations,
		objects:       objects,
		gen:           gen,
		usage:         usage,
		estimator:     estimator,
		cfg:           cfg,
	}
}

func (s *ChatService) model(premium bool) string {
	if premium {
		return s.cfg.Models.Premium
	}
	return s.cfg.Models.Basic
}

func newConversationResponse(c *models.Conversation) *models.ConversationResponse {
	msgs := c.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &models.ConversationResponse{ID: c.ID, ChatbotID: c.ChatbotID, Messages: msgs, CreatedAt: c.CreatedAt}
}

// StartConversation opens a conversation on a chatbot visible to the caller.
func (s *ChatService) StartConversation(ctx context.Context, caller Caller, chatbotID uuid.UUID) (*models.ConversationResponse, error) {
	if _, _, err := resolveRole(ctx, s.store, chatbotID, caller.Email); err != nil {
		return nil, err
	}
	c, err := s.conversations.Create(ctx, caller.UserID, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return newConversationResponse(c), nil
}

// load returns the caller's conversation. Conversations of other users are
// reported as not found.
func (s *ChatService) load(ctx context.Context, caller Caller, id string) (*models.Conversation, error) {
	c, err := s.conversations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if c.UserID != caller.UserID {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

func (s *ChatService) GetConversation(ctx context.Context, caller Caller, id string) (*models.ConversationResponse, error) {
	c, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return newConversationResponse(c), nil
}

func (s *ChatService) ResetConversation(ctx context.Context, caller Caller, id string) error {
	c, err := s.load(ctx, caller, id)
	if err != nil {
		return err
	}
	c.Messages = nil
	if err := s.conversations.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (s *ChatService) drop(ctx context.Context, id string) {
	if err := s.conversations.Delete(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, conversation.ErrNotFound) {
		logger.Warn("[ChatService] failed to delete stale conversation", zap.String("conversation_id", id), zap.Error(err))
		return
	}
	logger.Info("[ChatService] stale conversation deleted", zap.String("conversation_id", id))
}

// session is what Ask and Sources need before calling the model.
type session struct {
	conv  *models.Conversation
	user  *models.User
	agent *ChatbotAgent
	docs  []models.Document
}

func (s *ChatService) open(ctx context.Context, caller Caller, id string) (*session, error) {
	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	// Access may have been revoked, or the chatbot deleted, since the
	// conversation started. Such a conversation can never be used again.
	if _, _, err := resolveRole(ctx, s.store, conv.ChatbotID, caller.Email); err != nil {
		if errors.Is(err, ErrChatbotNotFound) {
			s.drop(ctx, conv.ID)
		}
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.usage.EnsureCredits(ctx, user); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, conv.ChatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return &session{
		conv:  conv,
		user:  user,
		agent: NewChatbotAgent(s.gen, s.objects, s.cfg.GCS.SignedURLTTL, docs),
		docs:  docs,
	}, nil
}

// selectedSize counts the documents and pages an ask sends to the model.
func selectedSize(docs []models.Document, ids []uuid.UUID) (int, int) {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	n, pages := 0, 0
	for _, d := range docs {
		if ids == nil || set[d.ID] {
			n++
			pages += d.NbPages
		}
	}
	return n, pages
}

// Ask streams the answer to req.Message through onChunk. The question and
// the answer are added to the conversation only when the stream completes.
func (s *ChatService) Ask(ctx context.Context, caller Caller, id string, req models.AskRequest, onChunk func(string) error) (*AskResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	sess, err := s.open(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	model := s.model(req.Premium)
	started := time.Now()
	resp, err := sess.agent.Ask(ctx, sess.conv.Messages, message, model, req.DocumentIDs, onChunk)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	took := time.Since(started)

	now := time.Now().UTC()
	sess.conv.Messages = append(sess.conv.Messages,
		models.Message{Role: models.MessageRoleUser, Content: message, Timestamp: now},
		models.Message{Role: models.MessageRoleAssistant, Content: resp.Text, Timestamp: now},
	)
	if err := s.conversations.Save(ctx, sess.conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	credits := s.usage.RecordTokens(ctx, sess.user.ID, model, OperationAsk, resp.Usage.TotalTokens)
	nbDocs, pages := selectedSize(sess.docs, req.DocumentIDs)
	s.estimator.LogAsk(ctx, sess.conv.ChatbotID, model, nbDocs, pages, took, resp.Usage.TotalTokens)

	logger.Info("[ChatService] answer streamed",
		zap.String("conversation_id", sess.conv.ID),
		zap.String("model", model),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("took", took),
	)
	return &AskResult{Answer: resp.Text, CreditsUsed: credits, Usage: resp.Usage}, nil
}

// Sources returns the passages supporting the last answer. Usage is
// recorded even when the model output cannot be parsed.
func (s *ChatService) Sources(ctx context.Context, caller Caller, id string, req models.SourcesRequest) (*models.SourcesResponse, error) {
	sess, err := s.open(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if len(sess.conv.Messages) < 2 {
		return nil, ErrNoExchange
	}

	model := s.model(req.Premium)
	sources, usage, err := sess.agent.Sources(ctx, sess.conv.Messages, model, req.DocumentIDs)
	credits := s.usage.RecordTokens(ctx, sess.user.ID, model, OperationSources, usage.TotalTokens)
	if err != nil {
		if errors.Is(err, ErrBadOutputFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &models.SourcesResponse{Sources: sources, CreditsUsed: credits}, nil
}

// Estimate predicts the duration in seconds of an operation.
func (s *ChatService) Estimate(ctx context.Context, req models.EstimateRequest) (float64, error) {
	if req.NbDocuments < 0 || req.TotalPages < 0 {
		return 0, fmt.Errorf("%w: counts cannot be negative", ErrValidation)
	}
	switch req.Operation {
	case EstimateCreateChatbot:
		return s.estimator.Estimate(ctx, models.MetricCreateChatbotDuration, s.cfg.Models.Premium, req.NbDocuments, req.TotalPages), nil
	case EstimateAsk:
		return s.estimator.Estimate(ctx, models.MetricAskChatbotDuration, s.model(req.Premium), req.NbDocuments, req.TotalPages), nil
	}
	return 0, fmt.Errorf("%w: operation must be %s or %s", ErrValidation, EstimateCreateChatbot, EstimateAsk)
}
