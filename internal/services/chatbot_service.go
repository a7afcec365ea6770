package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"
	"unicode/utf8"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/notify"
	"docutalk-backend/internal/storage"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPromptNotFound = errors.New("suggested prompt not found")
	ErrInvalidIcon    = errors.New("icon must be a PNG image")
)

const (
	fallbackTitle       = "<TITLE>"
	fallbackDescription = "<DESCRIPTION>"
	maxTitleLength      = 100
	maxDescLength       = 100
)

type ChatbotService struct {
	store     store.Store
	objects   storage.ObjectStore
	gen       llm.Generator
	usage     *UsageService
	estimator *Estimator
	notifier  notify.Notifier
	cfg       *config.Config
}

func NewChatbotService(s store.Store, objects storage.ObjectStore, gen llm.Generator, usage *UsageService, estimator *Estimator, notifier notify.Notifier, cfg *config.Config) *ChatbotService {
	return &ChatbotService{
		store:     s,
		objects:   objects,
		gen:       gen,
		usage:     usage,
		estimator: estimator,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Create uploads the documents, lets the model name the chatbot, draw its
// icon and suggest prompts, then stores everything with the caller as Admin.
func (s *ChatbotService) Create(ctx context.Context, caller Caller, files []UploadedFile) (*models.CreateChatbotResponse, error) {
	started := time.Now()
	user, err := s.store.GetUserByID(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.usage.EnsureCredits(ctx, user); err != nil {
		return nil, err
	}

	checked, err := checkPDFs(files)
	if err != nil {
		return nil, err
	}
	if err := checkLimits(s.cfg.Limits, nil, checked); err != nil {
		return nil, err
	}

	chatbotID := uuid.New()
	persisted := false
	defer func() {
		if persisted {
			return
		}
		if err := s.objects.DeletePrefix(context.WithoutCancel(ctx), storage.ChatbotDir(chatbotID.String())); err != nil {
			logger.Warn("[ChatbotService] cleanup of uploaded documents failed",
				zap.String("chatbot_id", chatbotID.String()),
				zap.Error(err),
			)
		}
	}()

	docParams, err := saveFiles(ctx, s.objects, chatbotID, user.ID, checked)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, len(docParams))
	totalPages := 0
	for i, p := range docParams {
		docs[i] = models.Document{ID: p.ID, ChatbotID: chatbotID, Filename: p.Filename, MimeType: p.MimeType, URI: p.URI, NbPages: p.NbPages}
		totalPages += p.NbPages
	}

	model := s.cfg.Models.Premium
	agent := NewChatbotAgent(s.gen, s.objects, s.cfg.GCS.SignedURLTTL, docs)
	fallbacks := []string{}
	var credits float64

	title, description, usage, err := agent.GenerateTitleDescription(ctx, model)
	credits += s.usage.RecordTokens(ctx, user.ID, model, OperationTitleDescription, usage.TotalTokens)
	switch {
	case errors.Is(err, ErrBadOutputFormat):
		title, description = fallbackTitle, fallbackDescription
		fallbacks = append(fallbacks, OperationTitleDescription)
	case err != nil:
		return nil, fmt.Errorf("%w: generating title: %v", ErrUpstream, err)
	}

	icon, usage, iconFallback, err := agent.GenerateIcon(ctx, description, model)
	credits += s.usage.RecordTokens(ctx, user.ID, model, OperationIcon, usage.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: generating icon: %v", ErrUpstream, err)
	}
	if iconFallback {
		fallbacks = append(fallbacks, OperationIcon)
	}

	prompts, usage, err := agent.SuggestedPrompts(ctx, model)
	credits += s.usage.RecordTokens(ctx, user.ID, model, OperationSuggestedPrompts, usage.TotalTokens)
	switch {
	case errors.Is(err, ErrBadOutputFormat):
		prompts = nil
		fallbacks = append(fallbacks, OperationSuggestedPrompts)
	case err != nil:
		return nil, fmt.Errorf("%w: generating suggested prompts: %v", ErrUpstream, err)
	}

	chatbot, err := s.store.CreateChatbot(ctx, store.CreateChatbotParams{
		ID:           chatbotID,
		CreatedBy:    user.ID,
		CreatorEmail: user.Email,
		Title:        title,
		Description:  description,
		Icon:         icon,
		Access:       models.AccessPrivate,
		Prompts:      prompts,
		Documents:    docParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save chatbot: %w", err)
	}
	persisted = true

	s.estimator.LogCreateChatbot(ctx, chatbot.ID, model, len(docs), totalPages, time.Since(started))
	logger.Info("[ChatbotService] chatbot created",
		zap.String("chatbot_id", chatbot.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.Int("documents", len(docs)),
		zap.Int("pages", totalPages),
		zap.Strings("fallbacks", fallbacks),
	)

	resp := models.NewChatbotResponse(chatbot, models.RoleAdmin)
	for _, d := range docs {
		resp.Documents = append(resp.Documents, newDocumentResponse(d))
	}
	if resp.SuggestedPrompts, err = s.prompts(ctx, chatbot.ID); err != nil {
		return nil, err
	}
	return &models.CreateChatbotResponse{
		Chatbot:     resp,
		Fallbacks:   fallbacks,
		CreditsUsed: credits,
	}, nil
}

func (s *ChatbotService) prompts(ctx context.Context, chatbotID uuid.UUID) ([]models.SuggestedPromptResponse, error) {
	items, err := s.store.ListSuggestedPrompts(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggested prompts: %w", err)
	}
	out := make([]models.SuggestedPromptResponse, 0, len(items))
	for _, p := range items {
		out = append(out, models.SuggestedPromptResponse{ID: p.ID, Prompt: p.Prompt})
	}
	return out, nil
}

// List returns the chatbots shared with the caller and the public ones.
func (s *ChatbotService) List(ctx context.Context, caller Caller) ([]models.ChatbotResponse, error) {
	items, err := s.store.ListChatbotsForUser(ctx, caller.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to list chatbots: %w", err)
	}
	resp := make([]models.ChatbotResponse, 0, len(items))
	for i := range items {
		resp = append(resp, models.NewChatbotResponse(&items[i].Chatbot, items[i].UserRole))
	}
	return resp, nil
}

// Get returns the chatbot with its documents, signed for download, and
// its suggested prompts.
func (s *ChatbotService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*models.ChatbotResponse, error) {
	chatbot, role, err := resolveRole(ctx, s.store, id, caller.Email)
	if err != nil {
		return nil, err
	}
	resp := models.NewChatbotResponse(chatbot, role)

	docs, err := s.store.ListDocuments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	resp.Documents = make([]models.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		dr := newDocumentResponse(d)
		if dr.URL, err = s.objects.SignedURL(ctx, d.URI, s.cfg.GCS.SignedURLTTL); err != nil {
			logger.Warn("[ChatbotService] signing document URL failed", zap.String("document_id", d.ID.String()), zap.Error(err))
		}
		resp.Documents = append(resp.Documents, dr)
	}
	if resp.SuggestedPrompts, err = s.prompts(ctx, id); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ChatbotService) Icon(ctx context.Context, caller Caller, id uuid.UUID) ([]byte, error) {
	chatbot, _, err := resolveRole(ctx, s.store, id, caller.Email)
	if err != nil {
		return nil, err
	}
	return chatbot.Icon, nil
}

func (s *ChatbotService) Update(ctx context.Context, caller Caller, id uuid.UUID, req models.UpdateChatbotRequest) (*models.ChatbotResponse, error) {
	if _, err := requireAdmin(ctx, s.store, id, caller.Email); err != nil {
		return nil, err
	}
	params := store.UpdateChatbotParams{ID: id}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
			return nil, fmt.Errorf("%w: title must be 1 to %d characters", ErrValidation, maxTitleLength)
		}
		params.Title = &title
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if desc == "" || utf8.RuneCountInString(desc) > maxDescLength {
			return nil, fmt.Errorf("%w: description must be 1 to %d characters", ErrValidation, maxDescLength)
		}
		params.Description = &desc
	}
	chatbot, err := s.store.UpdateChatbot(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update chatbot: %w", err)
	}
	resp := models.NewChatbotResponse(chatbot, models.RoleAdmin)
	return &resp, nil
}

// SetIcon replaces the icon with a user supplied PNG.
func (s *ChatbotService) SetIcon(ctx context.Context, caller Caller, id uuid.UUID, data []byte) error {
	if _, err := requireAdmin(ctx, s.store, id, caller.Email); err != nil {
		return err
	}
	if limit := s.cfg.Limits.MaxIconFileSizeKB * 1024; len(data) > limit {
		return fmt.Errorf("%w: icon is larger than %d KB", ErrValidation, s.cfg.Limits.MaxIconFileSizeKB)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return ErrInvalidIcon
	}
	if _, err := s.store.UpdateChatbot(ctx, store.UpdateChatbotParams{ID: id, Icon: data}); err != nil {
		return fmt.Errorf("failed to update icon: %w", err)
	}
	return nil
}

// Delete removes the stored documents first so a failure leaves the
// chatbot in place for a retry.
func (s *ChatbotService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	if _, err := requireAdmin(ctx, s.store, id, caller.Email); err != nil {
		return err
	}
	if err := s.objects.DeletePrefix(ctx, storage.ChatbotDir(id.String())); err != nil {
		return fmt.Errorf("failed to delete stored documents: %w", err)
	}
	if err := s.store.DeleteChatbot(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chatbot: %w", err)
	}
	logger.Info("[ChatbotService] chatbot deleted",
		zap.String("chatbot_id", id.String()),
		zap.String("user_id", caller.UserID.String()),
	)
	return nil
}

func (s *ChatbotService) UpdatePrompt(ctx context.Context, caller Caller, id, promptID uuid.UUID, prompt string) (*models.SuggestedPromptResponse, error) {
	if _, err := requireAdmin(ctx, s.store, id, caller.Email); err != nil {
		return nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrValidation)
	}
	p, err := s.store.UpdateSuggestedPrompt(ctx, id, promptID, prompt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to update suggested prompt: %w", err)
	}
	return &models.SuggestedPromptResponse{ID: p.ID, Prompt: p.Prompt}, nil
}

// RequestPublic marks the chatbot as waiting for an operator to make it
// public and tells the operators.
func (s *ChatbotService) RequestPublic(ctx context.Context, caller Caller, id uuid.UUID) (*models.ChatbotResponse, error) {
	if caller.IsGuest {
		return nil, ErrGuestForbidden
	}
	chatbot, err := requireAdmin(ctx, s.store, id, caller.Email)
	if err != nil {
		return nil, err
	}
	if chatbot.Access != models.AccessPublic {
		pending := models.AccessPendingPublicRequest
		if chatbot, err = s.store.UpdateChatbot(ctx, store.UpdateChatbotParams{ID: id, Access: &pending}); err != nil {
			return nil, fmt.Errorf("failed to update access: %w", err)
		}
		user, err := s.store.GetUserByID(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		s.notifier.PublicSharingRequested(ctx, chatbot, user)
	}
	resp := models.NewChatbotResponse(chatbot, models.RoleAdmin)
	return &resp, nil
}
