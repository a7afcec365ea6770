package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docutalk-backend/internal/icons"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/storage"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBadOutputFormat is returned when the model output cannot be parsed
// into the expected shape.
var ErrBadOutputFormat = errors.New("bad model output format")

// ChatbotAgent runs the model operations of one chatbot over its documents.
type ChatbotAgent struct {
	gen          llm.Generator
	objects      storage.ObjectStore
	signedURLTTL time.Duration
	documents    []models.Document
}

func NewChatbotAgent(gen llm.Generator, objects storage.ObjectStore, signedURLTTL time.Duration, documents []models.Document) *ChatbotAgent {
	return &ChatbotAgent{
		gen:          gen,
		objects:      objects,
		signedURLTTL: signedURLTTL,
		documents:    documents,
	}
}

// documentParts lists "{filename}: " then the file, for each selected
// document. A nil ids selects all documents; unknown ids are ignored.
func (a *ChatbotAgent) documentParts(ids []uuid.UUID) []llm.Part {
	selected := func(id uuid.UUID) bool { return true }
	if ids != nil {
		set := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		selected = func(id uuid.UUID) bool { return set[id] }
	}

	var parts []llm.Part
	for _, d := range a.documents {
		if !selected(d.ID) {
			continue
		}
		parts = append(parts, llm.Text(d.Filename+": "), llm.File(d.URI, d.MimeType))
	}
	return parts
}

// buildTurns builds the model turns. Consecutive turns of the same role
// are merged, the API expects them to alternate.
func buildTurns(docParts []llm.Part, history []models.Message, tail ...string) []llm.Message {
	var out []llm.Message
	add := func(role llm.Role, parts ...llm.Part) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, llm.Message{Role: role, Parts: parts})
	}

	if len(docParts) > 0 {
		add(llm.RoleUser, docParts...)
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == models.MessageRoleAssistant {
			role = llm.RoleModel
		}
		add(role, llm.Text(m.Content))
	}
	for _, t := range tail {
		add(llm.RoleUser, llm.Text(t))
	}
	return out
}

func (a *ChatbotAgent) generate(ctx context.Context, model string, messages []llm.Message) (*llm.Response, error) {
	return a.gen.Generate(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		Temperature: llm.Temperature(0),
	})
}

// GenerateTitleDescription names the chatbot from all its documents. The
// usage is returned even when the output is unusable.
func (a *ChatbotAgent) GenerateTitleDescription(ctx context.Context, model string) (string, string, llm.Usage, error) {
	resp, err := a.generate(ctx, model, buildTurns(a.documentParts(nil), nil, llm.Prompt(llm.PromptTitleDescription)))
	if err != nil {
		return "", "", llm.Usage{}, err
	}
	dict, err := llm.ExtractDict(resp.Text)
	if err != nil {
		return "", "", resp.Usage, fmt.Errorf("%w: %v", ErrBadOutputFormat, err)
	}
	title, okTitle := llm.StringField(dict, "title")
	description, okDesc := llm.StringField(dict, "description")
	if !okTitle || !okDesc {
		return "", "", resp.Usage, fmt.Errorf("%w: title or description missing", ErrBadOutputFormat)
	}
	return strings.TrimSpace(title), strings.TrimSpace(description), resp.Usage, nil
}

// GenerateIcon picks an icon and a color for description and renders it.
// Unusable output falls back to the default icon.
func (a *ChatbotAgent) GenerateIcon(ctx context.Context, description, model string) ([]byte, llm.Usage, bool, error) {
	resp, err := a.generate(ctx, model, buildTurns(nil, nil, llm.IconPrompt(icons.Names(), description)))
	if err != nil {
		return nil, llm.Usage{}, false, err
	}

	name, color, fallback := icons.DefaultName, icons.DefaultColor, false
	if dict, err := llm.ExtractDict(resp.Text); err != nil {
		fallback = true
	} else {
		if n, ok := llm.StringField(dict, "name"); ok && icons.Known(n) {
			name = n
		} else {
			fallback = true
		}
		if c, ok := llm.StringField(dict, "color"); ok {
			if _, valid := icons.ParseColor(c); valid {
				color = c
			}
		}
	}

	png, err := icons.Render(name, color, icons.DefaultSize)
	if err != nil {
		return nil, resp.Usage, fallback, fmt.Errorf("rendering icon: %w", err)
	}
	return png, resp.Usage, fallback, nil
}

// SuggestedPrompts returns trimmed non-empty questions about the documents.
func (a *ChatbotAgent) SuggestedPrompts(ctx context.Context, model string) ([]string, llm.Usage, error) {
	resp, err := a.generate(ctx, model, buildTurns(a.documentParts(nil), nil, llm.Prompt(llm.PromptSuggestedPrompts)))
	if err != nil {
		return nil, llm.Usage{}, err
	}
	var prompts []string
	for _, item := range llm.ExtractList(resp.Text) {
		s, ok := item.(string)
		if !ok {
			return nil, resp.Usage, fmt.Errorf("%w: suggested prompt is %T", ErrBadOutputFormat, item)
		}
		if s = strings.TrimSpace(s); s != "" {
			prompts = append(prompts, s)
		}
	}
	return prompts, resp.Usage, nil
}

// Ask streams the answer to message given the previous turns.
func (a *ChatbotAgent) Ask(ctx context.Context, history []models.Message, message, model string, documentIDs []uuid.UUID, onChunk func(string) error) (*llm.Response, error) {
	return a.gen.Stream(ctx, llm.Request{
		Model:    model,
		System:   llm.Prompt(llm.PromptContextAsk),
		Messages: buildTurns(a.documentParts(documentIDs), history, message),
	}, onChunk)
}

// Sources asks the model which passages support the last answer. Entries
// that are malformed or name an unknown file are skipped.
func (a *ChatbotAgent) Sources(ctx context.Context, history []models.Message, model string, documentIDs []uuid.UUID) ([]models.Source, llm.Usage, error) {
	resp, err := a.generate(ctx, model, buildTurns(a.documentParts(documentIDs), history, llm.Prompt(llm.PromptSourceIdentification)))
	if err != nil {
		return nil, llm.Usage{}, err
	}
	items, err := llm.ExtractListOfDicts(resp.Text)
	if err != nil {
		return nil, resp.Usage, fmt.Errorf("%w: %v", ErrBadOutputFormat, err)
	}

	byName := make(map[string]models.Document, len(a.documents))
	for _, d := range a.documents {
		byName[d.Filename] = d
	}
	signed := make(map[string]string)

	sources := []models.Source{}
	for _, item := range items {
		filename, okName := llm.StringField(item, "filename")
		page, okPage := llm.IntField(item, "page")
		citation, okCitation := llm.StringField(item, "citation")
		if !okName || !okPage || !okCitation {
			logger.Warn("[ChatbotAgent] skipping malformed source", zap.Any("source", item))
			continue
		}
		doc, ok := byName[filename]
		if !ok {
			continue
		}
		url, ok := signed[doc.URI]
		if !ok {
			url, err = a.objects.SignedURL(ctx, doc.URI, a.signedURLTTL)
			if err != nil {
				return nil, resp.Usage, fmt.Errorf("signing %s: %w", doc.Filename, err)
			}
			signed[doc.URI] = url
		}
		sources = append(sources, models.Source{
			Filename: filename,
			Page:     page,
			Citation: citation,
			URL:      fmt.Sprintf("%s#page=%d", url, page),
		})
	}
	return sources, resp.Usage, nil
}
