package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docutalk-backend/pkg/logger"
	"docutalk-backend/pkg/retry"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileResolver maps a stored document URI to a URI the model can read.
type FileResolver interface {
	Resolve(ctx context.Context, uri, mimeType string) (string, error)
}

var _ Generator = (*Gemini)(nil)

type Gemini struct {
	client *genai.Client
	files  FileResolver
	retry  retry.Config
}

func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// NewGemini wraps client. files may be nil when requests never carry file parts.
func NewGemini(client *genai.Client, files FileResolver, retryCfg retry.Config) *Gemini {
	retryCfg.Retryable = IsQuotaError
	if retryCfg.Logger == nil {
		retryCfg.Logger = logger.Named("gemini")
	}
	return &Gemini{client: client, files: files, retry: retryCfg}
}

// IsQuotaError reports whether err is a rate limit or quota exhaustion.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}
	return false
}

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
}

// chat holds a prepared request. A failed send leaves the user turn in the
// session history, so every attempt starts a fresh session.
type chat struct {
	model   *genai.GenerativeModel
	history []*genai.Content
	parts   []genai.Part
}

func (c *chat) session() *genai.ChatSession {
	cs := c.model.StartChat()
	cs.History = append([]*genai.Content(nil), c.history...)
	return cs
}

// prepare converts every message but the last into history; the last one
// becomes the parts to send.
func (g *Gemini) prepare(ctx context.Context, req Request) (*chat, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("request has no messages")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != RoleUser {
		return nil, fmt.Errorf("last message must come from the user, got %q", last.Role)
	}

	model := g.client.GenerativeModel(req.Model)
	model.SafetySettings = safetySettings
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}

	history := make([]*genai.Content, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		parts, err := g.convertParts(ctx, m.Parts)
		if err != nil {
			return nil, err
		}
		history = append(history, &genai.Content{Role: string(m.Role), Parts: parts})
	}
	parts, err := g.convertParts(ctx, last.Parts)
	if err != nil {
		return nil, err
	}
	return &chat{model: model, history: history, parts: parts}, nil
}

func (g *Gemini) convertParts(ctx context.Context, in []Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(in))
	for _, p := range in {
		if p.FileURI == "" {
			out = append(out, genai.Text(p.Text))
			continue
		}
		uri := p.FileURI
		if g.files != nil && strings.HasPrefix(uri, "gs://") {
			resolved, err := g.files.Resolve(ctx, uri, p.MIMEType)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", uri, err)
			}
			uri = resolved
		}
		out = append(out, genai.FileData{MIMEType: p.MIMEType, URI: uri})
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func usageOf(model string, resp *genai.GenerateContentResponse) Usage {
	u := Usage{Model: model}
	if resp != nil && resp.UsageMetadata != nil {
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return u
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	c, err := g.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := retry.DoWithResult(ctx, g.retry, func(attempt int) (*genai.GenerateContentResponse, error) {
		return c.session().SendMessage(ctx, c.parts...)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini SendMessage failed: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	usage := usageOf(req.Model, resp)
	logger.Debug("[Gemini] generated", zap.String("model", req.Model), zap.Int("total_tokens", usage.TotalTokens))
	return &Response{Text: text, Usage: usage}, nil
}

// Stream retries quota errors only while nothing has been sent to onChunk.
func (g *Gemini) Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	c, err := g.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	emitted := false
	cfg := g.retry
	cfg.Retryable = func(err error) bool { return !emitted && IsQuotaError(err) }

	var answer strings.Builder
	var last *genai.GenerateContentResponse
	err = retry.Do(ctx, cfg, func(attempt int) error {
		it := c.session().SendMessageStream(ctx, c.parts...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			if resp.UsageMetadata != nil {
				last = resp
			}
			delta := responseText(resp)
			if delta == "" {
				continue
			}
			emitted = true
			answer.WriteString(delta)
			if err := onChunk(delta); err != nil {
				return err
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("gemini stream failed: %w", err)
	}
	if answer.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: answer.String(), Usage: usageOf(req.Model, last)}, nil
}
