package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	integration_models "docutalk-backend/internal/models/integrations"
	"docutalk-backend/pkg/logger"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

var _ Integration = (*NotionIntegration)(nil)
var _ PageImporter = (*NotionIntegration)(nil)

const (
	notionSecretKey = "internal_integration_secret"
	// Nested children below this depth are skipped.
	notionMaxDepth = 3
)

var ErrInvalidPageID = errors.New("invalid notion page id")

type NotionIntegration struct {
	httpClient *http.Client
}

// NewNotionIntegration uses httpClient for API calls, http.DefaultClient when nil.
func NewNotionIntegration(httpClient *http.Client) *NotionIntegration {
	return &NotionIntegration{httpClient: httpClient}
}

func (n *NotionIntegration) client(creds integration_models.DecryptedCredentials) *notionapi.Client {
	var opts []notionapi.ClientOption
	if n.httpClient != nil {
		opts = append(opts, notionapi.WithHTTPClient(n.httpClient))
	}
	return notionapi.NewClient(notionapi.Token(creds[notionSecretKey]), opts...)
}

func (n *NotionIntegration) ValidateCredentials(creds integration_models.DecryptedCredentials) error {
	if strings.TrimSpace(creds[notionSecretKey]) == "" {
		return fmt.Errorf("'%s' is required", notionSecretKey)
	}
	return nil
}

// TestConnection reads the bot user behind the secret.
func (n *NotionIntegration) TestConnection(ctx context.Context, creds integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error) {
	if err := n.ValidateCredentials(creds); err != nil {
		return &integration_models.TestConnectionResult{Success: false, Message: err.Error()}, nil
	}

	botUser, err := n.client(creds).User.Me(ctx)
	if err != nil {
		var notionErr *notionapi.Error
		if errors.As(err, &notionErr) {
			message := fmt.Sprintf("Notion API error (%s): %s", notionErr.Code, notionErr.Message)
			if notionErr.Status == http.StatusUnauthorized {
				message = "Notion API Error: Invalid API key (Unauthorized)."
			}
			return &integration_models.TestConnectionResult{Success: false, Message: message}, nil
		}
		return nil, fmt.Errorf("failed during Notion connection test: %w", err)
	}

	var botName string
	if botUser != nil && botUser.Type == notionapi.UserTypeBot {
		botName = botUser.Name
	}
	return &integration_models.TestConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Notion as '%s'", botName),
		Details: map[string]interface{}{"bot_name": botName},
	}, nil
}

func (n *NotionIntegration) GetCredentialSchema() interface{} {
	return integration_models.NotionCredentials{}
}

var pageIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}`)

// NormalizePageID accepts a bare id, a dashed id or a page URL and returns
// the 32 hex digit id.
func NormalizePageID(s string) (string, error) {
	matches := pageIDPattern.FindAllString(strings.TrimSpace(s), -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPageID, s)
	}
	// URLs end with the id, after the page slug.
	return strings.ToLower(strings.ReplaceAll(matches[len(matches)-1], "-", "")), nil
}

// ImportPage returns the page title and its blocks rendered as plain text.
func (n *NotionIntegration) ImportPage(ctx context.Context, creds integration_models.DecryptedCredentials, pageID string) (*integration_models.ImportedPage, error) {
	if err := n.ValidateCredentials(creds); err != nil {
		return nil, err
	}
	id, err := NormalizePageID(pageID)
	if err != nil {
		return nil, err
	}
	client := n.client(creds)

	page, err := client.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return nil, fmt.Errorf("fetching notion page %s: %w", id, err)
	}
	title := pageTitle(page)

	var sb strings.Builder
	if err := n.renderChildren(ctx, client, notionapi.BlockID(id), 0, &sb); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(sb.String())
	logger.Info("[NotionIntegration] page imported",
		zap.String("page_id", id),
		zap.Int("chars", len(text)),
	)
	return &integration_models.ImportedPage{PageID: id, Title: title, Text: text}, nil
}

func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			return plainText(tp.Title)
		}
	}
	return "Untitled"
}

func (n *NotionIntegration) renderChildren(ctx context.Context, client *notionapi.Client, parent notionapi.BlockID, depth int, sb *strings.Builder) error {
	var cursor notionapi.Cursor
	for {
		resp, err := client.Block.GetChildren(ctx, parent, &notionapi.Pagination{StartCursor: cursor, PageSize: 100})
		if err != nil {
			return fmt.Errorf("fetching children of %s: %w", parent, err)
		}
		for _, b := range resp.Results {
			if line, ok := renderBlock(b); ok {
				sb.WriteString(strings.Repeat("  ", depth))
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			if b.GetHasChildren() && depth+1 < notionMaxDepth {
				if err := n.renderChildren(ctx, client, b.GetID(), depth+1, sb); err != nil {
					return err
				}
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

func renderBlock(b notionapi.Block) (string, bool) {
	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		return plainText(v.Paragraph.RichText), true
	case *notionapi.Heading1Block:
		return "# " + plainText(v.Heading1.RichText), true
	case *notionapi.Heading2Block:
		return "## " + plainText(v.Heading2.RichText), true
	case *notionapi.Heading3Block:
		return "### " + plainText(v.Heading3.RichText), true
	case *notionapi.BulletedListItemBlock:
		return "- " + plainText(v.BulletedListItem.RichText), true
	case *notionapi.NumberedListItemBlock:
		return "1. " + plainText(v.NumberedListItem.RichText), true
	case *notionapi.ToDoBlock:
		box := "[ ] "
		if v.ToDo.Checked {
			box = "[x] "
		}
		return box + plainText(v.ToDo.RichText), true
	case *notionapi.QuoteBlock:
		return "> " + plainText(v.Quote.RichText), true
	case *notionapi.CalloutBlock:
		return plainText(v.Callout.RichText), true
	case *notionapi.ToggleBlock:
		return plainText(v.Toggle.RichText), true
	case *notionapi.CodeBlock:
		return "```\n" + plainText(v.Code.RichText) + "\n```", true
	}
	return "", false
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return sb.String()
}
