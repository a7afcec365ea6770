// Package notify alerts operators about requests that need a human.
package notify

import (
	"context"
	"fmt"

	"docutalk-backend/internal/models"
	"docutalk-backend/pkg/logger"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier reports events to operators. Implementations log failures
// instead of returning them.
type Notifier interface {
	PublicSharingRequested(ctx context.Context, chatbot *models.Chatbot, requester *models.User)
}

var _ Notifier = (*SlackNotifier)(nil)

type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier returns a notifier posting to channel. With an empty
// token or channel it returns a Nop.
func NewSlackNotifier(botToken, channel string, opts ...slack.Option) Notifier {
	if botToken == "" || channel == "" {
		logger.Info("[SlackNotifier] slack not configured, operator notifications disabled")
		return Nop{}
	}
	return &SlackNotifier{client: slack.New(botToken, opts...), channel: channel}
}

func (n *SlackNotifier) PublicSharingRequested(ctx context.Context, chatbot *models.Chatbot, requester *models.User) {
	text := fmt.Sprintf("*Public sharing requested*\nChatbot: %s (`%s`)\nRequested by: %s <%s>",
		chatbot.Title, chatbot.ID, requester.FriendlyName, requester.Email)

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		logger.Error("[SlackNotifier] failed to post public sharing request",
			zap.String("chatbot_id", chatbot.ID.String()),
			zap.Error(err),
		)
		return
	}
	logger.Info("[SlackNotifier] public sharing request posted", zap.String("chatbot_id", chatbot.ID.String()))
}

// Nop discards notifications.
type Nop struct{}

func (Nop) PublicSharingRequested(context.Context, *models.Chatbot, *models.User) {}
