package mailing

import (
	"context"

	"docutalk-backend/internal/metrics"
	"docutalk-backend/pkg/logger"

	"go.uber.org/zap"
)

var _ Dispatcher = (*DirectDispatcher)(nil)

// DirectDispatcher sends within the request. Used when no broker is configured.
type DirectDispatcher struct {
	sender Sender
}

func NewDirectDispatcher(sender Sender) *DirectDispatcher {
	return &DirectDispatcher{sender: sender}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, e Email) error {
	if err := d.sender.Send(ctx, e); err != nil {
		metrics.EmailsDispatched.WithLabelValues(e.Template, "failed").Inc()
		logger.Error("[DirectDispatcher] send failed", zap.String("template", e.Template), zap.Error(err))
		return err
	}
	metrics.EmailsDispatched.WithLabelValues(e.Template, "sent").Inc()
	return nil
}

var _ Dispatcher = NopDispatcher{}

// NopDispatcher drops every email. Used when SES is not configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(_ context.Context, e Email) error {
	logger.Warn("[NopDispatcher] email dropped, mailing not configured", zap.String("template", e.Template))
	return nil
}
