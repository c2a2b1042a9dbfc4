package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/config"
	"github.com/spec-kit/token-manager/internal/events"
	"github.com/spec-kit/token-manager/internal/service"
)

// StartNotificationWorker subscribes token event notifications on dispatcher.
// Without a webhook URL the handlers only log.
func StartNotificationWorker(dispatcher events.Dispatcher, cfg config.NotificationConfig, logger *zap.Logger) *service.NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := service.NewNotificationService(dispatcher, logger, cfg)
	notifier.RegisterHandlers()

	if cfg.WebhookURL == "" {
		logger.Info("token event webhook disabled")
	} else {
		logger.Info("token event webhook enabled")
	}
	return notifier
}
