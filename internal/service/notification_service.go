package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/config"
	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/events"
)

const webhookTimeout = 10 * time.Second

// NotificationService forwards token events to the configured webhook.
// Deliveries run in the background; publishers never wait on the webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *http.Client
	inflight   sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = webhookTimeout
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     client,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTokenStatusChanged, n.handleTokenStatusChanged)
	n.dispatcher.Subscribe(events.EventTokenPortalRefreshed, n.handleTokenPortalRefreshed)
	n.dispatcher.Subscribe(events.EventTokenUsageExhausted, n.handleTokenUsageExhausted)
}

func (n *NotificationService) handleTokenStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TokenStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TokenStatusChanged",
		zap.String("token_id", event.TokenID),
		zap.String("new_status", payload.NewStatus.String()))

	// Recoveries and transient upstream trouble are logged only.
	if !payload.NewStatus.IsExcludedFromCredits() {
		return nil
	}
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleTokenPortalRefreshed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TokenPortalRefreshedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if payload.Status != domain.PortalStatusError {
		n.logger.Debug("TokenPortalRefreshed", zap.String("token_id", event.TokenID), zap.Int("credits_balance", payload.CreditsBalance))
		return nil
	}
	n.logger.Info("TokenPortalRefreshFailed", zap.String("token_id", event.TokenID), zap.String("error", payload.Error))
	return nil
}

func (n *NotificationService) handleTokenUsageExhausted(ctx context.Context, event events.Event) error {
	n.logger.Info("TokenUsageExhausted", zap.String("token_id", event.TokenID), zap.Any("payload", event.Payload))
	n.sendWebhook(ctx, event)
	return nil
}

// Wait blocks until in-flight webhook deliveries finish.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}

// sendWebhook schedules a single delivery bounded by webhookTimeout. Failures
// are logged, never retried.
func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
		defer cancel()
		if err := n.deliver(deliverCtx, event); err != nil {
			n.logger.Warn("webhook delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("token_id", event.TokenID),
				zap.Error(err))
		}
	}()
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_type", string(event.Type)),
		zap.String("token_id", event.TokenID))
	return nil
}
