package events

import (
	"time"

	"github.com/spec-kit/token-manager/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenStatusChanged   EventType = "token_status_changed"
	EventTokenPortalRefreshed EventType = "token_portal_refreshed"
	EventTokenUsageExhausted  EventType = "token_usage_exhausted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TokenID   string      `json:"token_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TokenStatusChangedPayload is published when a probe changes the persisted status.
type TokenStatusChangedPayload struct {
	OldStatus *domain.BanStatus `json:"old_status,omitempty"`
	NewStatus domain.BanStatus  `json:"new_status"`
	Message   string            `json:"message"`
}

// TokenPortalRefreshedPayload is published after every portal snapshot write.
type TokenPortalRefreshedPayload struct {
	Status         string `json:"status"`
	CreditsBalance int    `json:"credits_balance"`
	Error          string `json:"error,omitempty"`
}

// TokenUsageExhaustedPayload is published when a usage increment reaches the budget.
type TokenUsageExhaustedPayload struct {
	UsageCount int `json:"usage_count"`
	MaxUsage   int `json:"max_usage"`
}
