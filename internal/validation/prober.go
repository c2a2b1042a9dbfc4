package validation

import (
	"bytes"
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/domain"
)

const findMissingPath = "find-missing"

var (
	suspendedMarker    = []byte("suspended")
	invalidTokenMarker = []byte("invalid token")
)

// Human readable outcomes returned with every validation.
const (
	MessageStatusNormal   = "token status normal"
	MessageAccountBanned  = "account banned"
	MessageTokenInvalid   = "token invalid"
	MessageStatusAbnormal = "token status abnormal"
)

// ProbeResult is the outcome of a single status probe.
type ProbeResult struct {
	Status     domain.BanStatus
	Valid      bool
	HTTPStatus int
	Err        error
}

// Prober determines whether a token is usable against its tenant service.
type Prober struct {
	client HTTPDoer
	logger *zap.Logger
}

// NewProber builds a prober. A nil client falls back to a pooled client with the default timeout.
func NewProber(client HTTPDoer, logger *zap.Logger) *Prober {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{client: client, logger: logger}
}

// Probe performs exactly one POST to <tenant>/find-missing and classifies the answer.
// Transport failures are folded into the status taxonomy and never returned as errors.
func (p *Prober) Probe(ctx context.Context, token *domain.Token) ProbeResult {
	endpoint := tenantEndpoint(token.TenantURL, findMissingPath)

	req, err := newTenantRequest(ctx, endpoint, token.AccessToken)
	if err != nil {
		return p.transportFailure(token, err)
	}

	statusCode, body, err := doRequest(p.client, req)
	if err != nil {
		return p.transportFailure(token, err)
	}

	status, valid := Classify(statusCode, body)
	p.logger.Debug("token probed",
		zap.String("token_id", token.ID),
		zap.Int("http_status", statusCode),
		zap.String("status", status.String()))
	return ProbeResult{Status: status, Valid: valid, HTTPStatus: statusCode}
}

func (p *Prober) transportFailure(token *domain.Token, err error) ProbeResult {
	status := domain.BanStatusUnknownError
	if isTimeout(err) {
		status = domain.BanStatusServerError
	}
	p.logger.Warn("token probe failed",
		zap.String("token_id", token.ID),
		zap.String("status", status.String()),
		zap.Error(err))
	return ProbeResult{Status: status, Err: err}
}

// Classify maps a probe response to a ban status. Body markers take priority
// over the status code; the first matching rule wins.
func Classify(statusCode int, body []byte) (domain.BanStatus, bool) {
	lowered := bytes.ToLower(body)
	switch {
	case bytes.Contains(lowered, suspendedMarker):
		return domain.BanStatusSuspended, false
	case bytes.Contains(lowered, invalidTokenMarker):
		return domain.BanStatusInvalidToken, false
	case statusCode >= 200 && statusCode < 300:
		return domain.BanStatusActive, true
	case statusCode == http.StatusUnauthorized:
		return domain.BanStatusUnauthorized, false
	case statusCode == http.StatusForbidden:
		return domain.BanStatusForbidden, false
	case statusCode == http.StatusTooManyRequests:
		return domain.BanStatusRateLimited, false
	case statusCode >= 500 && statusCode < 600:
		return domain.BanStatusServerError, false
	default:
		return domain.BanStatusUnknownError, false
	}
}

// ValidationMessage derives the operator-facing message from the persisted status.
func ValidationMessage(status domain.BanStatus, valid bool) string {
	switch {
	case valid:
		return MessageStatusNormal
	case status.IsAccountBanned():
		return MessageAccountBanned
	case status == domain.BanStatusInvalidToken:
		return MessageTokenInvalid
	default:
		return MessageStatusAbnormal
	}
}
