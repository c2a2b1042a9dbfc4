package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/events"
	"github.com/spec-kit/token-manager/internal/observability"
	"github.com/spec-kit/token-manager/internal/repository"
	"github.com/spec-kit/token-manager/internal/validation"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

// Prober classifies a token against its tenant service.
type Prober interface {
	Probe(ctx context.Context, token *domain.Token) validation.ProbeResult
}

// BalanceFetcher builds a billing snapshot for a token. It never fails.
type BalanceFetcher interface {
	Fetch(ctx context.Context, token *domain.Token) *domain.PortalInfo
}

// TokenService coordinates token storage, probing and balance refreshes.
type TokenService struct {
	tokens     repository.TokenRepository
	prober     Prober
	fetcher    BalanceFetcher
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// TokenDependencies bundles collaborators for the token service.
type TokenDependencies struct {
	TokenRepo  repository.TokenRepository
	Prober     Prober
	Fetcher    BalanceFetcher
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// ProbesPerSecond paces batch operations; zero leaves them unpaced.
	ProbesPerSecond float64
}

// TokenCreateInput describes a new token.
type TokenCreateInput struct {
	TenantURL   string
	AccessToken string
	PortalURL   string
	EmailNote   *string
	MaxUsage    *int
}

// TokenUpdateInput carries a partial update; nil fields are left untouched.
// ClearMaxUsage removes the usage budget and cannot be combined with MaxUsage.
type TokenUpdateInput struct {
	TenantURL     *string
	AccessToken   *string
	PortalURL     *string
	EmailNote     *string
	MaxUsage      *int
	ClearMaxUsage bool
}

// TokenPage is one page of the token listing.
type TokenPage struct {
	Tokens []domain.Token
	Total  int
	Skip   int
	Limit  int
}

// ValidationResult is returned by Validate.
type ValidationResult struct {
	IsValid bool
	Message string
	Token   *domain.Token
}

// BatchValidateItem is the per-token outcome of a batch validation.
type BatchValidateItem struct {
	TokenID string
	IsValid bool
	Message string
	Error   bool
}

// BatchValidateReport aggregates a batch validation.
type BatchValidateReport struct {
	Results      []BatchValidateItem
	SuccessCount int
	FailedCount  int
}

// BatchRefreshItem is the per-token outcome of a batch portal refresh.
type BatchRefreshItem struct {
	TokenID        string
	EmailNote      *string
	Succeeded      bool
	PortalStatus   string
	CreditsBalance int
	Error          string
}

// BatchRefreshReport aggregates a batch portal refresh.
type BatchRefreshReport struct {
	Results      []BatchRefreshItem
	SuccessCount int
	FailedCount  int
}

// ImportItemResult is the per-entry outcome of an import.
type ImportItemResult struct {
	Index     int
	Success   bool
	TokenID   string
	EmailNote *string
	Error     string
}

// ImportReport aggregates an import.
type ImportReport struct {
	Results      []ImportItemResult
	SuccessCount int
	FailedCount  int
}

// BatchDeleteReport aggregates a batch delete.
type BatchDeleteReport struct {
	SuccessCount int
	FailedCount  int
	Errors       []string
}

// ExportedToken is the portable representation used by import and export.
type ExportedToken struct {
	TenantURL   string  `json:"tenant_url"`
	AccessToken string  `json:"access_token"`
	PortalURL   string  `json:"portal_url"`
	EmailNote   *string `json:"email_note"`
}

// NewTokenService constructs the service.
func NewTokenService(deps TokenDependencies) *TokenService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if deps.ProbesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.ProbesPerSecond), 1)
	}
	return &TokenService{
		tokens:     deps.TokenRepo,
		prober:     deps.Prober,
		fetcher:    deps.Fetcher,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		limiter:    limiter,
		logger:     logger,
	}
}

// Create stores a new token. Status and portal info start empty.
func (s *TokenService) Create(ctx context.Context, input TokenCreateInput) (*domain.Token, error) {
	token := &domain.Token{
		TenantURL:   strings.TrimSpace(input.TenantURL),
		AccessToken: strings.TrimSpace(input.AccessToken),
		PortalURL:   strings.TrimSpace(input.PortalURL),
		EmailNote:   input.EmailNote,
		MaxUsage:    input.MaxUsage,
	}
	if err := checkToken(token); err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}
	s.logger.Info("token created", zap.String("token_id", token.ID))
	return token, nil
}

// Get loads a token by ID.
func (s *TokenService) Get(ctx context.Context, id string) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return token, nil
}

// List returns a page of tokens, newest first.
func (s *TokenService) List(ctx context.Context, skip, limit int) (*TokenPage, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	tokens, err := s.tokens.List(ctx, limit, skip)
	if err != nil {
		return nil, err
	}
	total, err := s.tokens.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &TokenPage{Tokens: tokens, Total: total, Skip: skip, Limit: limit}, nil
}

// Update applies a partial update.
func (s *TokenService) Update(ctx context.Context, id string, input TokenUpdateInput) (*domain.Token, error) {
	if input.ClearMaxUsage && input.MaxUsage != nil {
		return nil, apperrors.NewValidationError("invalid token", map[string]any{
			"clear_max_usage": "cannot be combined with max_usage",
		})
	}
	token, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.TenantURL != nil {
		token.TenantURL = strings.TrimSpace(*input.TenantURL)
	}
	if input.AccessToken != nil {
		token.AccessToken = strings.TrimSpace(*input.AccessToken)
	}
	if input.PortalURL != nil {
		token.PortalURL = strings.TrimSpace(*input.PortalURL)
	}
	if input.EmailNote != nil {
		token.EmailNote = input.EmailNote
	}
	if input.MaxUsage != nil {
		token.MaxUsage = input.MaxUsage
	}
	if input.ClearMaxUsage {
		token.MaxUsage = nil
	}
	if err := checkToken(token); err != nil {
		return nil, err
	}

	if err := s.tokens.Update(ctx, token); err != nil {
		return nil, notFoundOr(err, id)
	}
	return token, nil
}

// Delete removes a token.
func (s *TokenService) Delete(ctx context.Context, id string) error {
	if err := s.tokens.Delete(ctx, id); err != nil {
		return notFoundOr(err, id)
	}
	s.logger.Info("token deleted", zap.String("token_id", id))
	return nil
}

// IncrementUsage bumps the usage counter and reports exhaustion once the budget is reached.
func (s *TokenService) IncrementUsage(ctx context.Context, id string) (*domain.Token, error) {
	if _, err := s.tokens.IncrementUsage(ctx, id); err != nil {
		return nil, notFoundOr(err, id)
	}
	token, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if token.MaxUsage != nil && token.UsageCount == *token.MaxUsage {
		s.publish(ctx, events.Event{
			Type:    events.EventTokenUsageExhausted,
			TokenID: token.ID,
			Payload: events.TokenUsageExhaustedPayload{UsageCount: token.UsageCount, MaxUsage: *token.MaxUsage},
		})
	}
	return token, nil
}

// Validate probes the token, persists the classified status with a single
// write and derives the message from what was persisted. Classified failures
// are results, not errors.
func (s *TokenService) Validate(ctx context.Context, id string) (*ValidationResult, error) {
	token, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.validateToken(ctx, token)
}

func (s *TokenService) validateToken(ctx context.Context, token *domain.Token) (*ValidationResult, error) {
	previous := token.BanStatus
	probe := s.prober.Probe(ctx, token)
	s.metrics.RecordProbe(probe.Status.String())

	if err := s.tokens.UpdateStatus(ctx, token.ID, probe.Status); err != nil {
		return nil, notFoundOr(err, token.ID)
	}
	status := probe.Status
	token.BanStatus = &status

	message := validation.ValidationMessage(status, probe.Valid)
	if previous == nil || *previous != status {
		s.publish(ctx, events.Event{
			Type:    events.EventTokenStatusChanged,
			TokenID: token.ID,
			Payload: events.TokenStatusChangedPayload{OldStatus: previous, NewStatus: status, Message: message},
		})
	}

	s.logger.Info("token validated",
		zap.String("token_id", token.ID),
		zap.String("status", status.String()),
		zap.Bool("valid", probe.Valid))
	return &ValidationResult{IsValid: probe.Valid, Message: message, Token: token}, nil
}

// RefreshPortalInfo fetches a billing snapshot and stores it with a single
// write. Upstream failures are stored as error snapshots, not returned.
func (s *TokenService) RefreshPortalInfo(ctx context.Context, id string) (*domain.Token, error) {
	token, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refreshToken(ctx, token)
}

func (s *TokenService) refreshToken(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	info := s.fetcher.Fetch(ctx, token)
	s.metrics.RecordPortalRefresh(info.Status)

	if err := s.tokens.UpdatePortalInfo(ctx, token.ID, info); err != nil {
		return nil, notFoundOr(err, token.ID)
	}
	token.PortalInfo = info

	s.publish(ctx, events.Event{
		Type:    events.EventTokenPortalRefreshed,
		TokenID: token.ID,
		Payload: events.TokenPortalRefreshedPayload{Status: info.Status, CreditsBalance: info.CreditsBalance, Error: info.Error},
	})
	return token, nil
}

// BatchValidate validates the given tokens, or every token when ids is empty,
// one at a time. Each token yields exactly one result.
func (s *TokenService) BatchValidate(ctx context.Context, ids []string) (*BatchValidateReport, error) {
	targets, err := s.batchTargets(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &BatchValidateReport{Results: make([]BatchValidateItem, 0, len(targets))}
	for _, target := range targets {
		item := s.validateItem(ctx, target)
		if item.IsValid {
			report.SuccessCount++
		} else {
			report.FailedCount++
		}
		report.Results = append(report.Results, item)
	}

	s.logger.Info("batch validation finished",
		zap.Int("total", len(targets)),
		zap.Int("valid", report.SuccessCount),
		zap.Int("invalid", report.FailedCount))
	return report, nil
}

func (s *TokenService) validateItem(ctx context.Context, target batchTarget) (item BatchValidateItem) {
	item.TokenID = target.id
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("token validation panicked", zap.String("token_id", target.id), zap.Any("panic", r))
			item = BatchValidateItem{TokenID: target.id, Message: fmt.Sprintf("unexpected failure: %v", r), Error: true}
		}
	}()

	token := target.token
	if token == nil {
		loaded, err := s.Get(ctx, target.id)
		if err != nil {
			return BatchValidateItem{TokenID: target.id, Message: batchErrorMessage(err), Error: true}
		}
		token = loaded
	}
	if err := s.pace(ctx); err != nil {
		return BatchValidateItem{TokenID: target.id, Message: err.Error(), Error: true}
	}

	result, err := s.validateToken(ctx, token)
	if err != nil {
		return BatchValidateItem{TokenID: target.id, Message: batchErrorMessage(err), Error: true}
	}
	return BatchValidateItem{TokenID: target.id, IsValid: result.IsValid, Message: result.Message}
}

// BatchRefresh refreshes the billing snapshot of every token, one at a time.
func (s *TokenService) BatchRefresh(ctx context.Context) (*BatchRefreshReport, error) {
	tokens, err := s.tokens.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &BatchRefreshReport{Results: make([]BatchRefreshItem, 0, len(tokens))}
	for i := range tokens {
		item := s.refreshItem(ctx, &tokens[i])
		if item.Succeeded {
			report.SuccessCount++
		} else {
			report.FailedCount++
		}
		report.Results = append(report.Results, item)
	}

	s.logger.Info("batch refresh finished",
		zap.Int("total", len(tokens)),
		zap.Int("succeeded", report.SuccessCount),
		zap.Int("failed", report.FailedCount))
	return report, nil
}

func (s *TokenService) refreshItem(ctx context.Context, token *domain.Token) (item BatchRefreshItem) {
	item = BatchRefreshItem{TokenID: token.ID, EmailNote: token.EmailNote}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("portal refresh panicked", zap.String("token_id", token.ID), zap.Any("panic", r))
			item.Succeeded = false
			item.Error = fmt.Sprintf("unexpected failure: %v", r)
		}
	}()

	if err := s.pace(ctx); err != nil {
		item.Error = err.Error()
		return item
	}
	refreshed, err := s.refreshToken(ctx, token)
	if err != nil {
		item.Error = batchErrorMessage(err)
		return item
	}

	info := refreshed.PortalInfo
	item.PortalStatus = info.Status
	item.CreditsBalance = info.CreditsBalance
	item.Error = info.Error
	item.Succeeded = info.Status != domain.PortalStatusError
	return item
}

// Import creates one token per entry. Bad entries are reported and skipped.
func (s *TokenService) Import(ctx context.Context, entries []ExportedToken) *ImportReport {
	report := &ImportReport{Results: make([]ImportItemResult, 0, len(entries))}
	for i, entry := range entries {
		token, err := s.Create(ctx, TokenCreateInput{
			TenantURL:   entry.TenantURL,
			AccessToken: entry.AccessToken,
			PortalURL:   entry.PortalURL,
			EmailNote:   entry.EmailNote,
		})
		if err != nil {
			report.FailedCount++
			report.Results = append(report.Results, ImportItemResult{Index: i, EmailNote: entry.EmailNote, Error: batchErrorMessage(err)})
			continue
		}
		report.SuccessCount++
		report.Results = append(report.Results, ImportItemResult{Index: i, Success: true, TokenID: token.ID, EmailNote: token.EmailNote})
	}
	return report
}

// Export returns the portable form of the given tokens, or of all tokens when ids is empty.
func (s *TokenService) Export(ctx context.Context, ids []string) ([]ExportedToken, error) {
	var (
		tokens []domain.Token
		err    error
	)
	if len(ids) == 0 {
		tokens, err = s.tokens.ListAll(ctx)
	} else {
		tokens, err = s.tokens.ListByIDs(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, apperrors.NewNotFound("tokens to export", nil)
	}

	out := make([]ExportedToken, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, ExportedToken{
			TenantURL:   t.TenantURL,
			AccessToken: t.AccessToken,
			PortalURL:   t.PortalURL,
			EmailNote:   t.EmailNote,
		})
	}
	return out, nil
}

// BatchDelete removes each token independently.
func (s *TokenService) BatchDelete(ctx context.Context, ids []string) *BatchDeleteReport {
	report := &BatchDeleteReport{Errors: []string{}}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			report.FailedCount++
			if apperrors.IsNotFound(err) || isDomainCode(err, "NOT_FOUND") {
				report.Errors = append(report.Errors, fmt.Sprintf("token %s not found", id))
			} else {
				report.Errors = append(report.Errors, fmt.Sprintf("delete token %s: %s", id, batchErrorMessage(err)))
			}
			continue
		}
		report.SuccessCount++
	}
	return report
}

type batchTarget struct {
	id    string
	token *domain.Token
}

func (s *TokenService) batchTargets(ctx context.Context, ids []string) ([]batchTarget, error) {
	if len(ids) > 0 {
		targets := make([]batchTarget, 0, len(ids))
		for _, id := range ids {
			targets = append(targets, batchTarget{id: id})
		}
		return targets, nil
	}

	tokens, err := s.tokens.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]batchTarget, 0, len(tokens))
	for i := range tokens {
		targets = append(targets, batchTarget{id: tokens[i].ID, token: &tokens[i]})
	}
	return targets, nil
}

// pace blocks until the limiter admits the next outbound call.
func (s *TokenService) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *TokenService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("token_id", event.TokenID),
			zap.Error(err))
	}
}

// checkToken enforces the fields every stored token needs.
func checkToken(token *domain.Token) error {
	details := map[string]any{}
	if err := checkHTTPURL(token.TenantURL); err != nil {
		details["tenant_url"] = err.Error()
	}
	if token.AccessToken == "" {
		details["access_token"] = "is required"
	}
	if token.PortalURL != "" {
		if err := checkHTTPURL(token.PortalURL); err != nil {
			details["portal_url"] = err.Error()
		}
	}
	if token.MaxUsage != nil && *token.MaxUsage < 0 {
		details["max_usage"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid token", details)
	}
	return nil
}

func checkHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func notFoundOr(err error, id string) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFound("token", map[string]any{"id": id})
	}
	return err
}

func isDomainCode(err error, code string) bool {
	var de *apperrors.DomainError
	return errors.As(err, &de) && de.Code == code
}

func batchErrorMessage(err error) string {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		if len(de.Details) > 0 {
			return fmt.Sprintf("%s: %v", de.Message, de.Details)
		}
		return de.Message
	}
	return err.Error()
}
