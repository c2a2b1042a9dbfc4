package dto

import (
	"time"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/service"
)

// CreateTokenRequest payload.
type CreateTokenRequest struct {
	TenantURL   string  `json:"tenant_url" validate:"required,http_url"`
	AccessToken string  `json:"access_token" validate:"required"`
	PortalURL   string  `json:"portal_url" validate:"omitempty,http_url"`
	EmailNote   *string `json:"email_note" validate:"omitempty,max=255"`
	MaxUsage    *int    `json:"max_usage" validate:"omitempty,min=0"`
}

// UpdateTokenRequest payload. Absent fields are left unchanged; set
// clear_max_usage to drop the usage budget.
type UpdateTokenRequest struct {
	TenantURL     *string `json:"tenant_url" validate:"omitempty,http_url"`
	AccessToken   *string `json:"access_token" validate:"omitempty,min=1"`
	PortalURL     *string `json:"portal_url" validate:"omitempty,http_url"`
	EmailNote     *string `json:"email_note" validate:"omitempty,max=255"`
	MaxUsage      *int    `json:"max_usage" validate:"omitempty,min=0"`
	ClearMaxUsage bool    `json:"clear_max_usage"`
}

// ToInput converts the request to the service input.
func (r CreateTokenRequest) ToInput() service.TokenCreateInput {
	return service.TokenCreateInput{
		TenantURL:   r.TenantURL,
		AccessToken: r.AccessToken,
		PortalURL:   r.PortalURL,
		EmailNote:   r.EmailNote,
		MaxUsage:    r.MaxUsage,
	}
}

// ToInput converts the request to the service input.
func (r UpdateTokenRequest) ToInput() service.TokenUpdateInput {
	return service.TokenUpdateInput{
		TenantURL:     r.TenantURL,
		AccessToken:   r.AccessToken,
		PortalURL:     r.PortalURL,
		EmailNote:     r.EmailNote,
		MaxUsage:      r.MaxUsage,
		ClearMaxUsage: r.ClearMaxUsage,
	}
}

// TokenResponse is the API view of a token.
type TokenResponse struct {
	ID            string             `json:"id"`
	TenantURL     string             `json:"tenant_url"`
	AccessToken   string             `json:"access_token"`
	PortalURL     string             `json:"portal_url"`
	EmailNote     *string            `json:"email_note"`
	BanStatus     *string            `json:"ban_status"`
	PortalInfo    *domain.PortalInfo `json:"portal_info"`
	UsageCount    int                `json:"usage_count"`
	MaxUsage      *int               `json:"max_usage"`
	StatusDisplay string             `json:"status_display"`
	IsExhausted   bool               `json:"is_exhausted"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewTokenResponse maps a domain token.
func NewTokenResponse(t *domain.Token) TokenResponse {
	resp := TokenResponse{
		ID:            t.ID,
		TenantURL:     t.TenantURL,
		AccessToken:   t.AccessToken,
		PortalURL:     t.PortalURL,
		EmailNote:     t.EmailNote,
		PortalInfo:    t.PortalInfo,
		UsageCount:    t.UsageCount,
		MaxUsage:      t.MaxUsage,
		StatusDisplay: t.StatusDisplay(),
		IsExhausted:   t.IsExhausted(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.BanStatus != nil {
		status := t.BanStatus.String()
		resp.BanStatus = &status
	}
	return resp
}

// NewTokenResponses maps a slice of tokens.
func NewTokenResponses(tokens []domain.Token) []TokenResponse {
	out := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		out = append(out, NewTokenResponse(&tokens[i]))
	}
	return out
}

// TokenListResponse is one page of tokens.
type TokenListResponse struct {
	Items []TokenResponse `json:"items"`
	Total int             `json:"total"`
	Skip  int             `json:"skip"`
	Limit int             `json:"limit"`
}

// NewTokenListResponse maps a service page.
func NewTokenListResponse(page *service.TokenPage) TokenListResponse {
	return TokenListResponse{
		Items: NewTokenResponses(page.Tokens),
		Total: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
	}
}

// ValidationResultResponse is returned by the validate endpoint.
type ValidationResultResponse struct {
	IsValid bool          `json:"is_valid"`
	Message string        `json:"message"`
	Token   TokenResponse `json:"token"`
}

// NewValidationResultResponse maps a validation result.
func NewValidationResultResponse(r *service.ValidationResult) ValidationResultResponse {
	return ValidationResultResponse{IsValid: r.IsValid, Message: r.Message, Token: NewTokenResponse(r.Token)}
}

type batchValidateItem struct {
	TokenID string `json:"token_id"`
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// BatchValidateResponse summarizes a batch validation.
type BatchValidateResponse struct {
	Results      []batchValidateItem `json:"results"`
	SuccessCount int                 `json:"success_count"`
	FailedCount  int                 `json:"failed_count"`
}

// NewBatchValidateResponse maps a batch validation report.
func NewBatchValidateResponse(r *service.BatchValidateReport) BatchValidateResponse {
	items := make([]batchValidateItem, 0, len(r.Results))
	for _, it := range r.Results {
		items = append(items, batchValidateItem{TokenID: it.TokenID, IsValid: it.IsValid, Message: it.Message, Error: it.Error})
	}
	return BatchValidateResponse{Results: items, SuccessCount: r.SuccessCount, FailedCount: r.FailedCount}
}

type batchRefreshItem struct {
	TokenID        string  `json:"token_id"`
	EmailNote      *string `json:"email_note"`
	Status         string  `json:"status"`
	PortalStatus   string  `json:"portal_status,omitempty"`
	CreditsBalance int     `json:"credits_balance"`
	Error          string  `json:"error,omitempty"`
}

// BatchRefreshResponse summarizes a batch portal refresh.
type BatchRefreshResponse struct {
	Results      []batchRefreshItem `json:"results"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
}

// NewBatchRefreshResponse maps a batch refresh report.
func NewBatchRefreshResponse(r *service.BatchRefreshReport) BatchRefreshResponse {
	items := make([]batchRefreshItem, 0, len(r.Results))
	for _, it := range r.Results {
		status := "failed"
		if it.Succeeded {
			status = "success"
		}
		items = append(items, batchRefreshItem{
			TokenID:        it.TokenID,
			EmailNote:      it.EmailNote,
			Status:         status,
			PortalStatus:   it.PortalStatus,
			CreditsBalance: it.CreditsBalance,
			Error:          it.Error,
		})
	}
	return BatchRefreshResponse{Results: items, SuccessCount: r.SuccessCount, FailedCount: r.FailedCount}
}

type importItem struct {
	Index     int     `json:"index"`
	Success   bool    `json:"success"`
	TokenID   string  `json:"token_id,omitempty"`
	EmailNote *string `json:"email_note"`
	Error     string  `json:"error,omitempty"`
}

// ImportResponse summarizes an import.
type ImportResponse struct {
	Results      []importItem `json:"results"`
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
}

// NewImportResponse maps an import report.
func NewImportResponse(r *service.ImportReport) ImportResponse {
	items := make([]importItem, 0, len(r.Results))
	for _, it := range r.Results {
		items = append(items, importItem{
			Index:     it.Index,
			Success:   it.Success,
			TokenID:   it.TokenID,
			EmailNote: it.EmailNote,
			Error:     it.Error,
		})
	}
	return ImportResponse{Results: items, SuccessCount: r.SuccessCount, FailedCount: r.FailedCount}
}

// BatchDeleteResponse summarizes a batch delete.
type BatchDeleteResponse struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors"`
}

// NewBatchDeleteResponse maps a batch delete report.
func NewBatchDeleteResponse(r *service.BatchDeleteReport) BatchDeleteResponse {
	return BatchDeleteResponse{SuccessCount: r.SuccessCount, FailedCount: r.FailedCount, Errors: r.Errors}
}

// TokenIDsRequest is the object form of a batch body. A bare JSON array of ids is accepted as well.
type TokenIDsRequest struct {
	IDs []string `json:"ids"`
}
