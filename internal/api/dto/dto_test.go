package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/token-manager/internal/domain"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

func TestValidateReportsFieldsByJSONName(t *testing.T) {
	negative := -1
	err := Validate(CreateTokenRequest{TenantURL: "ftp://x", MaxUsage: &negative})
	require.Error(t, err)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Equal(t, "must be an http or https URL", de.Details["tenant_url"])
	assert.Equal(t, "is required", de.Details["access_token"])
	assert.Equal(t, "must be at least 0", de.Details["max_usage"])
}

func TestValidateAcceptsMinimalToken(t *testing.T) {
	assert.NoError(t, Validate(CreateTokenRequest{TenantURL: "https://t.example.com/", AccessToken: "abc"}))
	assert.NoError(t, Validate(UpdateTokenRequest{}))
}

func TestUpdateRequestCarriesClearMaxUsage(t *testing.T) {
	var req UpdateTokenRequest
	require.NoError(t, json.Unmarshal([]byte(`{"clear_max_usage":true}`), &req))

	input := req.ToInput()
	assert.True(t, input.ClearMaxUsage)
	assert.Nil(t, input.MaxUsage)
}

func TestValidateUserEmail(t *testing.T) {
	bad := "not-an-email"
	err := Validate(CreateUserRequest{Username: "alice", Password: "longenough", Email: &bad})
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "email")
}

func TestValidateIDs(t *testing.T) {
	assert.NoError(t, ValidateIDs(nil))
	assert.NoError(t, ValidateIDs([]string{"7f1c2a4e-3b5d-4c6e-8f90-a1b2c3d4e5f6"}))
	assert.Error(t, ValidateIDs([]string{"42"}))
}

func TestNewTokenResponseDerivedFields(t *testing.T) {
	limit := 5
	tok := &domain.Token{ID: "t1", UsageCount: 5, MaxUsage: &limit, CreatedAt: time.Unix(0, 0)}

	resp := NewTokenResponse(tok)
	assert.Equal(t, "EXHAUSTED", resp.StatusDisplay)
	assert.True(t, resp.IsExhausted)
	assert.Nil(t, resp.BanStatus)

	status := domain.BanStatusSuspended
	tok.BanStatus = &status
	resp = NewTokenResponse(tok)
	assert.Equal(t, "SUSPENDED", resp.StatusDisplay)
	require.NotNil(t, resp.BanStatus)
	assert.Equal(t, "SUSPENDED", *resp.BanStatus)
}
