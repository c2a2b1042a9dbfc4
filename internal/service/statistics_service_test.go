package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/token-manager/internal/domain"
)

func withPortal(status *domain.BanStatus, credits int, plan domain.PlanType) domain.Token {
	info := &domain.PortalInfo{Status: domain.PortalStatusActive, CreditsBalance: credits}
	if plan != "" {
		info.SubscriptionInfo = &domain.SubscriptionInfo{PlanType: plan}
	}
	return domain.Token{BanStatus: status, PortalInfo: info}
}

func TestSummarize(t *testing.T) {
	tokens := []domain.Token{
		withPortal(nil, 100, ""),
		withPortal(statusPtr(domain.BanStatusActive), 50, ""),
		withPortal(statusPtr(domain.BanStatusRateLimited), 25, ""),
		withPortal(statusPtr(domain.BanStatusActive), 0, domain.PlanTypeUnlimited),
		withPortal(statusPtr(domain.BanStatusActive), 0, domain.PlanTypeLimited),
		withPortal(statusPtr(domain.BanStatusSuspended), 999, ""),
		withPortal(statusPtr(domain.BanStatusInvalidToken), 999, domain.PlanTypeUnlimited),
		withPortal(statusPtr(domain.BanStatusExpired), 999, ""),
		{BanStatus: statusPtr(domain.BanStatusInvalid)},
		{},
	}

	stats := Summarize(tokens)

	assert.Equal(t, TokenStatistics{
		TotalTokens:      10,
		TotalCredits:     175,
		AvailableCredits: 175,
		UnlimitedTokens:  1,
		ExpiredTokens:    1,
		ValidTokens:      6,
	}, stats)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, TokenStatistics{}, Summarize(nil))
}

func TestComputeLoadsAllTokens(t *testing.T) {
	repo := new(mockTokenRepo)
	repo.On("ListAll", mock.Anything).Return([]domain.Token{withPortal(nil, 7, "")}, nil).Once()
	repo.On("ListAll", mock.Anything).Return(nil, errors.New("db down")).Once()

	svc := NewStatisticsService(repo)
	stats, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalCredits)

	_, err = svc.Compute(context.Background())
	assert.Error(t, err)
}
