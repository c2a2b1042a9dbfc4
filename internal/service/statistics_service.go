package service

import (
	"context"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/repository"
)

// TokenStatistics summarizes the token pool.
type TokenStatistics struct {
	TotalTokens      int `json:"total_tokens"`
	TotalCredits     int `json:"total_credits"`
	AvailableCredits int `json:"available_credits"`
	UnlimitedTokens  int `json:"unlimited_tokens"`
	ExpiredTokens    int `json:"expired_tokens"`
	ValidTokens      int `json:"valid_tokens"`
}

// StatisticsService reduces the token pool into aggregate counts.
type StatisticsService struct {
	tokens repository.TokenRepository
}

// NewStatisticsService constructs the service.
func NewStatisticsService(tokens repository.TokenRepository) *StatisticsService {
	return &StatisticsService{tokens: tokens}
}

// Compute loads every token and summarizes it.
func (s *StatisticsService) Compute(ctx context.Context) (*TokenStatistics, error) {
	tokens, err := s.tokens.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	stats := Summarize(tokens)
	return &stats, nil
}

// Summarize counts tokens whose status does not exclude them as valid and adds
// their positive balances to the credit totals. Unlimited plans are counted
// separately and contribute no credits.
func Summarize(tokens []domain.Token) TokenStatistics {
	stats := TokenStatistics{TotalTokens: len(tokens)}
	for i := range tokens {
		token := &tokens[i]

		excluded := token.BanStatus != nil && token.BanStatus.IsExcludedFromCredits()
		if !excluded {
			stats.ValidTokens++
		}
		if token.BanStatus != nil && *token.BanStatus == domain.BanStatusExpired {
			stats.ExpiredTokens++
		}
		if excluded || token.PortalInfo == nil {
			continue
		}

		if token.PortalInfo.IsUnlimited() {
			stats.UnlimitedTokens++
			continue
		}
		if token.PortalInfo.CreditsBalance > 0 {
			stats.TotalCredits += token.PortalInfo.CreditsBalance
			stats.AvailableCredits += token.PortalInfo.CreditsBalance
		}
	}
	return stats
}
