package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/validation"
)

type mockTokenRepo struct {
	mock.Mock
}

func (m *mockTokenRepo) Create(ctx context.Context, token *domain.Token) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockTokenRepo) Update(ctx context.Context, token *domain.Token) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockTokenRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockTokenRepo) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*domain.Token); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Token, error) {
	args := m.Called(ctx, ids)
	if t, ok := args.Get(0).([]domain.Token); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenRepo) List(ctx context.Context, limit, offset int) ([]domain.Token, error) {
	args := m.Called(ctx, limit, offset)
	if t, ok := args.Get(0).([]domain.Token); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenRepo) ListAll(ctx context.Context) ([]domain.Token, error) {
	args := m.Called(ctx)
	if t, ok := args.Get(0).([]domain.Token); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockTokenRepo) UpdateStatus(ctx context.Context, id string, status domain.BanStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockTokenRepo) UpdatePortalInfo(ctx context.Context, id string, info *domain.PortalInfo) error {
	return m.Called(ctx, id, info).Error(0)
}

func (m *mockTokenRepo) IncrementUsage(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, token *domain.Token) validation.ProbeResult {
	return m.Called(ctx, token).Get(0).(validation.ProbeResult)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, token *domain.Token) *domain.PortalInfo {
	return m.Called(ctx, token).Get(0).(*domain.PortalInfo)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

func statusPtr(s domain.BanStatus) *domain.BanStatus { return &s }
