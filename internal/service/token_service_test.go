package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/events"
	"github.com/spec-kit/token-manager/internal/validation"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

type tokenServiceFixture struct {
	repo       *mockTokenRepo
	prober     *mockProber
	fetcher    *mockFetcher
	dispatcher events.Dispatcher
	svc        *TokenService
}

func newTokenServiceFixture() *tokenServiceFixture {
	f := &tokenServiceFixture{
		repo:       new(mockTokenRepo),
		prober:     new(mockProber),
		fetcher:    new(mockFetcher),
		dispatcher: events.NewInMemoryDispatcher(),
	}
	f.svc = NewTokenService(TokenDependencies{
		TokenRepo:  f.repo,
		Prober:     f.prober,
		Fetcher:    f.fetcher,
		Dispatcher: f.dispatcher,
		Logger:     zap.NewNop(),
	})
	return f
}

func sampleToken(id string) *domain.Token {
	return &domain.Token{
		ID:          id,
		TenantURL:   "https://tenant.example.com/",
		AccessToken: "secret-" + id,
		PortalURL:   "https://portal.example.com/?token=p-" + id,
	}
}

func TestValidatePersistsExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		probe   validation.ProbeResult
		message string
	}{
		{"active", validation.ProbeResult{Status: domain.BanStatusActive, Valid: true, HTTPStatus: 200}, validation.MessageStatusNormal},
		{"suspended", validation.ProbeResult{Status: domain.BanStatusSuspended, HTTPStatus: 200}, validation.MessageAccountBanned},
		{"invalid token", validation.ProbeResult{Status: domain.BanStatusInvalidToken, HTTPStatus: 401}, validation.MessageTokenInvalid},
		{"rate limited", validation.ProbeResult{Status: domain.BanStatusRateLimited, HTTPStatus: 429}, validation.MessageStatusAbnormal},
		{"timeout", validation.ProbeResult{Status: domain.BanStatusServerError, Err: errors.New("deadline")}, validation.MessageStatusAbnormal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTokenServiceFixture()
			token := sampleToken("t1")
			f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)
			f.prober.On("Probe", mock.Anything, token).Return(tc.probe)
			f.repo.On("UpdateStatus", mock.Anything, "t1", tc.probe.Status).Return(nil)

			result, err := f.svc.Validate(context.Background(), "t1")

			require.NoError(t, err)
			assert.Equal(t, tc.probe.Valid, result.IsValid)
			assert.Equal(t, tc.message, result.Message)
			require.NotNil(t, result.Token.BanStatus)
			assert.Equal(t, tc.probe.Status, *result.Token.BanStatus)
			f.repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
			f.repo.AssertNotCalled(t, "UpdatePortalInfo", mock.Anything, mock.Anything, mock.Anything)
			f.prober.AssertNumberOfCalls(t, "Probe", 1)
		})
	}
}

func TestValidateMissingTokenDoesNotProbe(t *testing.T) {
	f := newTokenServiceFixture()
	f.repo.On("GetByID", mock.Anything, "nope").Return(nil, pgx.ErrNoRows)

	_, err := f.svc.Validate(context.Background(), "nope")

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestValidateSurfacesPersistenceFaults(t *testing.T) {
	f := newTokenServiceFixture()
	token := sampleToken("t1")
	f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)
	f.prober.On("Probe", mock.Anything, token).Return(validation.ProbeResult{Status: domain.BanStatusActive, Valid: true})
	f.repo.On("UpdateStatus", mock.Anything, "t1", domain.BanStatusActive).Return(errors.New("connection reset"))

	_, err := f.svc.Validate(context.Background(), "t1")
	assert.ErrorContains(t, err, "connection reset")
}

func TestValidatePublishesOnlyOnStatusChange(t *testing.T) {
	f := newTokenServiceFixture()
	var published []events.TokenStatusChangedPayload
	f.dispatcher.Subscribe(events.EventTokenStatusChanged, func(_ context.Context, e events.Event) error {
		published = append(published, e.Payload.(events.TokenStatusChangedPayload))
		return nil
	})

	unchanged := sampleToken("same")
	unchanged.BanStatus = statusPtr(domain.BanStatusActive)
	changed := sampleToken("changed")
	changed.BanStatus = statusPtr(domain.BanStatusActive)

	f.repo.On("GetByID", mock.Anything, "same").Return(unchanged, nil)
	f.repo.On("GetByID", mock.Anything, "changed").Return(changed, nil)
	f.prober.On("Probe", mock.Anything, unchanged).Return(validation.ProbeResult{Status: domain.BanStatusActive, Valid: true})
	f.prober.On("Probe", mock.Anything, changed).Return(validation.ProbeResult{Status: domain.BanStatusSuspended})
	f.repo.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Validate(context.Background(), "same")
	require.NoError(t, err)
	_, err = f.svc.Validate(context.Background(), "changed")
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, domain.BanStatusActive, *published[0].OldStatus)
	assert.Equal(t, domain.BanStatusSuspended, published[0].NewStatus)
	assert.Equal(t, validation.MessageAccountBanned, published[0].Message)
}

func TestRefreshPortalInfoStoresErrorSnapshot(t *testing.T) {
	f := newTokenServiceFixture()
	token := sampleToken("t1")
	blob := &domain.PortalInfo{Status: domain.PortalStatusError, Error: validation.ErrLedgerSummaryFailed, LastUpdated: "2026-01-01T00:00:00Z"}
	f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)
	f.fetcher.On("Fetch", mock.Anything, token).Return(blob)
	f.repo.On("UpdatePortalInfo", mock.Anything, "t1", blob).Return(nil)

	refreshed, err := f.svc.RefreshPortalInfo(context.Background(), "t1")

	require.NoError(t, err)
	assert.Same(t, blob, refreshed.PortalInfo)
	f.repo.AssertNumberOfCalls(t, "UpdatePortalInfo", 1)
	f.repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

type panickyProber struct {
	panicOn string
}

func (p panickyProber) Probe(_ context.Context, token *domain.Token) validation.ProbeResult {
	if token.ID == p.panicOn {
		panic("decoder exploded")
	}
	return validation.ProbeResult{Status: domain.BanStatusActive, Valid: true, HTTPStatus: 200}
}

func TestBatchValidateIsolatesFaults(t *testing.T) {
	repo := new(mockTokenRepo)
	svc := NewTokenService(TokenDependencies{
		TokenRepo: repo,
		Prober:    panickyProber{panicOn: "t2"},
		Fetcher:   new(mockFetcher),
	})

	ids := []string{"t1", "t2", "t3", "t4"}
	for _, id := range ids {
		repo.On("GetByID", mock.Anything, id).Return(sampleToken(id), nil)
	}
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.BanStatusActive).Return(nil)

	report, err := svc.BatchValidate(context.Background(), ids)

	require.NoError(t, err)
	require.Len(t, report.Results, len(ids))
	errored := 0
	for i, item := range report.Results {
		assert.Equal(t, ids[i], item.TokenID)
		if item.Error {
			errored++
			assert.Equal(t, "t2", item.TokenID)
			assert.Contains(t, item.Message, "decoder exploded")
			continue
		}
		assert.True(t, item.IsValid)
		assert.Equal(t, validation.MessageStatusNormal, item.Message)
	}
	assert.Equal(t, 1, errored)
	assert.Equal(t, 3, report.SuccessCount)
	assert.Equal(t, 1, report.FailedCount)
	repo.AssertNumberOfCalls(t, "UpdateStatus", 3)
}

func TestBatchValidateReportsMissingTokens(t *testing.T) {
	f := newTokenServiceFixture()
	present := sampleToken("t1")
	f.repo.On("GetByID", mock.Anything, "t1").Return(present, nil)
	f.repo.On("GetByID", mock.Anything, "gone").Return(nil, pgx.ErrNoRows)
	f.prober.On("Probe", mock.Anything, present).Return(validation.ProbeResult{Status: domain.BanStatusForbidden, HTTPStatus: 403})
	f.repo.On("UpdateStatus", mock.Anything, "t1", domain.BanStatusForbidden).Return(nil)

	report, err := f.svc.BatchValidate(context.Background(), []string{"gone", "t1"})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Error)
	assert.Contains(t, report.Results[0].Message, "token not found")
	assert.False(t, report.Results[1].Error)
	assert.False(t, report.Results[1].IsValid)
	assert.Equal(t, validation.MessageAccountBanned, report.Results[1].Message)
	assert.Equal(t, 0, report.SuccessCount)
	assert.Equal(t, 2, report.FailedCount)
}

func TestBatchValidateWithoutIDsCoversAllTokens(t *testing.T) {
	f := newTokenServiceFixture()
	all := []domain.Token{*sampleToken("a"), *sampleToken("b")}
	f.repo.On("ListAll", mock.Anything).Return(all, nil)
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(validation.ProbeResult{Status: domain.BanStatusActive, Valid: true})
	f.repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.BanStatusActive).Return(nil)

	report, err := f.svc.BatchValidate(context.Background(), nil)

	require.NoError(t, err)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.SuccessCount)
	f.repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestBatchRefresh(t *testing.T) {
	f := newTokenServiceFixture()
	all := []domain.Token{*sampleToken("a"), *sampleToken("b"), *sampleToken("c")}
	f.repo.On("ListAll", mock.Anything).Return(all, nil)

	ok := &domain.PortalInfo{Status: domain.PortalStatusActive, CreditsBalance: 50}
	failed := &domain.PortalInfo{Status: domain.PortalStatusError, Error: validation.ErrCustomerLookupFailed}
	f.fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(t *domain.Token) bool { return t.ID == "a" })).Return(ok)
	f.fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(t *domain.Token) bool { return t.ID == "b" })).Return(failed)
	f.fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(t *domain.Token) bool { return t.ID == "c" })).Return(ok)
	f.repo.On("UpdatePortalInfo", mock.Anything, "a", ok).Return(nil)
	f.repo.On("UpdatePortalInfo", mock.Anything, "b", failed).Return(nil)
	f.repo.On("UpdatePortalInfo", mock.Anything, "c", ok).Return(errors.New("write failed"))

	report, err := f.svc.BatchRefresh(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].Succeeded)
	assert.Equal(t, 50, report.Results[0].CreditsBalance)
	assert.False(t, report.Results[1].Succeeded)
	assert.Equal(t, validation.ErrCustomerLookupFailed, report.Results[1].Error)
	assert.False(t, report.Results[2].Succeeded)
	assert.Equal(t, "write failed", report.Results[2].Error)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 2, report.FailedCount)
}

func TestCreateRejectsBadURLs(t *testing.T) {
	f := newTokenServiceFixture()

	_, err := f.svc.Create(context.Background(), TokenCreateInput{TenantURL: "ftp://tenant", AccessToken: "x"})
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Contains(t, de.Details, "tenant_url")

	_, err = f.svc.Create(context.Background(), TokenCreateInput{TenantURL: "https://", AccessToken: "x"})
	require.Error(t, err)

	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpdateIsPartial(t *testing.T) {
	f := newTokenServiceFixture()
	token := sampleToken("t1")
	token.EmailNote = strPtr("ops@example.com")
	f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)
	f.repo.On("Update", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.svc.Update(context.Background(), "t1", TokenUpdateInput{MaxUsage: intPtr(10)})

	require.NoError(t, err)
	assert.Equal(t, "https://tenant.example.com/", updated.TenantURL)
	assert.Equal(t, "ops@example.com", *updated.EmailNote)
	assert.Equal(t, 10, *updated.MaxUsage)
}

func TestUpdateClearsMaxUsage(t *testing.T) {
	f := newTokenServiceFixture()
	token := sampleToken("t1")
	token.MaxUsage = intPtr(5)
	f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)
	f.repo.On("Update", mock.Anything, mock.MatchedBy(func(tok *domain.Token) bool {
		return tok.MaxUsage == nil
	})).Return(nil)

	updated, err := f.svc.Update(context.Background(), "t1", TokenUpdateInput{ClearMaxUsage: true})

	require.NoError(t, err)
	assert.Nil(t, updated.MaxUsage)
	assert.False(t, updated.IsExhausted())
	f.repo.AssertExpectations(t)
}

func TestUpdateRejectsClearWithNewMaxUsage(t *testing.T) {
	f := newTokenServiceFixture()

	_, err := f.svc.Update(context.Background(), "t1", TokenUpdateInput{MaxUsage: intPtr(3), ClearMaxUsage: true})

	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Contains(t, de.Details, "clear_max_usage")
	f.repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestImportReportsPerItem(t *testing.T) {
	f := newTokenServiceFixture()
	f.repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Token).ID = "new-id"
	}).Return(nil)

	report := f.svc.Import(context.Background(), []ExportedToken{
		{TenantURL: "https://t.example.com/", AccessToken: "a", PortalURL: "https://p.example.com/?token=x", EmailNote: strPtr("one")},
		{TenantURL: "not a url", AccessToken: "b"},
		{TenantURL: "https://t.example.com/", AccessToken: "c"},
	})

	require.Len(t, report.Results, 3)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "new-id", report.Results[0].TokenID)
	assert.False(t, report.Results[1].Success)
	assert.Equal(t, 1, report.Results[1].Index)
	assert.NotEmpty(t, report.Results[1].Error)
	f.repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestExport(t *testing.T) {
	f := newTokenServiceFixture()
	t1 := sampleToken("t1")
	t1.EmailNote = strPtr("note")
	f.repo.On("ListByIDs", mock.Anything, []string{"t1"}).Return([]domain.Token{*t1}, nil)
	f.repo.On("ListByIDs", mock.Anything, []string{"missing"}).Return([]domain.Token{}, nil)

	out, err := f.svc.Export(context.Background(), []string{"t1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ExportedToken{TenantURL: t1.TenantURL, AccessToken: t1.AccessToken, PortalURL: t1.PortalURL, EmailNote: t1.EmailNote}, out[0])

	_, err = f.svc.Export(context.Background(), []string{"missing"})
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestBatchDelete(t *testing.T) {
	f := newTokenServiceFixture()
	f.repo.On("Delete", mock.Anything, "t1").Return(nil)
	f.repo.On("Delete", mock.Anything, "t2").Return(pgx.ErrNoRows)
	f.repo.On("Delete", mock.Anything, "t3").Return(errors.New("locked"))

	report := f.svc.BatchDelete(context.Background(), []string{"t1", "t2", "t3"})

	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 2, report.FailedCount)
	assert.Equal(t, []string{"token t2 not found", "delete token t3: locked"}, report.Errors)
}

func TestIncrementUsagePublishesExhaustion(t *testing.T) {
	f := newTokenServiceFixture()
	var exhausted []string
	f.dispatcher.Subscribe(events.EventTokenUsageExhausted, func(_ context.Context, e events.Event) error {
		exhausted = append(exhausted, e.TokenID)
		return nil
	})

	token := sampleToken("t1")
	token.UsageCount = 3
	token.MaxUsage = intPtr(3)
	f.repo.On("IncrementUsage", mock.Anything, "t1").Return(3, nil)
	f.repo.On("GetByID", mock.Anything, "t1").Return(token, nil)

	got, err := f.svc.IncrementUsage(context.Background(), "t1")

	require.NoError(t, err)
	assert.True(t, got.IsExhausted())
	assert.Equal(t, "EXHAUSTED", got.StatusDisplay())
	assert.Equal(t, []string{"t1"}, exhausted)
}

func TestListClampsPaging(t *testing.T) {
	f := newTokenServiceFixture()
	f.repo.On("List", mock.Anything, 100, 0).Return([]domain.Token{*sampleToken("a")}, nil)
	f.repo.On("Count", mock.Anything).Return(1, nil)

	page, err := f.svc.List(context.Background(), -5, 5000)

	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Skip)
}
