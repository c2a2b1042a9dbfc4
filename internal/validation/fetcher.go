package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/domain"
)

// DefaultBillingPortalURL is the billing service queried for balances.
const DefaultBillingPortalURL = "https://portal.withorb.com"

const subscriptionInfoPath = "subscription-info"

var outOfMessagesMarker = []byte("out of user messages")

// Failure points reported in PortalInfo.Error.
const (
	ErrMissingPortalToken    = "missing portal token"
	ErrCustomerLookupFailed  = "customer lookup failed"
	ErrCustomerMissingFields = "customer info missing required fields"
	ErrLedgerSummaryFailed   = "ledger summary failed"
)

type customerFromLinkResponse struct {
	Customer struct {
		ID                 string `json:"id"`
		LedgerPricingUnits []struct {
			ID string `json:"id"`
		} `json:"ledger_pricing_units"`
	} `json:"customer"`
}

type ledgerSummaryResponse struct {
	CreditsBalance balanceString `json:"credits_balance"`
	CreditBlocks   []struct {
		IsActive   *bool   `json:"is_active"`
		ExpiryDate *string `json:"expiry_date"`
	} `json:"credit_blocks"`
}

// balanceString accepts the balance as a JSON string, a JSON number or null.
type balanceString string

func (b *balanceString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*b = balanceString(s)
		return nil
	}
	*b = balanceString(trimmed)
	return nil
}

// BalanceFetcher resolves a token's billing balance through the portal API.
type BalanceFetcher struct {
	client  HTTPDoer
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// NewBalanceFetcher builds a fetcher against baseURL (DefaultBillingPortalURL when empty).
func NewBalanceFetcher(client HTTPDoer, baseURL string, logger *zap.Logger) *BalanceFetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBillingPortalURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceFetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Fetch runs customer lookup, ledger summary and, for empty balances, the
// unlimited-plan check. It never fails: every failure short-circuits into an
// error-shaped PortalInfo naming the failure point.
func (f *BalanceFetcher) Fetch(ctx context.Context, token *domain.Token) (info *domain.PortalInfo) {
	if token == nil {
		return f.failure(ErrMissingPortalToken)
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("portal fetch panicked", zap.String("token_id", token.ID), zap.Any("panic", r))
			info = f.failure(fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	portalToken, ok := PortalToken(token.PortalURL)
	if !ok {
		return f.failure(ErrMissingPortalToken)
	}

	customer, err := f.customerFromLink(ctx, portalToken)
	if err != nil {
		f.logger.Warn("customer lookup failed", zap.String("token_id", token.ID), zap.Error(err))
		return f.failure(ErrCustomerLookupFailed)
	}

	customerID := customer.Customer.ID
	if customerID == "" || len(customer.Customer.LedgerPricingUnits) == 0 || customer.Customer.LedgerPricingUnits[0].ID == "" {
		f.logger.Warn("customer info missing required fields", zap.String("token_id", token.ID))
		return f.failure(ErrCustomerMissingFields)
	}
	pricingUnitID := customer.Customer.LedgerPricingUnits[0].ID

	ledger, err := f.ledgerSummary(ctx, customerID, pricingUnitID, portalToken)
	if err != nil {
		f.logger.Warn("ledger summary failed", zap.String("token_id", token.ID), zap.Error(err))
		return f.failure(ErrLedgerSummaryFailed)
	}

	info = &domain.PortalInfo{
		CreditsBalance: ParseCreditsBalance(string(ledger.CreditsBalance)),
		Status:         domain.PortalStatusActive,
		LastUpdated:    f.timestamp(),
	}
	if len(ledger.CreditBlocks) > 0 {
		block := ledger.CreditBlocks[0]
		if block.IsActive != nil {
			info.IsActive = *block.IsActive
		}
		if block.ExpiryDate != nil {
			info.ExpiryDate = *block.ExpiryDate
		}
	}

	if info.CreditsBalance == 0 {
		info.SubscriptionInfo = &domain.SubscriptionInfo{PlanType: f.subscriptionPlan(ctx, token)}
	}
	return info
}

func (f *BalanceFetcher) customerFromLink(ctx context.Context, portalToken string) (*customerFromLinkResponse, error) {
	endpoint := f.baseURL + "/api/v1/customer_from_link?" + url.Values{"token": {portalToken}}.Encode()
	var out customerFromLinkResponse
	if err := f.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *BalanceFetcher) ledgerSummary(ctx context.Context, customerID, pricingUnitID, portalToken string) (*ledgerSummaryResponse, error) {
	query := url.Values{
		"pricing_unit_id": {pricingUnitID},
		"token":           {portalToken},
	}
	endpoint := fmt.Sprintf("%s/api/v1/customers/%s/ledger_summary?%s", f.baseURL, url.PathEscape(customerID), query.Encode())
	var out ledgerSummaryResponse
	if err := f.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *BalanceFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := newPortalRequest(ctx, endpoint)
	if err != nil {
		return err
	}
	statusCode, body, err := doRequest(f.client, req)
	if err != nil {
		return err
	}
	if statusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", statusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// subscriptionPlan treats anything other than a clean 200 as limited. A failed
// check and a confirmed limited plan are indistinguishable to callers.
func (f *BalanceFetcher) subscriptionPlan(ctx context.Context, token *domain.Token) domain.PlanType {
	req, err := newTenantRequest(ctx, tenantEndpoint(token.TenantURL, subscriptionInfoPath), token.AccessToken)
	if err != nil {
		f.logger.Warn("subscription check failed", zap.String("token_id", token.ID), zap.Error(err))
		return domain.PlanTypeLimited
	}
	statusCode, body, err := doRequest(f.client, req)
	if err != nil {
		f.logger.Warn("subscription check failed", zap.String("token_id", token.ID), zap.Error(err))
		return domain.PlanTypeLimited
	}
	if statusCode != http.StatusOK {
		f.logger.Warn("subscription check rejected", zap.String("token_id", token.ID), zap.Int("http_status", statusCode))
		return domain.PlanTypeLimited
	}
	if bytes.Contains(body, outOfMessagesMarker) {
		return domain.PlanTypeLimited
	}
	return domain.PlanTypeUnlimited
}

func (f *BalanceFetcher) failure(message string) *domain.PortalInfo {
	return &domain.PortalInfo{
		Status:      domain.PortalStatusError,
		Error:       message,
		LastUpdated: f.timestamp(),
	}
}

func (f *BalanceFetcher) timestamp() string {
	return f.now().UTC().Format(time.RFC3339)
}

// PortalToken extracts the "token" query parameter of a portal URL.
func PortalToken(portalURL string) (string, bool) {
	if strings.TrimSpace(portalURL) == "" {
		return "", false
	}
	parsed, err := url.Parse(portalURL)
	if err != nil {
		return "", false
	}
	token := parsed.Query().Get("token")
	return token, token != ""
}

var maxCredits = decimal.NewFromInt(math.MaxInt)

// ParseCreditsBalance truncates a numeric string toward zero. Unparseable and
// negative values yield zero; values beyond the int range saturate at math.MaxInt.
func ParseCreditsBalance(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	if d.Sign() < 0 {
		return 0
	}
	if d.GreaterThanOrEqual(maxCredits) {
		return math.MaxInt
	}
	return int(d.IntPart())
}
