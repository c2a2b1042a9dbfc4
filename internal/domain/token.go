package domain

import "time"

// BanStatus is the classified live-usability state of a token.
type BanStatus string

const (
	BanStatusActive       BanStatus = "ACTIVE"
	BanStatusSuspended    BanStatus = "SUSPENDED"
	BanStatusInvalidToken BanStatus = "INVALID_TOKEN"
	BanStatusUnauthorized BanStatus = "UNAUTHORIZED"
	BanStatusForbidden    BanStatus = "FORBIDDEN"
	BanStatusRateLimited  BanStatus = "RATE_LIMITED"
	BanStatusServerError  BanStatus = "SERVER_ERROR"
	BanStatusUnknownError BanStatus = "UNKNOWN_ERROR"

	// Legacy values found in rows written by older releases. Never produced by the prober.
	BanStatusUsageLimit BanStatus = "USAGE_LIMIT"
	BanStatusExhausted  BanStatus = "EXHAUSTED"
	BanStatusExpired    BanStatus = "EXPIRED"
	BanStatusInvalid    BanStatus = "INVALID"
)

var accountBannedStatuses = map[BanStatus]struct{}{
	BanStatusSuspended:    {},
	BanStatusUnauthorized: {},
	BanStatusForbidden:    {},
	BanStatusUnknownError: {},
}

var creditExcludedStatuses = map[BanStatus]struct{}{
	BanStatusInvalidToken: {},
	BanStatusInvalid:      {},
	BanStatusExpired:      {},
}

// IsAccountBanned reports whether the upstream account is considered banned.
func (s BanStatus) IsAccountBanned() bool {
	_, ok := accountBannedStatuses[s]
	return ok
}

// IsExcludedFromCredits reports whether a token in this state is left out of
// validity counts and credit totals.
func (s BanStatus) IsExcludedFromCredits() bool {
	if s.IsAccountBanned() {
		return true
	}
	_, ok := creditExcludedStatuses[s]
	return ok
}

// String implements fmt.Stringer.
func (s BanStatus) String() string {
	return string(s)
}

// PlanType distinguishes unlimited subscriptions from metered ones.
type PlanType string

const (
	PlanTypeUnlimited PlanType = "unlimited"
	PlanTypeLimited   PlanType = "limited"
)

const (
	PortalStatusActive = "active"
	PortalStatusError  = "error"
)

// SubscriptionInfo is only populated when the credit balance is zero.
type SubscriptionInfo struct {
	PlanType PlanType `json:"plan_type"`
}

// PortalInfo is the cached billing-balance snapshot of a token.
type PortalInfo struct {
	CreditsBalance   int               `json:"credits_balance"`
	IsActive         bool              `json:"is_active"`
	ExpiryDate       string            `json:"expiry_date"`
	Status           string            `json:"status"`
	Error            string            `json:"error,omitempty"`
	LastUpdated      string            `json:"last_updated"`
	SubscriptionInfo *SubscriptionInfo `json:"subscription_info,omitempty"`
}

// IsUnlimited reports whether the snapshot carries an unlimited plan.
func (p *PortalInfo) IsUnlimited() bool {
	return p != nil && p.SubscriptionInfo != nil && p.SubscriptionInfo.PlanType == PlanTypeUnlimited
}

// Token is a stored third-party credential plus cached status and billing metadata.
type Token struct {
	ID          string
	TenantURL   string
	AccessToken string
	PortalURL   string
	EmailNote   *string
	BanStatus   *BanStatus
	PortalInfo  *PortalInfo
	UsageCount  int
	MaxUsage    *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExhausted reports whether the usage budget is spent. Tokens without a
// budget never exhaust.
func (t *Token) IsExhausted() bool {
	if t.MaxUsage == nil {
		return false
	}
	return t.UsageCount >= *t.MaxUsage
}

// StatusDisplay returns the ban status verbatim when set, otherwise EXHAUSTED or ACTIVE.
func (t *Token) StatusDisplay() string {
	if t.BanStatus != nil && *t.BanStatus != "" {
		return string(*t.BanStatus)
	}
	if t.IsExhausted() {
		return string(BanStatusExhausted)
	}
	return string(BanStatusActive)
}
