package service

import (
	"context"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// Resources reported on limit denials.
const (
	ResourceQRDaily  = "qr_daily"
	ResourceAPICalls = "api_calls"
)

// Decision is the outcome of an entitlement check. A denied Decision still carries the
// figures needed to explain it.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Resource  string `json:"resource"`
	Current   int64  `json:"current"`
	Limit     int64  `json:"limit"`
	Requested int64  `json:"requested"`
	Remaining int64  `json:"remaining"`
}

// Err returns nil for an allowed decision and a *LimitError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{
		Resource:  d.Resource,
		Current:   d.Current,
		Limit:     d.Limit,
		Requested: d.Requested,
		Remaining: d.Remaining,
	}
}

// EntitlementService decides whether metered operations are permitted.
type EntitlementService struct {
	usage *UsageService
	now   func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(usage *UsageService) *EntitlementService {
	return &EntitlementService{usage: usage, now: time.Now}
}

// CanGenerate reports whether requested more QR codes fit in today's quota. Batches are
// judged whole: a request that would overflow the limit is denied outright.
func (s *EntitlementService) CanGenerate(ctx context.Context, accountID string, requested int64) (Decision, error) {
	if requested < 0 {
		return Decision{}, ErrInvalidCount
	}

	account, err := s.usage.RolloverIfNeeded(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}

	limit := model.LimitsFor(account.Subscription.Plan).Daily
	current := account.Usage.QRGeneratedToday
	return Decision{
		Allowed:   current+requested <= limit,
		Resource:  ResourceQRDaily,
		Current:   current,
		Limit:     limit,
		Requested: requested,
		Remaining: max(0, limit-current),
	}, nil
}

// CanCallAPI reports whether the account is still below maxCalls API calls today.
func (s *EntitlementService) CanCallAPI(ctx context.Context, accountID string, maxCalls int64) (Decision, error) {
	if maxCalls < 0 {
		return Decision{}, ErrInvalidCount
	}

	account, err := s.usage.RolloverIfNeeded(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}

	current := account.Usage.APICallsToday
	return Decision{
		Allowed:   current < maxCalls,
		Resource:  ResourceAPICalls,
		Current:   current,
		Limit:     maxCalls,
		Requested: 1,
		Remaining: max(0, maxCalls-current),
	}, nil
}

// RequireActiveSubscription checks the plan tier and the subscription status
// independently: an account must rank at least minimum and be effectively active.
func (s *EntitlementService) RequireActiveSubscription(account *model.Account, minimum model.Plan) error {
	if !minimum.Valid() {
		return ErrInvalidPlan
	}

	sub := account.Subscription
	status := model.EffectiveStatus(sub, s.now())
	if sub.Plan.Ordinal() < minimum.Ordinal() {
		return &SubscriptionError{
			Reason:       ErrUpgradeRequired,
			CurrentPlan:  sub.Plan,
			RequiredPlan: minimum,
			Status:       status,
		}
	}
	if status != model.StatusActive {
		return &SubscriptionError{
			Reason:       ErrSubscriptionInactive,
			CurrentPlan:  sub.Plan,
			RequiredPlan: minimum,
			Status:       status,
		}
	}
	return nil
}
