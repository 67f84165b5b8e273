package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// SubscriptionService drives plan transitions on accounts.
type SubscriptionService struct {
	updater *accountUpdater
	usage   *UsageService
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(accounts AccountRepositoryInterface, usage *UsageService, retry RetryConfig) *SubscriptionService {
	return &SubscriptionService{
		updater: &accountUpdater{accounts: accounts, retry: retry, now: time.Now},
		usage:   usage,
	}
}

// Activate puts the account on plan for durationDays starting now, replacing any
// previous subscription.
func (s *SubscriptionService) Activate(ctx context.Context, accountID string, plan model.Plan, durationDays int) (*model.Account, error) {
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	if durationDays < 1 {
		return nil, ErrInvalidRequest
	}

	account, err := s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		a.Subscription = model.ActivateSubscription(plan, durationDays, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", accountID).
		Str("plan", string(plan)).
		Int("duration_days", durationDays).
		Msg("subscription activated")
	return account, nil
}

// Cancel ends the account's active subscription now. The plan is left unchanged.
// Returns ErrNoActiveSubscription when there is nothing to cancel.
func (s *SubscriptionService) Cancel(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		sub, ok := model.CancelSubscription(a.Subscription, now)
		if !ok {
			return false, ErrNoActiveSubscription
		}
		a.Subscription = sub
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID).Msg("subscription cancelled")
	return account, nil
}

// CancelFundedBy cancels the account's subscription only while its current term was
// funded by paymentID. A refund for a payment whose term was already replaced leaves the
// newer term alone and returns the account unchanged.
func (s *SubscriptionService) CancelFundedBy(ctx context.Context, accountID, paymentID string) (*model.Account, error) {
	cancelled := false
	account, err := s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		if paymentID == "" || a.Subscription.PaymentID != paymentID {
			return false, nil
		}
		sub, ok := model.CancelSubscription(a.Subscription, now)
		if !ok {
			return false, ErrNoActiveSubscription
		}
		a.Subscription = sub
		cancelled = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if !cancelled {
		log.Info().
			Str("account_id", accountID).
			Str("payment_id", paymentID).
			Str("funded_by", account.Subscription.PaymentID).
			Msg("payment no longer funds the subscription, nothing cancelled")
		return account, nil
	}
	log.Info().Str("account_id", accountID).Str("payment_id", paymentID).Msg("subscription cancelled")
	return account, nil
}

// Override applies an administrative change to the subscription. A plan change starts a
// new unfunded term at now; status and end date are written as given.
func (s *SubscriptionService) Override(ctx context.Context, accountID string, req model.UpdateSubscriptionRequest) (*model.Account, error) {
	plan, status := model.Plan(req.Plan), model.SubscriptionStatus(req.Status)
	if plan == "" && status == "" && req.EndDate == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	if plan != "" && !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
	}

	account, err := s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		if plan != "" && plan != a.Subscription.Plan {
			a.Subscription.Plan = plan
			a.Subscription.StartDate = now.UTC()
			a.Subscription.PaymentID = ""
		}
		if status != "" {
			a.Subscription.Status = status
		}
		if req.EndDate != nil {
			end := req.EndDate.UTC()
			a.Subscription.EndDate = &end
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", accountID).
		Str("plan", string(account.Subscription.Plan)).
		Str("status", string(account.Subscription.Status)).
		Msg("subscription overridden")
	return account, nil
}

// Status returns the subscription, rolled-over usage and plan limits of an account.
func (s *SubscriptionService) Status(ctx context.Context, accountID string) (*model.SubscriptionStatusResponse, error) {
	account, err := s.usage.RolloverIfNeeded(ctx, accountID)
	if err != nil {
		return nil, err
	}

	limits := model.LimitsFor(account.Subscription.Plan)
	return &model.SubscriptionStatusResponse{
		Subscription:     account.Subscription,
		EffectiveStatus:  model.EffectiveStatus(account.Subscription, s.updater.now()),
		Usage:            account.Usage,
		Limits:           limits,
		CanGenerateQR:    account.Usage.QRGeneratedToday < limits.Daily,
		RemainingQRToday: max(0, limits.Daily-account.Usage.QRGeneratedToday),
		HasAPIKey:        account.APIKey != "",
	}, nil
}
