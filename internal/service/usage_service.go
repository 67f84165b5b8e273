package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// accountMutation edits a freshly loaded account in place and reports whether it
// changed. Returning false skips the write.
type accountMutation func(account *model.Account, now time.Time) (bool, error)

// accountUpdater serializes read-modify-write cycles on a single account through
// compare-and-swap saves.
type accountUpdater struct {
	accounts AccountRepositoryInterface
	retry    RetryConfig
	now      func() time.Time
}

func (u *accountUpdater) update(ctx context.Context, accountID string, fn accountMutation) (*model.Account, error) {
	var result *model.Account
	err := withConflictRetry(ctx, u.retry, func() error {
		account, err := u.accounts.GetByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		if account == nil {
			return ErrAccountNotFound
		}

		now := u.now()
		changed, err := fn(account, now)
		if err != nil {
			return err
		}
		if changed {
			account.UpdatedAt = now.UTC()
			if err := u.accounts.Save(ctx, account); err != nil {
				return err
			}
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UsageService tracks per-account QR generation and API call counters.
type UsageService struct {
	updater *accountUpdater
}

// NewUsageService creates a new UsageService backed by the given account repository.
func NewUsageService(accounts AccountRepositoryInterface, retry RetryConfig) *UsageService {
	return &UsageService{
		updater: &accountUpdater{accounts: accounts, retry: retry, now: time.Now},
	}
}

// RolloverIfNeeded resets the daily counters when the UTC day changed since the last
// reset. The account is only written when a reset happened.
func (s *UsageService) RolloverIfNeeded(ctx context.Context, accountID string) (*model.Account, error) {
	return s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		usage, reset := model.RolloverUsage(a.Usage, now)
		if !reset {
			return false, nil
		}
		a.Usage = usage
		log.Debug().Str("account_id", a.ID).Msg("daily usage reset")
		return true, nil
	})
}

// IncrementQR adds count generations to the account. It does not enforce limits; callers
// check the entitlement first.
func (s *UsageService) IncrementQR(ctx context.Context, accountID string, count int64) (*model.Account, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	return s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		usage, _ := model.RolloverUsage(a.Usage, now)
		a.Usage = usage.AddQR(count)
		return true, nil
	})
}

// ConsumeQR adds count generations only when they still fit in the plan's daily limit.
// The check and the increment happen in the same compare-and-swap write, so concurrent
// callers cannot push the counter past the limit. A denial is a *LimitError.
func (s *UsageService) ConsumeQR(ctx context.Context, accountID string, count int64) (*model.Account, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	return s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		usage, _ := model.RolloverUsage(a.Usage, now)
		limit := model.LimitsFor(a.Subscription.Plan).Daily
		if usage.QRGeneratedToday+count > limit {
			return false, &LimitError{
				Resource:  ResourceQRDaily,
				Current:   usage.QRGeneratedToday,
				Limit:     limit,
				Requested: count,
				Remaining: max(0, limit-usage.QRGeneratedToday),
			}
		}
		a.Usage = usage.AddQR(count)
		return true, nil
	})
}

// IncrementAPICalls adds count API calls to the account.
func (s *UsageService) IncrementAPICalls(ctx context.Context, accountID string, count int64) (*model.Account, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	return s.updater.update(ctx, accountID, func(a *model.Account, now time.Time) (bool, error) {
		usage, _ := model.RolloverUsage(a.Usage, now)
		a.Usage = usage.AddAPICalls(count)
		return true, nil
	})
}
