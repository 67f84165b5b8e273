package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

const defaultUserUsageLimit int64 = 1

// CouponService handles coupon evaluation, redemption and administration.
type CouponService struct {
	coupons CouponRepositoryInterface
	retry   RetryConfig
	now     func() time.Time
}

// NewCouponService creates a new CouponService.
func NewCouponService(coupons CouponRepositoryInterface, retry RetryConfig) *CouponService {
	return &CouponService{
		coupons: coupons,
		retry:   retry,
		now:     time.Now,
	}
}

// Create validates req and stores a new coupon. The code is stored upper-case.
func (s *CouponService) Create(ctx context.Context, req model.CreateCouponRequest, createdBy string) (*model.Coupon, error) {
	if !model.ValidCouponCode(req.Code) {
		return nil, ErrInvalidCouponCode
	}
	if req.Value == nil {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidCoupon)
	}

	now := s.now().UTC()
	coupon := model.Coupon{
		ID:             uuid.NewString(),
		Code:           model.NormalizeCouponCode(req.Code),
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		Type:           model.CouponType(req.Type),
		Value:          *req.Value,
		MaxDiscount:    req.MaxDiscount,
		MinAmount:      req.MinAmount,
		UsageLimit:     req.UsageLimit,
		UserUsageLimit: defaultUserUsageLimit,
		ValidFrom:      req.ValidFrom.UTC(),
		ValidUntil:     req.ValidUntil.UTC(),
		IsActive:       true,
		CreatedBy:      createdBy,
		UsedBy:         []model.Redemption{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ValidFrom.IsZero() {
		coupon.ValidFrom = now
	}
	if req.UserUsageLimit != nil {
		coupon.UserUsageLimit = *req.UserUsageLimit
	}

	plans, err := applicablePlans(req.ApplicablePlans)
	if err != nil {
		return nil, err
	}
	coupon.ApplicablePlans = plans

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	if err := s.coupons.Create(ctx, &coupon); err != nil {
		return nil, err
	}

	log.Info().
		Str("coupon_code", coupon.Code).
		Str("created_by", createdBy).
		Msg("coupon created")
	return &coupon, nil
}

// Update edits a coupon's terms. The code, type and usage ledger are kept, and the
// usage limit cannot drop below the redemptions already made.
func (s *CouponService) Update(ctx context.Context, code string, req model.UpdateCouponRequest) (*model.Coupon, error) {
	if !model.ValidCouponCode(code) {
		return nil, ErrInvalidCouponCode
	}
	normalized := model.NormalizeCouponCode(code)

	var plans []model.Plan
	if req.ApplicablePlans != nil {
		var err error
		if plans, err = applicablePlans(req.ApplicablePlans); err != nil {
			return nil, err
		}
	}

	var result *model.Coupon
	err := withConflictRetry(ctx, s.retry, func() error {
		coupon, err := s.coupons.GetByCode(ctx, normalized)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if coupon == nil {
			return ErrCouponNotFound
		}

		if req.Name != nil {
			coupon.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			coupon.Description = strings.TrimSpace(*req.Description)
		}
		if req.Value != nil {
			coupon.Value = *req.Value
		}
		if req.MaxDiscount != nil {
			coupon.MaxDiscount = req.MaxDiscount
		}
		if req.MinAmount != nil {
			coupon.MinAmount = *req.MinAmount
		}
		if plans != nil {
			coupon.ApplicablePlans = plans
		}
		if req.UsageLimit != nil {
			coupon.UsageLimit = req.UsageLimit
		}
		if req.UserUsageLimit != nil {
			coupon.UserUsageLimit = *req.UserUsageLimit
		}
		if req.ValidUntil != nil {
			coupon.ValidUntil = req.ValidUntil.UTC()
		}
		if req.IsActive != nil {
			coupon.IsActive = *req.IsActive
		}

		if err := validateCoupon(*coupon); err != nil {
			return err
		}
		if coupon.UsageLimit != nil && *coupon.UsageLimit < coupon.UsedCount {
			return fmt.Errorf("%w: usage_limit is below the %d redemptions already made", ErrInvalidCoupon, coupon.UsedCount)
		}

		coupon.UpdatedAt = s.now().UTC()
		if err := s.coupons.Save(ctx, coupon); err != nil {
			return err
		}
		result = coupon
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("coupon_code", normalized).Msg("coupon updated")
	return result, nil
}

// applicablePlans lower-cases and de-duplicates plan names. An empty list means the
// default paid plans.
func applicablePlans(raw []string) ([]model.Plan, error) {
	plans := make([]model.Plan, 0, len(raw))
	for _, p := range raw {
		plan := model.Plan(strings.ToLower(strings.TrimSpace(p)))
		if !plan.Valid() {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidCoupon, p)
		}
		if !slices.Contains(plans, plan) {
			plans = append(plans, plan)
		}
	}
	if len(plans) == 0 {
		plans = model.DefaultApplicablePlans()
	}
	return plans, nil
}

func validateCoupon(c model.Coupon) error {
	switch c.Type {
	case model.CouponPercentage:
		if c.Value < 0 || c.Value > 100 {
			return fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidCoupon)
		}
	case model.CouponFixed:
		if c.Value < 0 {
			return fmt.Errorf("%w: fixed value must not be negative", ErrInvalidCoupon)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCoupon, c.Type)
	}

	if !c.ValidUntil.After(c.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrInvalidCoupon)
	}
	if c.MaxDiscount != nil && *c.MaxDiscount < 0 {
		return fmt.Errorf("%w: max_discount must not be negative", ErrInvalidCoupon)
	}
	if c.MinAmount < 0 {
		return fmt.Errorf("%w: min_amount must not be negative", ErrInvalidCoupon)
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return fmt.Errorf("%w: usage_limit must not be negative", ErrInvalidCoupon)
	}
	if c.UserUsageLimit < 0 {
		return fmt.Errorf("%w: user_usage_limit must not be negative", ErrInvalidCoupon)
	}
	return nil
}

// FindValidByCode returns the coupon matching code when accountID may still redeem it.
// A coupon that exists but is not usable reads as not found: nil, nil.
func (s *CouponService) FindValidByCode(ctx context.Context, code, accountID string) (*model.Coupon, error) {
	if !model.ValidCouponCode(code) {
		return nil, ErrInvalidCouponCode
	}

	coupon, err := s.coupons.GetByCode(ctx, model.NormalizeCouponCode(code))
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil || !coupon.CanUserUse(accountID, s.now()) {
		return nil, nil
	}
	return coupon, nil
}

// CanUserUse reports whether accountID may redeem coupon now.
func (s *CouponService) CanUserUse(coupon model.Coupon, accountID string) bool {
	return coupon.CanUserUse(accountID, s.now())
}

// CalculateDiscount returns the discount coupon grants on amount.
func (s *CouponService) CalculateDiscount(coupon model.Coupon, amount int64) int64 {
	return model.CalculateDiscount(coupon, amount)
}

// Quote prices plan with the coupon for accountID. With an empty plan only the coupon
// itself is checked.
func (s *CouponService) Quote(ctx context.Context, code, accountID string, plan model.Plan) (*model.CouponQuote, error) {
	if plan != "" && (!plan.Valid() || !plan.Details().Purchasable) {
		return nil, ErrInvalidPlan
	}

	coupon, err := s.FindValidByCode(ctx, code, accountID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	quote := &model.CouponQuote{
		Coupon:             coupon,
		Code:               coupon.Code,
		Name:               coupon.Name,
		DiscountPercentage: coupon.DiscountPercentage(),
	}
	if plan == "" {
		return quote, nil
	}

	if !coupon.AppliesTo(plan) {
		return nil, ErrCouponNotApplicable
	}
	amount := plan.Details().Price
	if amount < coupon.MinAmount {
		return nil, ErrMinimumAmountNotMet
	}

	quote.Plan = plan
	quote.Amount = amount
	quote.DiscountAmount = model.CalculateDiscount(*coupon, amount)
	quote.FinalAmount = amount - quote.DiscountAmount
	return quote, nil
}

// ApplyUsage records one redemption of code by accountID for paymentID. Re-applying for
// a payment already in the ledger is a no-op.
func (s *CouponService) ApplyUsage(ctx context.Context, code, accountID, paymentID string) (*model.Coupon, error) {
	normalized := model.NormalizeCouponCode(code)

	var result *model.Coupon
	err := withConflictRetry(ctx, s.retry, func() error {
		coupon, err := s.coupons.GetByCode(ctx, normalized)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if coupon == nil {
			return ErrCouponNotFound
		}

		if paymentID != "" && slices.ContainsFunc(coupon.UsedBy, func(r model.Redemption) bool {
			return r.PaymentID == paymentID
		}) {
			result = coupon
			return nil
		}

		now := s.now()
		if !coupon.CanUserUse(accountID, now) {
			return ErrCouponNotUsable
		}

		redemption := model.Redemption{AccountID: accountID, PaymentID: paymentID, UsedAt: now.UTC()}
		if err := s.coupons.AppendRedemption(ctx, coupon, redemption); err != nil {
			return err
		}
		result = coupon
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("coupon_code", normalized).
		Str("account_id", accountID).
		Str("payment_id", paymentID).
		Int64("used_count", result.UsedCount).
		Msg("coupon redeemed")
	return result, nil
}

// List returns a page of coupons, newest first.
func (s *CouponService) List(ctx context.Context, activeOnly bool, page, limit int) ([]model.Coupon, model.Page, error) {
	page, limit = normalizePage(page, limit)
	coupons, total, err := s.coupons.List(ctx, model.CouponFilter{
		ActiveOnly: activeOnly,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, model.Page{}, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, model.NewPage(page, limit, total), nil
}

// Deactivate switches a coupon off. Coupons are never deleted.
func (s *CouponService) Deactivate(ctx context.Context, code string) (*model.Coupon, error) {
	if !model.ValidCouponCode(code) {
		return nil, ErrInvalidCouponCode
	}
	normalized := model.NormalizeCouponCode(code)

	var result *model.Coupon
	err := withConflictRetry(ctx, s.retry, func() error {
		coupon, err := s.coupons.GetByCode(ctx, normalized)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if coupon == nil {
			return ErrCouponNotFound
		}
		if !coupon.IsActive {
			result = coupon
			return nil
		}

		coupon.IsActive = false
		coupon.UpdatedAt = s.now().UTC()
		if err := s.coupons.Save(ctx, coupon); err != nil {
			return err
		}
		result = coupon
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("coupon_code", normalized).Msg("coupon deactivated")
	return result, nil
}

// Stats summarises the coupon catalogue.
func (s *CouponService) Stats(ctx context.Context) (model.CouponStats, error) {
	stats, err := s.coupons.Stats(ctx)
	if err != nil {
		return model.CouponStats{}, fmt.Errorf("coupon stats: %w", err)
	}
	return stats, nil
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
