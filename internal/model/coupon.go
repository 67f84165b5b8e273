package model

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

var couponCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CouponType selects how a coupon's value is interpreted.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// CouponState is derived on read, never stored.
type CouponState string

const (
	CouponStateInactive  CouponState = "inactive"
	CouponStateScheduled CouponState = "scheduled"
	CouponStateActive    CouponState = "active"
	CouponStateExpired   CouponState = "expired"
	CouponStateExhausted CouponState = "exhausted"
)

// Redemption is one entry of a coupon's usage ledger.
type Redemption struct {
	AccountID string    `json:"account_id" bson:"account_id"`
	PaymentID string    `json:"payment_id" bson:"payment_id"`
	UsedAt    time.Time `json:"used_at" bson:"used_at"`
}

// Coupon is a discount code. Monetary fields are in minor currency units; Value is a
// percentage for percentage coupons and a minor-unit amount for fixed ones.
// A nil UsageLimit means unlimited, a nil MaxDiscount means uncapped.
type Coupon struct {
	ID              string       `json:"id" bson:"_id"`
	Code            string       `json:"code" bson:"code"`
	Name            string       `json:"name" bson:"name"`
	Description     string       `json:"description,omitempty" bson:"description,omitempty"`
	Type            CouponType   `json:"type" bson:"type"`
	Value           int64        `json:"value" bson:"value"`
	MaxDiscount     *int64       `json:"max_discount" bson:"max_discount"`
	MinAmount       int64        `json:"min_amount" bson:"min_amount"`
	ApplicablePlans []Plan       `json:"applicable_plans" bson:"applicable_plans"`
	UsageLimit      *int64       `json:"usage_limit" bson:"usage_limit"`
	UsedCount       int64        `json:"used_count" bson:"used_count"`
	UserUsageLimit  int64        `json:"user_usage_limit" bson:"user_usage_limit"`
	ValidFrom       time.Time    `json:"valid_from" bson:"valid_from"`
	ValidUntil      time.Time    `json:"valid_until" bson:"valid_until"`
	IsActive        bool         `json:"is_active" bson:"is_active"`
	CreatedBy       string       `json:"created_by" bson:"created_by"`
	UsedBy          []Redemption `json:"used_by" bson:"used_by"`
	Version         int64        `json:"-" bson:"version"`
	CreatedAt       time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" bson:"updated_at"`
}

// NormalizeCouponCode returns the canonical stored form of a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCouponCode reports whether code is well formed once trimmed.
func ValidCouponCode(code string) bool {
	return couponCodePattern.MatchString(strings.TrimSpace(code))
}

// DefaultApplicablePlans is used when a coupon names no plans.
func DefaultApplicablePlans() []Plan {
	return []Plan{PlanPro, PlanEnterprise}
}

// State derives the coupon's lifecycle state at now.
func (c Coupon) State(now time.Time) CouponState {
	switch {
	case !c.IsActive:
		return CouponStateInactive
	case now.Before(c.ValidFrom):
		return CouponStateScheduled
	case now.After(c.ValidUntil):
		return CouponStateExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return CouponStateExhausted
	default:
		return CouponStateActive
	}
}

// IsValid reports whether the coupon can be redeemed by anyone at now.
func (c Coupon) IsValid(now time.Time) bool {
	return c.State(now) == CouponStateActive
}

// RedemptionsBy counts ledger entries belonging to accountID.
func (c Coupon) RedemptionsBy(accountID string) int64 {
	var n int64
	for _, r := range c.UsedBy {
		if r.AccountID == accountID {
			n++
		}
	}
	return n
}

// CanUserUse reports whether accountID may redeem the coupon at now.
func (c Coupon) CanUserUse(accountID string, now time.Time) bool {
	if !c.IsValid(now) {
		return false
	}
	return c.RedemptionsBy(accountID) < c.UserUsageLimit
}

// AppliesTo reports whether the coupon can be used for plan.
func (c Coupon) AppliesTo(plan Plan) bool {
	return slices.Contains(c.ApplicablePlans, plan)
}

// RemainingUsage returns how many redemptions are left, or -1 when unlimited.
func (c Coupon) RemainingUsage() int64 {
	if c.UsageLimit == nil {
		return -1
	}
	return max(0, *c.UsageLimit-c.UsedCount)
}

// CalculateDiscount computes the discount for amount. Percentage discounts round down
// to the minor unit and respect MaxDiscount. The result never exceeds amount.
func CalculateDiscount(c Coupon, amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	var discount int64
	switch c.Type {
	case CouponPercentage:
		// Split on the hundreds so amount*Value cannot overflow int64.
		discount = amount/100*c.Value + amount%100*c.Value/100
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	case CouponFixed:
		discount = c.Value
	}

	return max(0, min(discount, amount))
}

// DiscountPercentage is the nominal percentage recorded on payments.
func (c Coupon) DiscountPercentage() int64 {
	if c.Type == CouponPercentage {
		return c.Value
	}
	return 0
}
