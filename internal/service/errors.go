package service

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// Validation errors. No state is mutated when these are returned.
var (
	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCount is returned for non-positive increments or negative quota requests
	ErrInvalidCount = errors.New("invalid count")

	// ErrInvalidPlan is returned for unknown or non-purchasable plans
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidCouponCode is returned when a coupon code is malformed
	ErrInvalidCouponCode = errors.New("invalid coupon code format")

	// ErrInvalidCoupon is returned when coupon fields break a coupon invariant
	ErrInvalidCoupon = errors.New("invalid coupon definition")

	// ErrInvalidSignature is returned when a gateway signature does not verify
	ErrInvalidSignature = errors.New("invalid payment signature")
)

// Entitlement denials. These are expected outcomes, not faults.
var (
	// ErrLimitExceeded is matched by *LimitError
	ErrLimitExceeded = errors.New("usage limit exceeded")

	// ErrUpgradeRequired is returned when the account plan ranks below the required plan
	ErrUpgradeRequired = errors.New("subscription upgrade required")

	// ErrSubscriptionInactive is returned when the subscription is not active
	ErrSubscriptionInactive = errors.New("subscription inactive")

	// ErrCouponNotUsable is returned when a coupon cannot be redeemed by the account
	ErrCouponNotUsable = errors.New("coupon cannot be used by this user")

	// ErrCouponNotApplicable is returned when a coupon does not cover the chosen plan
	ErrCouponNotApplicable = errors.New("coupon not applicable for this plan")

	// ErrMinimumAmountNotMet is returned when the order is below the coupon minimum
	ErrMinimumAmountNotMet = errors.New("minimum order amount not met")

	// ErrNoActiveSubscription is returned when cancelling a subscription that is not active
	ErrNoActiveSubscription = errors.New("no active subscription to cancel")

	// ErrPaymentNotPending is returned when a payment can no longer be confirmed
	ErrPaymentNotPending = errors.New("payment is not pending")
)

// Not found and conflict errors.
var (
	// ErrAccountNotFound is returned when an account cannot be found
	ErrAccountNotFound = errors.New("account not found")

	// ErrCouponNotFound is returned when a coupon cannot be found
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrPaymentNotFound is returned when a payment cannot be found
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrQRCodeNotFound is returned when a QR code does not exist, is deleted or
	// belongs to another account
	ErrQRCodeNotFound = errors.New("qr code not found")

	// ErrCouponExists is returned when attempting to create a coupon that already exists
	ErrCouponExists = errors.New("coupon already exists")

	// ErrPaymentExists is returned when an order id or transaction id is already recorded
	ErrPaymentExists = errors.New("payment already recorded")

	// ErrAccountExists is returned when an account with the same external id already exists
	ErrAccountExists = errors.New("account already exists")

	// ErrConflict is returned by stores when a compare-and-swap save lost a race.
	// Services retry it; when retries run out the caller may retry the request.
	ErrConflict = errors.New("concurrent update conflict")
)

// LimitError is a quota denial carrying the figures a caller needs to explain it.
type LimitError struct {
	Resource  string
	Current   int64
	Limit     int64
	Requested int64
	Remaining int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: current %d, limit %d, requested %d, remaining %d",
		e.Resource, e.Current, e.Limit, e.Requested, e.Remaining)
}

// Is matches ErrLimitExceeded.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// SubscriptionError is a plan-tier or status denial.
type SubscriptionError struct {
	Reason       error
	CurrentPlan  model.Plan
	RequiredPlan model.Plan
	Status       model.SubscriptionStatus
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("%s: plan %s, required %s, status %s",
		e.Reason, e.CurrentPlan, e.RequiredPlan, e.Status)
}

// Unwrap exposes the sentinel reason.
func (e *SubscriptionError) Unwrap() error {
	return e.Reason
}
