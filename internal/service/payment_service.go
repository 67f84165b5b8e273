package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// Webhook events acted upon.
const (
	EventPaymentCaptured       = "payment.captured"
	EventPaymentFailed         = "payment.failed"
	EventRefundProcessed       = "refund.processed"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// PaymentConfig holds payment settings.
type PaymentConfig struct {
	Currency       string
	IdempotencyTTL time.Duration
}

// PaymentService creates gateway orders and turns confirmed payments into subscriptions.
type PaymentService struct {
	payments      PaymentRepositoryInterface
	updater       *accountUpdater
	coupons       *CouponService
	subscriptions *SubscriptionService
	gateway       Gateway
	keys          IdempotencyStore
	cfg           PaymentConfig
	retry         RetryConfig
	now           func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	payments PaymentRepositoryInterface,
	accounts AccountRepositoryInterface,
	coupons *CouponService,
	subscriptions *SubscriptionService,
	gateway Gateway,
	keys IdempotencyStore,
	cfg PaymentConfig,
	retry RetryConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	return &PaymentService{
		payments:      payments,
		updater:       &accountUpdater{accounts: accounts, retry: retry, now: time.Now},
		coupons:       coupons,
		subscriptions: subscriptions,
		gateway:       gateway,
		keys:          keys,
		cfg:           cfg,
		retry:         retry,
		now:           time.Now,
	}
}

// ListPlans returns the plan table ordered by tier.
func (s *PaymentService) ListPlans() []model.PlanDetails {
	return model.OrderedPlans()
}

// CreateOrder opens a gateway order for plan, applying the coupon when one is given.
func (s *PaymentService) CreateOrder(ctx context.Context, accountID string, req model.CreateOrderRequest) (*model.OrderResponse, error) {
	plan := model.Plan(req.Plan)
	if !plan.Valid() || !plan.Details().Purchasable {
		return nil, ErrInvalidPlan
	}

	account, err := s.updater.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	details := plan.Details()
	amount := details.Price
	var discount model.Discount
	if req.CouponCode != "" {
		quote, err := s.coupons.Quote(ctx, req.CouponCode, accountID, plan)
		if err != nil {
			return nil, err
		}
		amount = quote.FinalAmount
		discount = model.Discount{
			CouponCode:         quote.Code,
			DiscountAmount:     quote.DiscountAmount,
			DiscountPercentage: quote.DiscountPercentage,
		}
	}

	paymentID := uuid.NewString()
	orderID, err := s.gateway.CreateOrder(ctx, amount, s.cfg.Currency, paymentID)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	now := s.now().UTC()
	payment := model.Payment{
		ID:             paymentID,
		AccountID:      accountID,
		OrderID:        orderID,
		Amount:         amount,
		OriginalAmount: details.Price,
		Currency:       s.cfg.Currency,
		Plan:           plan,
		DurationDays:   details.DurationDays,
		Status:         model.PaymentPending,
		Discount:       discount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.payments.Create(ctx, &payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	log.Info().
		Str("account_id", accountID).
		Str("payment_id", paymentID).
		Str("order_id", orderID).
		Str("plan", string(plan)).
		Int64("amount", amount).
		Str("coupon_code", discount.CouponCode).
		Msg("payment order created")

	return &model.OrderResponse{
		PaymentID: paymentID,
		OrderID:   orderID,
		Amount:    amount,
		Currency:  s.cfg.Currency,
		Key:       s.gateway.KeyID(),
		Plan:      plan,
		Discount:  discount,
	}, nil
}

// Confirm completes a payment the client reports as paid. Confirming the same
// transaction again returns the recorded outcome with Duplicate set.
func (s *PaymentService) Confirm(ctx context.Context, accountID string, req model.VerifyPaymentRequest) (*model.ConfirmResult, error) {
	if !s.gateway.VerifyPayment(req.OrderID, req.TransactionID, req.Signature) {
		log.Warn().
			Str("account_id", accountID).
			Str("order_id", req.OrderID).
			Msg("payment signature rejected")
		return nil, ErrInvalidSignature
	}

	payment, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil || payment.AccountID != accountID {
		return nil, ErrPaymentNotFound
	}
	if payment.OrderID != req.OrderID {
		return nil, ErrInvalidRequest
	}

	return s.complete(ctx, payment, req.TransactionID)
}

// complete moves payment to completed under transactionID and grants the plan.
func (s *PaymentService) complete(ctx context.Context, payment *model.Payment, transactionID string) (*model.ConfirmResult, error) {
	if payment.Status == model.PaymentCompleted {
		if payment.TransactionID != transactionID {
			return nil, ErrPaymentNotPending
		}
		return s.finalize(ctx, payment, true)
	}
	if payment.Status != model.PaymentPending {
		return nil, ErrPaymentNotPending
	}

	key := "payment:" + transactionID
	acquired, err := s.keys.Acquire(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if !acquired {
		existing, err := s.payments.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, fmt.Errorf("get payment by transaction id: %w", err)
		}
		if existing != nil && existing.Status == model.PaymentCompleted {
			return s.finalize(ctx, existing, true)
		}
		return nil, ErrConflict
	}

	if err := s.redeemCoupon(ctx, payment); err != nil {
		if relErr := s.keys.Release(ctx, key); relErr != nil {
			log.Error().Err(relErr).Str("key", key).Msg("failed to release idempotency key")
		}
		return nil, err
	}

	completed, duplicate, err := s.markCompleted(ctx, payment.ID, transactionID)
	if err != nil {
		if relErr := s.keys.Release(ctx, key); relErr != nil {
			log.Error().Err(relErr).Str("key", key).Msg("failed to release idempotency key")
		}
		return nil, err
	}
	return s.finalize(ctx, completed, duplicate)
}

// redeemCoupon records the order's coupon against the payment before it completes. A
// coupon that ran out or expired since the order was quoted fails the payment with
// ErrCouponNotUsable. Redeeming again for the same payment is a no-op.
func (s *PaymentService) redeemCoupon(ctx context.Context, payment *model.Payment) error {
	code := payment.Discount.CouponCode
	if code == "" {
		return nil
	}

	_, err := s.coupons.ApplyUsage(ctx, code, payment.AccountID, payment.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCouponNotUsable) && !errors.Is(err, ErrCouponNotFound) {
		return fmt.Errorf("redeem coupon: %w", err)
	}

	log.Error().
		Err(err).
		Str("coupon_code", code).
		Str("account_id", payment.AccountID).
		Str("payment_id", payment.ID).
		Msg("coupon no longer usable at confirmation, failing payment")
	if _, tErr := s.transition(ctx, payment.ID, model.PaymentFailed, model.PaymentPending); tErr != nil {
		return fmt.Errorf("fail payment: %w", tErr)
	}
	return ErrCouponNotUsable
}

func (s *PaymentService) markCompleted(ctx context.Context, paymentID, transactionID string) (*model.Payment, bool, error) {
	var (
		result    *model.Payment
		duplicate bool
	)
	err := withConflictRetry(ctx, s.retry, func() error {
		payment, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if payment == nil {
			return ErrPaymentNotFound
		}
		if payment.Status == model.PaymentCompleted && payment.TransactionID == transactionID {
			result, duplicate = payment, true
			return nil
		}
		if payment.Status != model.PaymentPending {
			return ErrPaymentNotPending
		}

		now := s.now().UTC()
		payment.Status = model.PaymentCompleted
		payment.TransactionID = transactionID
		payment.CompletedAt = &now
		payment.UpdatedAt = now
		if err := s.payments.Save(ctx, payment); err != nil {
			return err
		}
		result = payment
		return nil
	})
	return result, duplicate, err
}

// finalize grants the purchased plan and records payment as the term's funding
// payment. A repeated confirmation never re-grants: the plan is only activated when
// this payment has not funded the account yet and no later term has replaced it.
func (s *PaymentService) finalize(ctx context.Context, payment *model.Payment, duplicate bool) (*model.ConfirmResult, error) {
	account, err := s.updater.update(ctx, payment.AccountID, func(a *model.Account, now time.Time) (bool, error) {
		if a.Subscription.PaymentID == payment.ID {
			return false, nil
		}
		if duplicate && payment.CompletedAt != nil && !a.Subscription.StartDate.Before(*payment.CompletedAt) {
			return false, nil
		}
		days := payment.DurationDays
		if days < 1 {
			days = model.DefaultDurationDays
		}
		a.Subscription = model.ActivateSubscription(payment.Plan, days, now)
		a.Subscription.PaymentID = payment.ID
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	if !duplicate {
		log.Info().
			Str("account_id", payment.AccountID).
			Str("payment_id", payment.ID).
			Str("transaction_id", payment.TransactionID).
			Str("plan", string(payment.Plan)).
			Msg("payment completed")
	}

	return &model.ConfirmResult{
		Payment:      payment,
		Subscription: account.Subscription,
		Duplicate:    duplicate,
	}, nil
}

// HandleWebhook applies a signed gateway event. Events already processed are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhook(body, signature) {
		log.Warn().Msg("webhook signature rejected")
		return ErrInvalidSignature
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook payload", ErrInvalidRequest)
	}
	entity := event.Payload.Payment.Entity
	if event.Event == "" || entity.ID == "" {
		return fmt.Errorf("%w: webhook payload missing event or payment id", ErrInvalidRequest)
	}

	key := "webhook:" + event.Event + ":" + entity.ID
	acquired, err := s.keys.Acquire(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("acquire idempotency key: %w", err)
	}
	if !acquired {
		log.Info().Str("event", event.Event).Str("transaction_id", entity.ID).Msg("duplicate webhook ignored")
		return nil
	}

	if err := s.dispatch(ctx, event.Event, entity.ID, entity.OrderID); err != nil {
		if relErr := s.keys.Release(ctx, key); relErr != nil {
			log.Error().Err(relErr).Str("key", key).Msg("failed to release idempotency key")
		}
		return err
	}
	return nil
}

func (s *PaymentService) dispatch(ctx context.Context, event, transactionID, orderID string) error {
	switch event {
	case EventPaymentCaptured:
		payment, err := s.findForWebhook(ctx, transactionID, orderID)
		if err != nil {
			return err
		}
		_, err = s.complete(ctx, payment, transactionID)
		switch {
		case errors.Is(err, ErrPaymentNotPending):
			log.Warn().Str("payment_id", payment.ID).Str("status", string(payment.Status)).Msg("captured event for settled payment")
			return nil
		case errors.Is(err, ErrCouponNotUsable):
			return nil
		}
		return err

	case EventPaymentFailed:
		payment, err := s.findForWebhook(ctx, transactionID, orderID)
		if err != nil {
			return err
		}
		_, err = s.transition(ctx, payment.ID, model.PaymentFailed, model.PaymentPending)
		return err

	case EventRefundProcessed, EventSubscriptionCancelled:
		payment, err := s.findForWebhook(ctx, transactionID, orderID)
		if err != nil {
			return err
		}
		to := model.PaymentRefunded
		if event == EventSubscriptionCancelled {
			to = model.PaymentCancelled
		}
		if _, err := s.transition(ctx, payment.ID, to, model.PaymentCompleted, model.PaymentPending); err != nil {
			return err
		}
		if _, err := s.subscriptions.CancelFundedBy(ctx, payment.AccountID, payment.ID); err != nil && !errors.Is(err, ErrNoActiveSubscription) {
			return err
		}
		return nil

	default:
		log.Debug().Str("event", event).Msg("unhandled webhook event")
		return nil
	}
}

func (s *PaymentService) findForWebhook(ctx context.Context, transactionID, orderID string) (*model.Payment, error) {
	payment, err := s.payments.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get payment by transaction id: %w", err)
	}
	if payment == nil && orderID != "" {
		payment, err = s.payments.GetByOrderID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("get payment by order id: %w", err)
		}
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// transition moves a payment to status to when it is currently in one of from. A
// payment already in to is left alone.
func (s *PaymentService) transition(ctx context.Context, paymentID string, to model.PaymentStatus, from ...model.PaymentStatus) (*model.Payment, error) {
	var result *model.Payment
	err := withConflictRetry(ctx, s.retry, func() error {
		payment, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if payment == nil {
			return ErrPaymentNotFound
		}
		if payment.Status == to {
			result = payment
			return nil
		}

		allowed := false
		for _, st := range from {
			if payment.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrPaymentNotPending
		}

		payment.Status = to
		payment.UpdatedAt = s.now().UTC()
		if err := s.payments.Save(ctx, payment); err != nil {
			return err
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("payment_id", paymentID).Str("status", string(to)).Msg("payment status changed")
	return result, nil
}

// History returns the account's payments newest first. An empty status matches all.
func (s *PaymentService) History(ctx context.Context, accountID string, status model.PaymentStatus, page, limit int) ([]model.Payment, model.Page, error) {
	if accountID == "" {
		return nil, model.Page{}, ErrInvalidRequest
	}
	return s.List(ctx, model.PaymentFilter{AccountID: accountID, Status: status}, page, limit)
}

// List returns payments across accounts newest first. Empty filter fields match all.
func (s *PaymentService) List(ctx context.Context, filter model.PaymentFilter, page, limit int) ([]model.Payment, model.Page, error) {
	page, limit = normalizePage(page, limit)
	filter.Offset, filter.Limit = (page-1)*limit, limit
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, model.Page{}, fmt.Errorf("list payments: %w", err)
	}
	return payments, model.NewPage(page, limit, total), nil
}
