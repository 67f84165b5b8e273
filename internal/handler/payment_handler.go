package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// WebhookSignatureHeader carries the gateway's HMAC over the raw webhook body.
const WebhookSignatureHeader = "X-Webhook-Signature"

// PaymentServiceInterface defines the payment operations the handlers need.
type PaymentServiceInterface interface {
	ListPlans() []model.PlanDetails
	CreateOrder(ctx context.Context, accountID string, req model.CreateOrderRequest) (*model.OrderResponse, error)
	Confirm(ctx context.Context, accountID string, req model.VerifyPaymentRequest) (*model.ConfirmResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	History(ctx context.Context, accountID string, status model.PaymentStatus, page, limit int) ([]model.Payment, model.Page, error)
}

// CouponQuoter previews a coupon against a plan.
type CouponQuoter interface {
	Quote(ctx context.Context, code, accountID string, plan model.Plan) (*model.CouponQuote, error)
}

// PaymentHandler handles plan purchase, confirmation and subscription management.
type PaymentHandler struct {
	payments      PaymentServiceInterface
	coupons       CouponQuoter
	subscriptions SubscriptionServiceInterface
	validator     *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(
	payments PaymentServiceInterface,
	coupons CouponQuoter,
	subscriptions SubscriptionServiceInterface,
	v *validator.Validate,
) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		coupons:       coupons,
		subscriptions: subscriptions,
		validator:     v,
	}
}

// Plans handles GET /api/payments/plans.
func (h *PaymentHandler) Plans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": h.payments.ListPlans()})
}

// ValidateCoupon handles POST /api/payments/validate-coupon.
func (h *PaymentHandler) ValidateCoupon(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	var req model.ValidateCouponRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	quote, err := h.coupons.Quote(c.Context(), req.CouponCode, account.ID, model.Plan(req.Plan))
	if err != nil {
		return respondError(c, err, "failed to quote coupon",
			"account_id", account.ID, "coupon_code", req.CouponCode)
	}
	return c.JSON(quote)
}

// CreateOrder handles POST /api/payments/create-order.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	var req model.CreateOrderRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	order, err := h.payments.CreateOrder(c.Context(), account.ID, req)
	if err != nil {
		return respondError(c, err, "failed to create order",
			"account_id", account.ID, "plan", req.Plan, "coupon_code", req.CouponCode)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// Verify handles POST /api/payments/verify.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	var req model.VerifyPaymentRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	result, err := h.payments.Confirm(c.Context(), account.ID, req)
	if err != nil {
		return respondError(c, err, "failed to confirm payment",
			"account_id", account.ID, "payment_id", req.PaymentID)
	}
	return c.JSON(result)
}

// Webhook handles POST /api/payments/webhook. The raw body is verified before it is
// parsed.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get(WebhookSignatureHeader)
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing signature"})
	}

	// fasthttp reuses the body buffer after the handler returns
	body := append([]byte(nil), c.Body()...)
	if err := h.payments.HandleWebhook(c.Context(), body, signature); err != nil {
		return respondError(c, err, "failed to handle webhook")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// History handles GET /api/payments/history?page=&limit=&status=.
func (h *PaymentHandler) History(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	status := model.PaymentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: status is invalid"})
	}

	payments, page, err := h.payments.History(c.Context(), account.ID, status, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err, "failed to list payments", "account_id", account.ID)
	}
	return c.JSON(fiber.Map{"payments": payments, "pagination": page})
}

// Subscription handles GET /api/payments/subscription.
func (h *PaymentHandler) Subscription(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	status, err := h.subscriptions.Status(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to load subscription", "account_id", account.ID)
	}
	return c.JSON(status)
}

// CancelSubscription handles POST /api/payments/cancel-subscription.
func (h *PaymentHandler) CancelSubscription(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	updated, err := h.subscriptions.Cancel(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to cancel subscription", "account_id", account.ID)
	}

	log.Info().Str("account_id", account.ID).Msg("subscription cancelled by user")
	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}
