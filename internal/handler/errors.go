package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/render"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

var badRequestErrors = []error{
	service.ErrInvalidRequest,
	service.ErrInvalidCount,
	service.ErrInvalidPlan,
	service.ErrInvalidCouponCode,
	service.ErrInvalidCoupon,
	service.ErrInvalidSignature,
	render.ErrEmptyContent,
	render.ErrInvalidSize,
	render.ErrInvalidColor,
	render.ErrEncode,
}

var forbiddenErrors = []error{
	service.ErrUpgradeRequired,
	service.ErrSubscriptionInactive,
	service.ErrCouponNotUsable,
	service.ErrCouponNotApplicable,
	service.ErrMinimumAmountNotMet,
	service.ErrNoActiveSubscription,
}

var notFoundErrors = []error{
	service.ErrAccountNotFound,
	service.ErrCouponNotFound,
	service.ErrPaymentNotFound,
	service.ErrQRCodeNotFound,
}

var conflictErrors = []error{
	service.ErrConflict,
	service.ErrCouponExists,
	service.ErrPaymentExists,
	service.ErrAccountExists,
	service.ErrPaymentNotPending,
}

// respondError maps a service error onto the HTTP status of its category. Anything
// unrecognised is logged with the key/value pairs in kv and reported as 500.
func respondError(c *fiber.Ctx, err error, msg string, kv ...any) error {
	var limitErr *service.LimitError
	if errors.As(err, &limitErr) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":     limitMessage(limitErr.Resource),
			"resource":  limitErr.Resource,
			"current":   limitErr.Current,
			"limit":     limitErr.Limit,
			"requested": limitErr.Requested,
			"remaining": limitErr.Remaining,
		})
	}

	var subErr *service.SubscriptionError
	if errors.As(err, &subErr) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":         subErr.Reason.Error(),
			"current_plan":  subErr.CurrentPlan,
			"required_plan": subErr.RequiredPlan,
			"status":        subErr.Status,
		})
	}

	switch {
	case matchesAny(err, badRequestErrors):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case matchesAny(err, forbiddenErrors):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case matchesAny(err, notFoundErrors):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case matchesAny(err, conflictErrors):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	log.Error().Err(err).Fields(kv).Str("request_id", requestID(c)).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func limitMessage(resource string) string {
	switch resource {
	case service.ResourceQRDaily:
		return "daily QR generation limit exceeded"
	case service.ResourceAPICalls:
		return "API rate limit exceeded"
	}
	return service.ErrLimitExceeded.Error()
}

// formatValidationError converts validator errors to client messages naming the
// first offending field.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "max":
				return "invalid request: " + field + " exceeds maximum of " + fe.Param()
			case "min":
				return "invalid request: " + field + " requires at least " + fe.Param()
			case "gte":
				return "invalid request: " + field + " must be at least " + fe.Param()
			case "lte":
				return "invalid request: " + field + " must be at most " + fe.Param()
			case "oneof":
				return "invalid request: " + field + " must be one of " + fe.Param()
			case "couponcode":
				return "invalid request: " + field + " is not a valid coupon code"
			case "hexcolor":
				return "invalid request: " + field + " must be a hex colour"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// bind parses the JSON body into req and validates it, writing the 400 response
// itself. It reports whether the handler should continue.
func bind(c *fiber.Ctx, v *validator.Validate, req any) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := v.Struct(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	return true, nil
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
