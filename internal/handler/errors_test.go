package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.ErrInvalidCount, fiber.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("%w: malformed webhook payload", service.ErrInvalidRequest), fiber.StatusBadRequest},
		{"limit", &service.LimitError{Resource: service.ResourceQRDaily}, fiber.StatusTooManyRequests},
		{"plan tier", &service.SubscriptionError{Reason: service.ErrUpgradeRequired}, fiber.StatusForbidden},
		{"coupon denial", service.ErrCouponNotUsable, fiber.StatusForbidden},
		{"not found", service.ErrAccountNotFound, fiber.StatusNotFound},
		{"qr code not found", service.ErrQRCodeNotFound, fiber.StatusNotFound},
		{"conflict", fmt.Errorf("save: %w", service.ErrConflict), fiber.StatusConflict},
		{"unknown", errors.New("disk full"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondError(c, tt.err, "test failure", "key", "value")
			})

			status, body := send(t, app, jsonRequest(http.MethodGet, "/", ""))
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRespondError_SubscriptionFigures(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, &service.SubscriptionError{
			Reason:       service.ErrSubscriptionInactive,
			CurrentPlan:  model.PlanPro,
			RequiredPlan: model.PlanPro,
			Status:       model.StatusExpired,
		}, "test failure")
	})

	status, body := send(t, app, jsonRequest(http.MethodGet, "/", ""))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "subscription inactive", body["error"])
	assert.Equal(t, "expired", body["status"])
}

func TestRespondError_InternalHidesDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, errors.New("pq: password authentication failed"), "test failure")
	})

	_, body := send(t, app, jsonRequest(http.MethodGet, "/", ""))
	assert.Equal(t, "internal server error", body["error"])
}

func TestFormatValidationError_NonValidatorError(t *testing.T) {
	assert.Equal(t, "invalid request", formatValidationError(errors.New("other")))
}
