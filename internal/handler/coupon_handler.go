package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// CouponServiceInterface defines the coupon administration operations.
type CouponServiceInterface interface {
	Create(ctx context.Context, req model.CreateCouponRequest, createdBy string) (*model.Coupon, error)
	List(ctx context.Context, activeOnly bool, page, limit int) ([]model.Coupon, model.Page, error)
	Update(ctx context.Context, code string, req model.UpdateCouponRequest) (*model.Coupon, error)
	Deactivate(ctx context.Context, code string) (*model.Coupon, error)
	Stats(ctx context.Context) (model.CouponStats, error)
}

// CouponHandler handles HTTP requests for coupon administration.
type CouponHandler struct {
	service   CouponServiceInterface
	validator *validator.Validate
}

// NewCouponHandler creates a new CouponHandler with the given service and validator.
func NewCouponHandler(svc CouponServiceInterface, v *validator.Validate) *CouponHandler {
	return &CouponHandler{service: svc, validator: v}
}

// CreateCoupon handles POST /api/admin/coupons requests to create a new coupon.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	admin := middleware.AccountFrom(c)

	var req model.CreateCouponRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	coupon, err := h.service.Create(c.Context(), req, admin.ID)
	if err != nil {
		return respondError(c, err, "failed to create coupon", "coupon_code", req.Code)
	}

	log.Info().
		Str("coupon_code", coupon.Code).
		Str("account_id", admin.ID).
		Msg("coupon created")

	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// ListCoupons handles GET /api/admin/coupons?page=&limit=&active=.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	coupons, page, err := h.service.List(c.Context(), c.QueryBool("active", false), c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err, "failed to list coupons")
	}
	return c.JSON(fiber.Map{"coupons": coupons, "pagination": page})
}

// UpdateCoupon handles PUT /api/admin/coupons/:code.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	admin := middleware.AccountFrom(c)
	code := c.Params("code")

	var req model.UpdateCouponRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	coupon, err := h.service.Update(c.Context(), code, req)
	if err != nil {
		return respondError(c, err, "failed to update coupon", "coupon_code", code)
	}

	log.Info().
		Str("coupon_code", coupon.Code).
		Str("account_id", admin.ID).
		Msg("coupon updated")

	return c.JSON(coupon)
}

// DeactivateCoupon handles POST /api/admin/coupons/:code/deactivate.
func (h *CouponHandler) DeactivateCoupon(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request: code is required",
		})
	}

	coupon, err := h.service.Deactivate(c.Context(), code)
	if err != nil {
		return respondError(c, err, "failed to deactivate coupon", "coupon_code", code)
	}
	return c.JSON(coupon)
}

// CouponStats handles GET /api/admin/coupons/stats.
func (h *CouponHandler) CouponStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return respondError(c, err, "failed to load coupon stats")
	}
	return c.JSON(stats)
}
