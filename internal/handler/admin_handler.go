package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// AccountDirectory defines the account administration operations.
type AccountDirectory interface {
	List(ctx context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, model.Page, error)
	SetRole(ctx context.Context, accountID string, role model.Role) (*model.Account, error)
}

// SubscriptionOverrider applies administrative subscription changes.
type SubscriptionOverrider interface {
	Override(ctx context.Context, accountID string, req model.UpdateSubscriptionRequest) (*model.Account, error)
}

// PaymentLister lists payments across accounts.
type PaymentLister interface {
	List(ctx context.Context, filter model.PaymentFilter, page, limit int) ([]model.Payment, model.Page, error)
}

// AccountDetailer assembles the administrative view of one account.
type AccountDetailer interface {
	Detail(ctx context.Context, accountID string) (*model.AccountDetail, error)
}

// AdminHandler serves account and payment administration.
type AdminHandler struct {
	accounts      AccountDirectory
	subscriptions SubscriptionOverrider
	payments      PaymentLister
	details       AccountDetailer
	validator     *validator.Validate
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	accounts AccountDirectory,
	subscriptions SubscriptionOverrider,
	payments PaymentLister,
	details AccountDetailer,
	v *validator.Validate,
) *AdminHandler {
	return &AdminHandler{
		accounts:      accounts,
		subscriptions: subscriptions,
		payments:      payments,
		details:       details,
		validator:     v,
	}
}

// ListUsers handles GET /api/admin/users?search=&plan=&status=&page=&limit=.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	filter := model.AccountFilter{
		Search: c.Query("search"),
		Plan:   model.Plan(c.Query("plan")),
		Status: model.SubscriptionStatus(c.Query("status")),
	}

	accounts, page, err := h.accounts.List(c.Context(), filter, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err, "failed to list accounts")
	}
	return c.JSON(fiber.Map{"users": accounts, "pagination": page})
}

// GetUser handles GET /api/admin/users/:id.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id := c.Params("id")

	detail, err := h.details.Detail(c.Context(), id)
	if err != nil {
		return respondError(c, err, "failed to load account", "account_id", id)
	}
	return c.JSON(detail)
}

// UpdateRole handles PUT /api/admin/users/:id/role. Admins cannot change their own role.
func (h *AdminHandler) UpdateRole(c *fiber.Ctx) error {
	admin := middleware.AccountFrom(c)
	id := c.Params("id")

	var req model.UpdateRoleRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}
	if id == admin.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request: cannot change your own role",
		})
	}

	account, err := h.accounts.SetRole(c.Context(), id, model.Role(req.Role))
	if err != nil {
		return respondError(c, err, "failed to update role", "account_id", id)
	}

	log.Info().
		Str("account_id", id).
		Str("role", req.Role).
		Str("admin_id", admin.ID).
		Msg("role updated by admin")

	return c.JSON(account)
}

// UpdateSubscription handles PUT /api/admin/users/:id/subscription.
func (h *AdminHandler) UpdateSubscription(c *fiber.Ctx) error {
	admin := middleware.AccountFrom(c)
	id := c.Params("id")

	var req model.UpdateSubscriptionRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	account, err := h.subscriptions.Override(c.Context(), id, req)
	if err != nil {
		return respondError(c, err, "failed to update subscription", "account_id", id)
	}

	log.Info().
		Str("account_id", id).
		Str("admin_id", admin.ID).
		Msg("subscription updated by admin")

	return c.JSON(account)
}

// ListPayments handles GET /api/admin/payments?status=&plan=&user_id=&page=&limit=.
func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	filter := model.PaymentFilter{
		AccountID: c.Query("user_id"),
		Status:    model.PaymentStatus(c.Query("status")),
		Plan:      model.Plan(c.Query("plan")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: status is invalid"})
	}
	if filter.Plan != "" && !filter.Plan.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: plan is invalid"})
	}

	payments, page, err := h.payments.List(c.Context(), filter, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err, "failed to list payments")
	}
	return c.JSON(fiber.Map{"payments": payments, "pagination": page})
}
