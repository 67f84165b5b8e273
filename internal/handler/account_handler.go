package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// AccountServiceInterface defines the account operations the handlers need.
type AccountServiceInterface interface {
	GenerateAPIKey(ctx context.Context, accountID string) (string, error)
}

// SubscriptionServiceInterface defines the subscription operations the handlers need.
type SubscriptionServiceInterface interface {
	Status(ctx context.Context, accountID string) (*model.SubscriptionStatusResponse, error)
	Cancel(ctx context.Context, accountID string) (*model.Account, error)
}

// AccountHandler serves the signed-in account's own profile.
type AccountHandler struct {
	accounts      AccountServiceInterface
	subscriptions SubscriptionServiceInterface
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountServiceInterface, subscriptions SubscriptionServiceInterface) *AccountHandler {
	return &AccountHandler{accounts: accounts, subscriptions: subscriptions}
}

// Me handles GET /api/me: the account with its rolled-over usage and limits.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	status, err := h.subscriptions.Status(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to load account status", "account_id", account.ID)
	}

	return c.JSON(fiber.Map{
		"account":      account,
		"subscription": status,
	})
}

// GenerateAPIKey handles POST /api/me/api-key. The key is shown once; any previous key
// stops working.
func (h *AccountHandler) GenerateAPIKey(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	key, err := h.accounts.GenerateAPIKey(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to generate api key", "account_id", account.ID)
	}

	log.Info().Str("account_id", account.ID).Msg("api key issued")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"api_key": key})
}
