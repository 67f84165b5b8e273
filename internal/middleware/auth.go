// Package middleware holds the fiber handlers that authenticate callers and attach the
// resolved account to the request.
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

const accountKey = "account"

// APIKeyHeader carries the API key on /api/v1 requests.
const APIKeyHeader = "X-API-Key"

// AccountResolver looks accounts up for the authentication middleware.
type AccountResolver interface {
	ResolveOrCreate(ctx context.Context, externalID string, claims model.ProfileClaims) (*model.Account, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error)
}

// SubscriptionChecker decides whether an account's subscription admits it.
type SubscriptionChecker interface {
	RequireActiveSubscription(account *model.Account, minimum model.Plan) error
}

// Claims is the identity provider token payload.
type Claims struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	GivenName  string `json:"given_name"`
	LastName   string `json:"last_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	jwt.RegisteredClaims
}

// Profile maps the token claims onto account profile fields.
func (c Claims) Profile() model.ProfileClaims {
	return model.ProfileClaims{
		Email:     c.Email,
		FirstName: firstNonEmpty(c.FirstName, c.GivenName),
		LastName:  firstNonEmpty(c.LastName, c.FamilyName),
		Avatar:    c.Picture,
	}
}

// BearerConfig configures bearer token verification.
type BearerConfig struct {
	Secret []byte
	Issuer string
}

// RequireBearer verifies an HS256 bearer token and resolves the account it names,
// creating it on first sight.
func RequireBearer(cfg BearerConfig, accounts AccountResolver) fiber.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "access token required"})
		}

		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return cfg.Secret, nil
		})
		if err != nil || claims.Subject == "" {
			log.Debug().Err(err).Msg("bearer token rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication failed"})
		}

		account, err := accounts.ResolveOrCreate(c.UserContext(), claims.Subject, claims.Profile())
		if err != nil {
			log.Error().Err(err).Str("subject", claims.Subject).Msg("failed to resolve account")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
		if !account.IsActive {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication failed"})
		}

		c.Locals(accountKey, account)
		return c.Next()
	}
}

// RequireAPIKey authenticates by API key, taken from the X-API-Key header or the
// api_key query parameter. The account's subscription must be active.
func RequireAPIKey(accounts AccountResolver, subs SubscriptionChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(APIKeyHeader)
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "API key required"})
		}

		account, err := accounts.GetByAPIKey(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, service.ErrAccountNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
			}
			log.Error().Err(err).Msg("failed to look up API key")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
		if !account.IsActive {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
		}

		if err := subs.RequireActiveSubscription(account, model.PlanFree); err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "subscription inactive"})
		}

		c.Locals(accountKey, account)
		return c.Next()
	}
}

// RequireRole admits accounts holding one of roles. It must run after an
// authentication middleware.
func RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account := AccountFrom(c)
		if account == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}
		for _, r := range roles {
			if account.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
	}
}

// RequirePlan admits accounts whose active subscription ranks at least minimum.
func RequirePlan(subs SubscriptionChecker, minimum model.Plan) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account := AccountFrom(c)
		if account == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}

		err := subs.RequireActiveSubscription(account, minimum)
		if err == nil {
			return c.Next()
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
		log.Error().Err(err).Str("account_id", account.ID).Msg("failed to check subscription")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

// AccountFrom returns the account attached by an authentication middleware, or nil.
func AccountFrom(c *fiber.Ctx) *model.Account {
	account, _ := c.Locals(accountKey).(*model.Account)
	return account
}

// WithAccount attaches account to the request. Used by tests and chained middleware.
func WithAccount(c *fiber.Ctx, account *model.Account) {
	c.Locals(accountKey, account)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
