package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// APIKeyPrefix marks keys issued by this service.
const APIKeyPrefix = "mqr_"

const loginTouchInterval = time.Hour

// AccountService resolves identities to accounts and manages API keys.
type AccountService struct {
	accounts AccountRepositoryInterface
	updater  *accountUpdater
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts AccountRepositoryInterface, retry RetryConfig) *AccountService {
	return &AccountService{
		accounts: accounts,
		updater:  &accountUpdater{accounts: accounts, retry: retry, now: time.Now},
	}
}

// ResolveOrCreate returns the account linked to an identity provider subject, creating
// it on first sight. Concurrent first requests converge on the same account.
func (s *AccountService) ResolveOrCreate(ctx context.Context, externalID string, claims model.ProfileClaims) (*model.Account, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, ErrInvalidRequest
	}

	account, err := s.accounts.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("get account by external id: %w", err)
	}

	if account == nil {
		fresh := model.NewAccount(uuid.NewString(), externalID, claims, s.updater.now())
		err = s.accounts.Create(ctx, &fresh)
		if err == nil {
			log.Info().Str("account_id", fresh.ID).Msg("account created")
			return &fresh, nil
		}
		if !errors.Is(err, ErrAccountExists) {
			return nil, fmt.Errorf("create account: %w", err)
		}

		account, err = s.accounts.GetByExternalID(ctx, externalID)
		if err != nil {
			return nil, fmt.Errorf("get account by external id: %w", err)
		}
		if account == nil {
			return nil, ErrAccountNotFound
		}
	}

	if s.updater.now().Sub(account.LastLoginAt) < loginTouchInterval {
		return account, nil
	}

	return s.updater.update(ctx, account.ID, func(a *model.Account, now time.Time) (bool, error) {
		a.LastLoginAt = now.UTC()
		return true, nil
	})
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// GetByAPIKey returns the active account owning apiKey.
func (s *AccountService) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return nil, ErrAccountNotFound
	}

	account, err := s.accounts.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("get account by api key: %w", err)
	}
	if account == nil || !account.IsActive {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// GenerateAPIKey issues a new API key for the account, replacing any previous one.
func (s *AccountService) GenerateAPIKey(ctx context.Context, accountID string) (string, error) {
	key, err := newAPIKey()
	if err != nil {
		return "", err
	}

	_, err = s.updater.update(ctx, accountID, func(a *model.Account, _ time.Time) (bool, error) {
		a.APIKey = key
		return true, nil
	})
	if err != nil {
		return "", err
	}

	log.Info().Str("account_id", accountID).Msg("api key generated")
	return key, nil
}

// List returns accounts newest first for administration.
func (s *AccountService) List(ctx context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, model.Page, error) {
	if filter.Plan != "" && !filter.Plan.Valid() {
		return nil, model.Page{}, ErrInvalidPlan
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.Page{}, ErrInvalidRequest
	}

	page, limit = normalizePage(page, limit)
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Offset, filter.Limit = (page-1)*limit, limit

	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, model.Page{}, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, model.NewPage(page, limit, total), nil
}

// SetRole changes an account's authorization level.
func (s *AccountService) SetRole(ctx context.Context, accountID string, role model.Role) (*model.Account, error) {
	if !role.Valid() {
		return nil, ErrInvalidRequest
	}

	account, err := s.updater.update(ctx, accountID, func(a *model.Account, _ time.Time) (bool, error) {
		if a.Role == role {
			return false, nil
		}
		a.Role = role
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID).Str("role", string(role)).Msg("account role changed")
	return account, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}
