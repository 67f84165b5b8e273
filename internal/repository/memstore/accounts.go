package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// AccountStore is an in-memory service.AccountRepositoryInterface.
type AccountStore struct {
	mu         sync.RWMutex
	byID       map[string]*model.Account
	byExternal map[string]string
	byAPIKey   map[string]string
	order      []string
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*model.Account),
		byExternal: make(map[string]string),
		byAPIKey:   make(map[string]string),
	}
}

// Create stores a new account.
// Returns service.ErrAccountExists if the id, external id or API key is taken.
func (s *AccountStore) Create(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; ok {
		return service.ErrAccountExists
	}
	if _, ok := s.byExternal[account.ExternalID]; ok {
		return service.ErrAccountExists
	}
	if account.APIKey != "" {
		if _, ok := s.byAPIKey[account.APIKey]; ok {
			return service.ErrAccountExists
		}
		s.byAPIKey[account.APIKey] = account.ID
	}

	s.byID[account.ID] = cloneAccount(account)
	s.byExternal[account.ExternalID] = account.ID
	s.order = append(s.order, account.ID)
	return nil
}

// GetByID returns nil, nil when the account does not exist.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id), nil
}

// GetByExternalID returns nil, nil when no account carries externalID.
func (s *AccountStore) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byExternal[externalID]), nil
}

// GetByAPIKey returns nil, nil when no account carries apiKey.
func (s *AccountStore) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	if apiKey == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byAPIKey[apiKey]), nil
}

func (s *AccountStore) get(id string) *model.Account {
	a, ok := s.byID[id]
	if !ok {
		return nil
	}
	return cloneAccount(a)
}

// Save replaces the stored account if its version still matches account.Version.
func (s *AccountStore) Save(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok || current.Version != account.Version {
		return service.ErrConflict
	}
	if account.APIKey != current.APIKey && account.APIKey != "" {
		if owner, taken := s.byAPIKey[account.APIKey]; taken && owner != account.ID {
			return service.ErrAccountExists
		}
	}

	if current.APIKey != account.APIKey {
		delete(s.byAPIKey, current.APIKey)
		if account.APIKey != "" {
			s.byAPIKey[account.APIKey] = account.ID
		}
	}

	account.Version++
	stored := cloneAccount(account)
	stored.ExternalID = current.ExternalID
	s.byID[account.ID] = stored
	return nil
}

// List returns accounts newest first and the total matching count.
func (s *AccountStore) List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	search := strings.ToLower(filter.Search)

	s.mu.RLock()
	matched := []model.Account{}
	for _, id := range s.order {
		a := s.byID[id]
		if filter.Plan != "" && a.Subscription.Plan != filter.Plan {
			continue
		}
		if filter.Status != "" && a.Subscription.Status != filter.Status {
			continue
		}
		if search != "" && !containsFold(search, a.Email, a.FirstName, a.LastName) {
			continue
		}
		matched = append(matched, *cloneAccount(a))
	}
	s.mu.RUnlock()

	newestFirst(matched, func(a model.Account) time.Time { return a.CreatedAt })
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}

// containsFold reports whether any field contains the lower-cased needle.
func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Ping always succeeds.
func (s *AccountStore) Ping(ctx context.Context) error {
	return nil
}
