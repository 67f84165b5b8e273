package mongostore

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// AccountStore is a service.AccountRepositoryInterface over the accounts collection.
type AccountStore struct {
	coll *mongo.Collection
}

// Create inserts a new account.
// Returns service.ErrAccountExists if the external id or API key is taken.
func (s *AccountStore) Create(ctx context.Context, account *model.Account) error {
	if _, err := s.coll.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return service.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the account does not exist.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return s.getOne(ctx, "_id", id)
}

// GetByExternalID returns nil, nil when no account carries externalID.
func (s *AccountStore) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return s.getOne(ctx, "external_id", externalID)
}

// GetByAPIKey returns nil, nil when no account carries apiKey.
func (s *AccountStore) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	if apiKey == "" {
		return nil, nil
	}
	return s.getOne(ctx, "api_key", apiKey)
}

func (s *AccountStore) getOne(ctx context.Context, field, value string) (*model.Account, error) {
	account, err := findOne[model.Account](ctx, s.coll, bson.M{field: value})
	if err != nil {
		return nil, fmt.Errorf("get account by %s: %w", field, err)
	}
	return account, nil
}

// Save replaces the document when its stored version still matches account.Version.
func (s *AccountStore) Save(ctx context.Context, account *model.Account) error {
	next := *account
	next.Version++

	res, err := s.coll.ReplaceOne(ctx, versionFilter(account.ID, account.Version), &next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return service.ErrAccountExists
		}
		return fmt.Errorf("replace account %s: %w", account.ID, err)
	}
	if res.MatchedCount == 0 {
		return service.ErrConflict
	}
	account.Version = next.Version
	return nil
}

// List returns accounts newest first and the total matching count.
func (s *AccountStore) List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	accounts, total, err := findPage[model.Account](ctx, s.coll, accountQuery(filter), filter.Offset, filter.Limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, total, nil
}

func accountQuery(filter model.AccountFilter) bson.M {
	query := bson.M{}
	if filter.Search != "" {
		pattern := bson.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"email": pattern},
			bson.M{"first_name": pattern},
			bson.M{"last_name": pattern},
		}
	}
	if filter.Plan != "" {
		query["subscription.plan"] = filter.Plan
	}
	if filter.Status != "" {
		query["subscription.status"] = filter.Status
	}
	return query
}

func versionFilter(id string, version int64) bson.M {
	return bson.M{"_id": id, "version": version}
}
