package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// PaymentStore is a service.PaymentRepositoryInterface over the payments collection.
type PaymentStore struct {
	coll *mongo.Collection
}

// Create inserts a new payment.
// Returns service.ErrPaymentExists if the order id or transaction id is taken.
func (s *PaymentStore) Create(ctx context.Context, payment *model.Payment) error {
	if _, err := s.coll.InsertOne(ctx, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return service.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the payment does not exist.
func (s *PaymentStore) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return s.getOne(ctx, "_id", id)
}

// GetByOrderID returns nil, nil when no payment carries orderID.
func (s *PaymentStore) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	return s.getOne(ctx, "order_id", orderID)
}

// GetByTransactionID returns nil, nil when no payment carries transactionID.
func (s *PaymentStore) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	if transactionID == "" {
		return nil, nil
	}
	return s.getOne(ctx, "transaction_id", transactionID)
}

func (s *PaymentStore) getOne(ctx context.Context, field, value string) (*model.Payment, error) {
	payment, err := findOne[model.Payment](ctx, s.coll, bson.M{field: value})
	if err != nil {
		return nil, fmt.Errorf("get payment by %s: %w", field, err)
	}
	return payment, nil
}

// Save writes the payment outcome when the version still matches.
func (s *PaymentStore) Save(ctx context.Context, payment *model.Payment) error {
	res, err := s.coll.UpdateOne(ctx, versionFilter(payment.ID, payment.Version), paymentOutcome(payment))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return service.ErrPaymentExists
		}
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}
	if res.MatchedCount == 0 {
		return service.ErrConflict
	}
	payment.Version++
	return nil
}

// List returns payments newest first and the total matching count. An empty
// AccountID lists every account.
func (s *PaymentStore) List(ctx context.Context, filter model.PaymentFilter) ([]model.Payment, int64, error) {
	payments, total, err := findPage[model.Payment](ctx, s.coll, paymentQuery(filter), filter.Offset, filter.Limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

func paymentQuery(filter model.PaymentFilter) bson.M {
	query := bson.M{}
	if filter.AccountID != "" {
		query["account_id"] = filter.AccountID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Plan != "" {
		query["plan"] = filter.Plan
	}
	return query
}

// paymentOutcome leaves transaction_id unset until the gateway has reported one.
func paymentOutcome(p *model.Payment) bson.M {
	set := bson.M{
		"status":       p.Status,
		"updated_at":   p.UpdatedAt,
		"completed_at": p.CompletedAt,
	}
	if p.TransactionID != "" {
		set["transaction_id"] = p.TransactionID
	}
	return bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
}
