// Package mongostore persists accounts, coupons, payments and QR codes in MongoDB.
// Writes are compare-and-swap on the document's version field.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	accountsCollection = "accounts"
	couponsCollection  = "coupons"
	paymentsCollection = "payments"
	qrCodesCollection  = "qr_codes"
)

// Store groups the collection-backed repositories of one database.
type Store struct {
	db       *mongo.Database
	Accounts *AccountStore
	Coupons  *CouponStore
	Payments *PaymentStore
	QRCodes  *QRCodeStore
}

// New wires the repositories onto db. Call EnsureIndexes once before serving traffic.
func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		Accounts: &AccountStore{coll: db.Collection(accountsCollection)},
		Coupons:  &CouponStore{coll: db.Collection(couponsCollection)},
		Payments: &PaymentStore{coll: db.Collection(paymentsCollection)},
		QRCodes:  &QRCodeStore{coll: db.Collection(qrCodesCollection)},
	}
}

// EnsureIndexes creates the unique and lookup indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for name, models := range indexModels() {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// setOnly limits a partial unique index to documents where field holds a non-empty string.
func setOnly(field string) bson.M {
	return bson.M{field: bson.M{"$gt": ""}}
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		accountsCollection: {
			{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "api_key", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(setOnly("api_key"))},
		},
		couponsCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(setOnly("transaction_id"))},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		qrCodesCollection: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "batch_id", Value: 1}}, Options: options.Index().SetPartialFilterExpression(setOnly("batch_id"))},
		},
	}
}

// findOne decodes the first match into a new T, returning nil, nil when nothing matches.
func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// findPage counts the matches and returns one page sorted newest first.
func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, offset, limit int, projection bson.M) ([]T, int64, error) {
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if projection != nil {
		opts.SetProjection(projection)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
