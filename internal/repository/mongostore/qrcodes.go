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

// QRCodeStore is a service.QRCodeRepositoryInterface over the qr_codes collection.
type QRCodeStore struct {
	coll *mongo.Collection
}

// Create inserts a new QR code.
func (s *QRCodeStore) Create(ctx context.Context, code *model.QRCode) error {
	if _, err := s.coll.InsertOne(ctx, code); err != nil {
		return fmt.Errorf("insert qr code: %w", err)
	}
	return nil
}

// CreateMany inserts a batch in one ordered write.
func (s *QRCodeStore) CreateMany(ctx context.Context, codes []model.QRCode) error {
	if len(codes) == 0 {
		return nil
	}
	if _, err := s.coll.InsertMany(ctx, codes); err != nil {
		return fmt.Errorf("insert qr codes: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the code does not exist. Deleted codes are returned.
func (s *QRCodeStore) GetByID(ctx context.Context, id string) (*model.QRCode, error) {
	code, err := findOne[model.QRCode](ctx, s.coll, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get qr code by id: %w", err)
	}
	return code, nil
}

// Save writes the editable fields when the version still matches.
func (s *QRCodeStore) Save(ctx context.Context, code *model.QRCode) error {
	res, err := s.coll.UpdateOne(ctx, versionFilter(code.ID, code.Version), qrCodeEdit(code))
	if err != nil {
		return fmt.Errorf("update qr code %s: %w", code.ID, err)
	}
	if res.MatchedCount == 0 {
		return service.ErrConflict
	}
	code.Version++
	return nil
}

// List returns an account's active codes newest first and the total matching count.
func (s *QRCodeStore) List(ctx context.Context, filter model.QRCodeFilter) ([]model.QRCode, int64, error) {
	codes, total, err := findPage[model.QRCode](ctx, s.coll, qrCodeQuery(filter), filter.Offset, filter.Limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list qr codes: %w", err)
	}
	return codes, total, nil
}

// Stats counts an account's active codes per type.
func (s *QRCodeStore) Stats(ctx context.Context, accountID string) (model.QRCodeStats, error) {
	cursor, err := s.coll.Aggregate(ctx, qrStatsPipeline(accountID))
	if err != nil {
		return model.QRCodeStats{}, fmt.Errorf("qr code stats: %w", err)
	}

	stats := model.QRCodeStats{ByType: []model.QRTypeCount{}}
	if err := cursor.All(ctx, &stats.ByType); err != nil {
		return model.QRCodeStats{}, fmt.Errorf("decode qr code stats: %w", err)
	}
	for _, c := range stats.ByType {
		stats.Total += c.Count
	}
	return stats, nil
}

func qrCodeQuery(filter model.QRCodeFilter) bson.M {
	query := bson.M{"account_id": filter.AccountID, "is_active": true}
	if filter.Search != "" {
		pattern := bson.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"content": pattern},
		}
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.BatchID != "" {
		query["batch_id"] = filter.BatchID
	}
	return query
}

func qrStatsPipeline(accountID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID, "is_active": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func qrCodeEdit(q *model.QRCode) bson.M {
	return bson.M{
		"$set": bson.M{
			"title":      q.Title,
			"content":    q.Content,
			"styling":    q.Styling,
			"is_active":  q.IsActive,
			"updated_at": q.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
}
