package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// CouponStore is a service.CouponRepositoryInterface over the coupons collection.
// The usage ledger is embedded in the coupon document.
type CouponStore struct {
	coll *mongo.Collection
}

// Create inserts a new coupon.
// Returns service.ErrCouponExists if the code is taken.
func (s *CouponStore) Create(ctx context.Context, coupon *model.Coupon) error {
	doc := *coupon
	if doc.UsedBy == nil {
		doc.UsedBy = []model.Redemption{}
	}
	if _, err := s.coll.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return service.ErrCouponExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByCode returns nil, nil when the coupon does not exist.
func (s *CouponStore) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	coupon, err := findOne[model.Coupon](ctx, s.coll, bson.M{"code": code})
	if err != nil {
		return nil, fmt.Errorf("get coupon by code %s: %w", code, err)
	}
	if coupon != nil && coupon.UsedBy == nil {
		coupon.UsedBy = []model.Redemption{}
	}
	return coupon, nil
}

// Save writes the editable fields when the version still matches.
// used_count and used_by are owned by AppendRedemption.
func (s *CouponStore) Save(ctx context.Context, coupon *model.Coupon) error {
	res, err := s.coll.UpdateOne(ctx, versionFilter(coupon.ID, coupon.Version), couponEdit(coupon))
	if err != nil {
		return fmt.Errorf("update coupon %s: %w", coupon.Code, err)
	}
	if res.MatchedCount == 0 {
		return service.ErrConflict
	}
	coupon.Version++
	return nil
}

// AppendRedemption pushes red onto the ledger and increments used_count in one
// document update, guarded by the version and the usage limit.
func (s *CouponStore) AppendRedemption(ctx context.Context, coupon *model.Coupon, red model.Redemption) error {
	res, err := s.coll.UpdateOne(ctx, redemptionFilter(coupon), redemptionUpdate(red))
	if err != nil {
		return fmt.Errorf("append redemption to %s: %w", coupon.Code, err)
	}
	if res.MatchedCount == 0 {
		return service.ErrConflict
	}

	coupon.UsedCount++
	coupon.Version++
	coupon.UpdatedAt = red.UsedAt
	coupon.UsedBy = append(coupon.UsedBy, red)
	return nil
}

// List returns a page of coupons, newest first, without their ledgers.
func (s *CouponStore) List(ctx context.Context, filter model.CouponFilter) ([]model.Coupon, int64, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}

	coupons, total, err := findPage[model.Coupon](ctx, s.coll, query, filter.Offset, filter.Limit, bson.M{"used_by": 0})
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	for i := range coupons {
		coupons[i].UsedBy = []model.Redemption{}
	}
	return coupons, total, nil
}

// Stats summarises the coupon catalogue with a single aggregation.
func (s *CouponStore) Stats(ctx context.Context) (model.CouponStats, error) {
	cursor, err := s.coll.Aggregate(ctx, statsPipeline())
	if err != nil {
		return model.CouponStats{}, fmt.Errorf("coupon stats: %w", err)
	}

	var rows []struct {
		Total  int64 `bson:"total"`
		Active int64 `bson:"active"`
		Usage  int64 `bson:"usage"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return model.CouponStats{}, fmt.Errorf("decode coupon stats: %w", err)
	}
	if len(rows) == 0 {
		return model.CouponStats{}, nil
	}
	return model.CouponStats{
		TotalCoupons:  rows[0].Total,
		ActiveCoupons: rows[0].Active,
		TotalUsage:    rows[0].Usage,
	}, nil
}

func couponEdit(c *model.Coupon) bson.M {
	return bson.M{
		"$set": bson.M{
			"name":             c.Name,
			"description":      c.Description,
			"type":             c.Type,
			"value":            c.Value,
			"max_discount":     c.MaxDiscount,
			"min_amount":       c.MinAmount,
			"applicable_plans": c.ApplicablePlans,
			"usage_limit":      c.UsageLimit,
			"user_usage_limit": c.UserUsageLimit,
			"valid_from":       c.ValidFrom,
			"valid_until":      c.ValidUntil,
			"is_active":        c.IsActive,
			"updated_at":       c.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
}

// redemptionFilter matches the coupon at the read version while it still has room.
// A null usage_limit means unlimited.
func redemptionFilter(c *model.Coupon) bson.M {
	return bson.M{
		"_id":     c.ID,
		"version": c.Version,
		"$or": bson.A{
			bson.M{"usage_limit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$used_count", "$usage_limit"}}},
		},
	}
}

func redemptionUpdate(red model.Redemption) bson.M {
	return bson.M{
		"$inc":  bson.M{"used_count": 1, "version": 1},
		"$set":  bson.M{"updated_at": red.UsedAt},
		"$push": bson.M{"used_by": red},
	}
}

func statsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":    nil,
			"total":  bson.M{"$sum": 1},
			"active": bson.M{"$sum": bson.M{"$cond": bson.A{"$is_active", 1, 0}}},
			"usage":  bson.M{"$sum": "$used_count"},
		}}},
	}
}
