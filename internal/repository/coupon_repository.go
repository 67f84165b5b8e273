package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

const couponColumns = `id, code, name, description, type, value, max_discount, min_amount,
	applicable_plans, usage_limit, used_count, user_usage_limit, valid_from, valid_until,
	is_active, created_by, version, created_at, updated_at`

// CouponRepository provides data access for coupons using pgx.
type CouponRepository struct {
	pool        PoolInterface
	redemptions *RedemptionRepository
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return NewCouponRepositoryWithPool(pool)
}

// NewCouponRepositoryWithPool creates a new CouponRepository with a custom pool interface.
// This is primarily used for testing.
func NewCouponRepositoryWithPool(pool PoolInterface) *CouponRepository {
	return &CouponRepository{
		pool:        pool,
		redemptions: NewRedemptionRepositoryWithPool(pool),
	}
}

// Create inserts a new coupon.
// Returns service.ErrCouponExists if a coupon with the same code already exists.
func (r *CouponRepository) Create(ctx context.Context, c *model.Coupon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		c.ID, c.Code, c.Name, c.Description, string(c.Type), c.Value, c.MaxDiscount, c.MinAmount,
		planStrings(c.ApplicablePlans), c.UsageLimit, c.UsedCount, c.UserUsageLimit, c.ValidFrom, c.ValidUntil,
		c.IsActive, c.CreatedBy, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return service.ErrCouponExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByCode retrieves a coupon and its usage ledger by the normalized code.
// Returns nil, nil if the coupon is not found (service layer handles this).
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon by code %s: %w", code, err)
	}

	coupon.UsedBy, err = r.redemptions.ListByCoupon(ctx, coupon.ID)
	if err != nil {
		return nil, err
	}
	return coupon, nil
}

// Save writes the coupon's editable fields when the stored version still matches.
// used_count is owned by AppendRedemption and is not written here.
func (r *CouponRepository) Save(ctx context.Context, c *model.Coupon) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET
			name = $3, description = $4, type = $5, value = $6, max_discount = $7, min_amount = $8,
			applicable_plans = $9, usage_limit = $10, user_usage_limit = $11,
			valid_from = $12, valid_until = $13, is_active = $14, updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, c.Name, c.Description, string(c.Type), c.Value, c.MaxDiscount, c.MinAmount,
		planStrings(c.ApplicablePlans), c.UsageLimit, c.UserUsageLimit,
		c.ValidFrom, c.ValidUntil, c.IsActive, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update coupon %s: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrConflict
	}
	c.Version++
	return nil
}

// AppendRedemption increments used_count and records red in one transaction, guarded
// by the coupon version and the usage limit. On success c reflects the stored state.
// Returns service.ErrConflict if the coupon changed since it was read.
func (r *CouponRepository) AppendRedemption(ctx context.Context, c *model.Coupon, red model.Redemption) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1, version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $2 AND (usage_limit IS NULL OR used_count < usage_limit)`,
		c.ID, c.Version, red.UsedAt)
	if err != nil {
		return fmt.Errorf("increment coupon usage %s: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrConflict
	}

	if err = r.redemptions.Insert(ctx, tx, c.ID, red); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	c.UsedCount++
	c.Version++
	c.UpdatedAt = red.UsedAt
	c.UsedBy = append(c.UsedBy, red)
	return nil
}

// List returns a page of coupons, newest first, and the total matching count.
// The usage ledger is not loaded for listed coupons.
func (r *CouponRepository) List(ctx context.Context, filter model.CouponFilter) ([]model.Coupon, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupons WHERE ($1 = FALSE OR is_active)`,
		filter.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE ($1 = FALSE OR is_active)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		filter.ActiveOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []model.Coupon{}
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate coupon rows: %w", err)
	}
	return coupons, total, nil
}

// Stats summarises the coupon catalogue.
func (r *CouponRepository) Stats(ctx context.Context) (model.CouponStats, error) {
	var stats model.CouponStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active), COALESCE(SUM(used_count), 0) FROM coupons`,
	).Scan(&stats.TotalCoupons, &stats.ActiveCoupons, &stats.TotalUsage)
	if err != nil {
		return model.CouponStats{}, fmt.Errorf("coupon stats: %w", err)
	}
	return stats, nil
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		c          model.Coupon
		couponType string
		plans      []string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &couponType, &c.Value, &c.MaxDiscount, &c.MinAmount,
		&plans, &c.UsageLimit, &c.UsedCount, &c.UserUsageLimit, &c.ValidFrom, &c.ValidUntil,
		&c.IsActive, &c.CreatedBy, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = model.CouponType(couponType)
	c.ApplicablePlans = make([]model.Plan, len(plans))
	for i, p := range plans {
		c.ApplicablePlans[i] = model.Plan(p)
	}
	c.UsedBy = []model.Redemption{}
	return &c, nil
}

func planStrings(plans []model.Plan) []string {
	out := make([]string, len(plans))
	for i, p := range plans {
		out[i] = string(p)
	}
	return out
}
