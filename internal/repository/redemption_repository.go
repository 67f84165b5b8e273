package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/pkg/database"
)

// RedemptionQuerier defines the database operations needed by RedemptionRepository.
type RedemptionQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RedemptionRepository provides data access for the coupon usage ledger using pgx.
type RedemptionRepository struct {
	pool RedemptionQuerier
}

// NewRedemptionRepository creates a new RedemptionRepository with the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// NewRedemptionRepositoryWithPool creates a new RedemptionRepository with a custom pool interface.
// This is primarily used for testing.
func NewRedemptionRepositoryWithPool(pool RedemptionQuerier) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// ListByCoupon retrieves the ledger of a coupon, oldest first.
// On success, returns an empty slice (not nil) when the coupon was never redeemed.
func (r *RedemptionRepository) ListByCoupon(ctx context.Context, couponID string) ([]model.Redemption, error) {
	query := `SELECT account_id, payment_id, used_at FROM coupon_redemptions WHERE coupon_id = $1 ORDER BY used_at, id`

	rows, err := r.pool.Query(ctx, query, couponID)
	if err != nil {
		return nil, fmt.Errorf("get redemptions for coupon %s: %w", couponID, err)
	}
	defer rows.Close()

	redemptions := []model.Redemption{}
	for rows.Next() {
		var red model.Redemption
		if err := rows.Scan(&red.AccountID, &red.PaymentID, &red.UsedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, red)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemption rows: %w", err)
	}

	return redemptions, nil
}

// Insert records a redemption within a transaction.
func (r *RedemptionRepository) Insert(ctx context.Context, tx database.TxQuerier, couponID string, red model.Redemption) error {
	query := `INSERT INTO coupon_redemptions (coupon_id, account_id, payment_id, used_at) VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, query, couponID, red.AccountID, red.PaymentID, red.UsedAt); err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}
