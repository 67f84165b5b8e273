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

const paymentColumns = `id, account_id, order_id, transaction_id, amount, original_amount, currency,
	plan, duration_days, status, coupon_code, discount_amount, discount_percentage,
	version, created_at, updated_at, completed_at`

// PaymentRepository provides data access for payments using pgx.
type PaymentRepository struct {
	pool PoolInterface
}

// NewPaymentRepository creates a new PaymentRepository with the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// NewPaymentRepositoryWithPool creates a new PaymentRepository with a custom pool interface.
// This is primarily used for testing.
func NewPaymentRepositoryWithPool(pool PoolInterface) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.AccountID, p.OrderID, nullable(p.TransactionID), p.Amount, p.OriginalAmount, p.Currency,
		string(p.Plan), p.DurationDays, string(p.Status), p.Discount.CouponCode, p.Discount.DiscountAmount, p.Discount.DiscountPercentage,
		p.Version, p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return service.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by id.
// Returns nil, nil if the payment is not found (service layer handles this).
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.getOne(ctx, "id", id)
}

// GetByOrderID retrieves a payment by gateway order id.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	return r.getOne(ctx, "order_id", orderID)
}

// GetByTransactionID retrieves a payment by gateway transaction id.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	if transactionID == "" {
		return nil, nil
	}
	return r.getOne(ctx, "transaction_id", transactionID)
}

func (r *PaymentRepository) getOne(ctx context.Context, column, value string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1`

	payment, err := scanPayment(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by %s: %w", column, err)
	}
	return payment, nil
}

// Save writes the payment's mutable fields when the stored version still matches.
// Returns service.ErrConflict if another writer got there first.
func (r *PaymentRepository) Save(ctx context.Context, p *model.Payment) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET
			transaction_id = $3, status = $4, updated_at = $5, completed_at = $6,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, p.Version, nullable(p.TransactionID), string(p.Status), p.UpdatedAt, p.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return service.ErrPaymentExists
		}
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrConflict
	}
	p.Version++
	return nil
}

const paymentListWhere = ` WHERE ($1 = '' OR account_id = $1) AND ($2 = '' OR status = $2) AND ($3 = '' OR plan = $3)`

// List returns payments newest first and the total matching count. An empty
// AccountID lists every account.
func (r *PaymentRepository) List(ctx context.Context, filter model.PaymentFilter) ([]model.Payment, int64, error) {
	status, plan := string(filter.Status), string(filter.Plan)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`+paymentListWhere,
		filter.AccountID, status, plan).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments`+paymentListWhere+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		filter.AccountID, status, plan, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p             model.Payment
		transactionID *string
		plan, status  string
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.OrderID, &transactionID, &p.Amount, &p.OriginalAmount, &p.Currency,
		&plan, &p.DurationDays, &status, &p.Discount.CouponCode, &p.Discount.DiscountAmount, &p.Discount.DiscountPercentage,
		&p.Version, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TransactionID = deref(transactionID)
	p.Plan = model.Plan(plan)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
