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

const accountColumns = `id, external_id, email, first_name, last_name, avatar, role,
	plan, status, start_date, end_date, subscription_payment_id,
	qr_generated_today, qr_generated_total, api_calls_today, api_calls_total, last_reset_date,
	api_key, is_active, version, created_at, updated_at, last_login_at`

// AccountRepository provides data access for accounts using pgx.
type AccountRepository struct {
	pool PoolInterface
}

// NewAccountRepository creates a new AccountRepository with the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// NewAccountRepositoryWithPool creates a new AccountRepository with a custom pool interface.
// This is primarily used for testing.
func NewAccountRepositoryWithPool(pool PoolInterface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account.
// Returns service.ErrAccountExists if the external id or API key is taken.
func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		a.ID, a.ExternalID, a.Email, a.FirstName, a.LastName, a.Avatar, string(a.Role),
		string(a.Subscription.Plan), string(a.Subscription.Status), a.Subscription.StartDate, a.Subscription.EndDate, a.Subscription.PaymentID,
		a.Usage.QRGeneratedToday, a.Usage.QRGeneratedTotal, a.Usage.APICallsToday, a.Usage.APICallsTotal, a.Usage.LastResetDate,
		nullable(a.APIKey), a.IsActive, a.Version, a.CreatedAt, a.UpdatedAt, a.LastLoginAt)
	if err != nil {
		if isUniqueViolation(err) {
			return service.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by id.
// Returns nil, nil if the account is not found (service layer handles this).
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.getOne(ctx, "id", id)
}

// GetByExternalID retrieves an account by its identity provider subject.
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return r.getOne(ctx, "external_id", externalID)
}

// GetByAPIKey retrieves an account by API key.
func (r *AccountRepository) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	if apiKey == "" {
		return nil, nil
	}
	return r.getOne(ctx, "api_key", apiKey)
}

// column is always one of the fixed names above, never user input.
func (r *AccountRepository) getOne(ctx context.Context, column, value string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return account, nil
}

// Save writes every mutable field when the stored version still matches
// account.Version, then bumps account.Version.
// Returns service.ErrConflict if another writer got there first.
func (r *AccountRepository) Save(ctx context.Context, a *model.Account) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET
			email = $3, first_name = $4, last_name = $5, avatar = $6, role = $7,
			plan = $8, status = $9, start_date = $10, end_date = $11,
			qr_generated_today = $12, qr_generated_total = $13,
			api_calls_today = $14, api_calls_total = $15, last_reset_date = $16,
			api_key = $17, is_active = $18, updated_at = $19, last_login_at = $20,
			subscription_payment_id = $21,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		a.ID, a.Version, a.Email, a.FirstName, a.LastName, a.Avatar, string(a.Role),
		string(a.Subscription.Plan), string(a.Subscription.Status), a.Subscription.StartDate, a.Subscription.EndDate,
		a.Usage.QRGeneratedToday, a.Usage.QRGeneratedTotal, a.Usage.APICallsToday, a.Usage.APICallsTotal, a.Usage.LastResetDate,
		nullable(a.APIKey), a.IsActive, a.UpdatedAt, a.LastLoginAt,
		a.Subscription.PaymentID)
	if err != nil {
		if isUniqueViolation(err) {
			return service.ErrAccountExists
		}
		return fmt.Errorf("update account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrConflict
	}
	a.Version++
	return nil
}

const accountListWhere = ` WHERE ($1 = '' OR email ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1)
	AND ($2 = '' OR plan = $2) AND ($3 = '' OR status = $3)`

// List returns accounts newest first and the total matching count.
func (r *AccountRepository) List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	search := ""
	if filter.Search != "" {
		search = "%" + escapeLike(filter.Search) + "%"
	}
	plan, status := string(filter.Plan), string(filter.Status)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+accountListWhere,
		search, plan, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts`+accountListWhere+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		search, plan, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, total, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a                  model.Account
		role, plan, status string
		apiKey             *string
	)
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.Email, &a.FirstName, &a.LastName, &a.Avatar, &role,
		&plan, &status, &a.Subscription.StartDate, &a.Subscription.EndDate, &a.Subscription.PaymentID,
		&a.Usage.QRGeneratedToday, &a.Usage.QRGeneratedTotal, &a.Usage.APICallsToday, &a.Usage.APICallsTotal, &a.Usage.LastResetDate,
		&apiKey, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	a.Subscription.Plan = model.Plan(plan)
	a.Subscription.Status = model.SubscriptionStatus(status)
	a.APIKey = deref(apiKey)
	return &a, nil
}
